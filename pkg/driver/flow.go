package driver

import "context"

// FlowController paces block transmission by bounding the number of writes
// issued but not yet confirmed sent by the transport. This is advisory
// pacing for the link layer's limited write credits; the device itself gives
// no per-block acknowledgement.
type FlowController struct {
	slots chan struct{}
}

// NewFlowController creates a controller with the given window. Windows
// below 1 fall back to the default of 2.
func NewFlowController(window int) *FlowController {
	if window < 1 {
		window = DefaultOptions().FlowWindow
	}
	return &FlowController{slots: make(chan struct{}, window)}
}

// Acquire blocks until the outstanding count is below the window, then
// claims a slot. It returns the context error if ctx ends first.
func (fc *FlowController) Acquire(ctx context.Context) error {
	select {
	case fc.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot once the transport signals the write has left the
// local queue. Calling Release without a matching Acquire is a no-op.
func (fc *FlowController) Release() {
	select {
	case <-fc.slots:
	default:
	}
}

// InFlight returns the number of currently outstanding slots.
func (fc *FlowController) InFlight() int {
	return len(fc.slots)
}

// Window returns the configured window size.
func (fc *FlowController) Window() int {
	return cap(fc.slots)
}
