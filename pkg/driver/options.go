package driver

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// Options tunes one print session. The zero value is usable: New fills every
// unset field from the struct tags below.
type Options struct {
	// FlowWindow caps the number of data-frame writes issued but not yet
	// confirmed sent by the transport. 2 matches the link-layer credits
	// observed in captures; widening it is a performance experiment, not a
	// protocol requirement.
	FlowWindow int `default:"2"`

	// StatusWaitTimeout bounds the wait for the device's initial status
	// frame. The status is capability information only, so on timeout the
	// job proceeds rather than fails.
	StatusWaitTimeout time.Duration `default:"500ms"`

	// SkipStatusWait starts the job immediately without waiting for the
	// initial status frame.
	SkipStatusWait bool

	// CompletionWaitTimeout bounds the wait for the device's completion
	// frame after all blocks were sent. Expiry fails the job.
	CompletionWaitTimeout time.Duration `default:"30s"`

	// AckDrainGrace is how long the session keeps draining repeated
	// completion/echo frames after acknowledging, so stale frames are not
	// left queued for a subsequent job. The device retransmits its
	// completion notice until it observes the ack.
	AckDrainGrace time.Duration `default:"500ms"`

	// Copies is carried in the Start frame's w2 word (job id / copy count).
	Copies uint16 `default:"1"`

	// Progress, when set, is invoked with the session state name on every
	// transition. Used by the CLI spinner; may be nil.
	Progress func(phase string)
}

// DefaultOptions returns Options with every field at its default.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// normalized fills unset fields with defaults and returns a copy.
func (o *Options) normalized() Options {
	opts := *o
	defaults.SetDefaults(&opts)
	return opts
}
