// Package driver conducts one print job at a time through the LX-D01's BLE
// print protocol: it waits out the device's opening status frame, announces
// the job, streams the rasterized image as fixed 16-byte blocks under a small
// flow-control window, and completes the acknowledgement handshake the device
// retries until satisfied.
//
// The driver is constructed from an already-connected Transport; discovery,
// GATT plumbing, and rasterization live with the caller.
package driver

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/lxprint/internal/protocol"
)

// Driver is the single entry point for printing. Safe for concurrent use in
// the sense that overlapping calls are rejected, not interleaved.
type Driver struct {
	transport Transport
	opts      Options
	logger    *logrus.Logger
	busy      atomic.Bool
}

// New creates a Driver on top of a live transport. Unset Options fields are
// filled with defaults; opts may be nil.
func New(transport Transport, logger *logrus.Logger, opts *Options) *Driver {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = &Options{}
	}
	return &Driver{
		transport: transport,
		opts:      opts.normalized(),
		logger:    logger,
	}
}

// PrintImage prints one rasterized image (row-major 1bpp bytes). It blocks
// until the job reaches a terminal state: nil on Done, the failure cause
// otherwise. Cancelling ctx aborts any wait and fails the job.
//
// Exactly one job may run per connection; overlapping calls return
// ErrJobInProgress.
func (d *Driver) PrintImage(ctx context.Context, image []byte) error {
	if !d.busy.CompareAndSwap(false, true) {
		return ErrJobInProgress
	}
	defer d.busy.Store(false)

	job, err := protocol.NewJob(image, d.opts.Copies)
	if err != nil {
		return err
	}

	d.logger.WithFields(logrus.Fields{
		"image_bytes": len(image),
		"blocks":      job.BlockCount(),
		"copies":      job.Copies,
	}).Info("Starting print job")

	s := newSession(d.transport, job, d.opts, d.logger)
	return s.run(ctx)
}
