package driver

import (
	"errors"
	"fmt"

	"github.com/srg/lxprint/internal/protocol"
)

// Job-level errors. A job either reaches Done or fails wholly; there is no
// partial success, and the driver never retries a failed job on its own. The
// only device-side retry in the protocol is the repeated completion notice,
// which is tolerated, not replayed.
var (
	// ErrJobInProgress is returned when PrintImage is called while another
	// job is running on the same transport. The protocol cannot multiplex
	// jobs on one connection.
	ErrJobInProgress = errors.New("a print job is already in progress")

	// ErrJobTimeout is returned when the device never reports completion
	// within Options.CompletionWaitTimeout.
	ErrJobTimeout = errors.New("timed out waiting for print completion")

	// ErrStreamClosed is returned when the notification stream ends
	// mid-job, which means the BLE connection dropped.
	ErrStreamClosed = errors.New("notification stream closed")
)

// Image validation errors, re-exported from the protocol package so callers
// of the facade need only this package.
var (
	ErrEmptyImage    = protocol.ErrEmptyImage
	ErrImageTooLarge = protocol.ErrImageTooLarge
)

// TransportError wraps a failed write. Writes are fire-and-forget; a failure
// is fatal to the current job because the protocol offers no host-side
// recovery short of re-running the whole job.
type TransportError struct {
	Op  string // what the driver was sending: "start", "block", "ack"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s write failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
