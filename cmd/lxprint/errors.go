package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/lxprint/pkg/driver"
)

// FormatUserError turns internal errors into messages suitable for the
// terminal, with a hint where there is an obvious next step.
func FormatUserError(err error) string {
	var te *driver.TransportError

	switch {
	case errors.Is(err, driver.ErrJobTimeout):
		return "printer did not confirm the job in time - check that it is powered on and has paper loaded"
	case errors.Is(err, driver.ErrJobInProgress):
		return "a print job is already running on this connection"
	case errors.Is(err, driver.ErrEmptyImage):
		return "the image is empty - nothing to print"
	case errors.Is(err, driver.ErrImageTooLarge):
		return "the image is too large for a single print job"
	case errors.Is(err, driver.ErrStreamClosed):
		return "lost the connection to the printer mid-job"
	case errors.As(err, &te):
		return fmt.Sprintf("failed to send %s frame to the printer: %s", te.Op, te.Err)
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out - the printer may be out of range or powered off"
	default:
		return err.Error()
	}
}
