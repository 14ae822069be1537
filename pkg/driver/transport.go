package driver

import (
	"context"
	"sync"

	"github.com/srg/lxprint/internal/capture"
	"github.com/srg/lxprint/internal/groutine"
)

// Transport is the narrow view of a live BLE connection the driver needs:
// fire-and-forget writes to the printer's write characteristic and the
// inbound notification stream from its notify characteristic.
//
// The driver performs no discovery, connection, or notification enablement;
// callers hand it a Transport that is already bound to the right
// characteristics. See pkg/connection for the go-ble implementation.
type Transport interface {
	// WriteWithoutResponse sends one frame to the device. It returns once the
	// write has left the local queue; the device never acknowledges
	// individual writes.
	WriteWithoutResponse(data []byte) error

	// Notifications returns the inbound frame stream. The channel is closed
	// when the connection drops; it is not restartable.
	Notifications() <-chan []byte
}

// WithCapture wraps a Transport so all traffic in both directions is recorded
// into log. The wrapper never alters or delays the frames themselves.
func WithCapture(t Transport, log *capture.Log) Transport {
	return &capturingTransport{inner: t, log: log}
}

type capturingTransport struct {
	inner Transport
	log   *capture.Log

	once sync.Once
	out  chan []byte
}

func (c *capturingTransport) WriteWithoutResponse(data []byte) error {
	c.log.Record(capture.TX, data)
	return c.inner.WriteWithoutResponse(data)
}

func (c *capturingTransport) Notifications() <-chan []byte {
	c.once.Do(func() {
		c.out = make(chan []byte, 8)
		groutine.Go(context.Background(), "capture-rx", func(context.Context) {
			defer close(c.out)
			for data := range c.inner.Notifications() {
				c.log.Record(capture.RX, data)
				c.out <- data
			}
		})
	})
	return c.out
}
