// Package connection provides the go-ble backed transport for the LX-D01
// printer: it dials the device, locates the FFE6 print service with its FFE1
// write and FFE2 notify characteristics, and exposes them through the narrow
// driver.Transport surface. All discovery and GATT mechanics stay here; the
// protocol engine never sees them.
package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/srg/lxprint/internal/ringchan"
)

// PrinterServiceUUID is the LX-D01's proprietary print service.
var PrinterServiceUUID = ble.MustParse("0000FFE6-0000-1000-8000-00805f9b34fb")

// WriteCharUUID accepts write-without-response frames from the host.
var WriteCharUUID = ble.MustParse("0000FFE1-0000-1000-8000-00805f9b34fb")

// NotifyCharUUID carries the device's control frame notifications.
var NotifyCharUUID = ble.MustParse("0000FFE2-0000-1000-8000-00805f9b34fb")

// notifyBuffer bounds buffered notifications between the BLE callback and the
// consumer. The printer sends few frames; bursts come only from completion
// retries.
const notifyBuffer = 64

// ConnectOptions configures the printer connection.
type ConnectOptions struct {
	DeviceAddress  string
	ConnectTimeout time.Duration
	ServiceUUID    *ble.UUID // optional override for clones advertising other UUIDs
	WriteCharUUID  *ble.UUID
	NotifyCharUUID *ble.UUID
}

// DefaultConnectOptions returns options for a stock LX-D01.
func DefaultConnectOptions(deviceAddress string) *ConnectOptions {
	return &ConnectOptions{
		DeviceAddress:  deviceAddress,
		ConnectTimeout: 30 * time.Second,
		ServiceUUID:    &PrinterServiceUUID,
		WriteCharUUID:  &WriteCharUUID,
		NotifyCharUUID: &NotifyCharUUID,
	}
}

// Connection is a live link to the printer. It implements driver.Transport.
type Connection struct {
	client     ble.Client
	writeChar  *ble.Characteristic
	notifyChar *ble.Characteristic
	logger     *logrus.Logger

	notif *ringchan.RingChannel[[]byte]

	writeMutex  sync.Mutex
	connMutex   sync.RWMutex
	isConnected bool
	closeOnce   sync.Once
}

// NewConnection creates an unconnected Connection.
func NewConnection(logger *logrus.Logger) *Connection {
	if logger == nil {
		logger = logrus.New()
	}
	return &Connection{
		logger: logger,
		notif:  ringchan.New[[]byte](notifyBuffer),
	}
}

// Connect dials the printer, discovers the print service and subscribes to
// its notify characteristic. After Connect returns, the Connection is ready
// to hand to driver.New.
func (c *Connection) Connect(ctx context.Context, opts *ConnectOptions) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.isConnected {
		return fmt.Errorf("already connected")
	}

	d, err := darwin.NewDevice()
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(d)

	c.logger.WithField("address", opts.DeviceAddress).Info("Connecting to printer...")

	connectCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	client, err := ble.Dial(connectCtx, ble.NewAddr(opts.DeviceAddress))
	if err != nil {
		return fmt.Errorf("failed to connect to printer: %w", err)
	}
	c.client = client

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		client.CancelConnection()
		return fmt.Errorf("failed to discover profile: %w", err)
	}

	var printService *ble.Service
	for _, service := range profile.Services {
		if service.UUID.Equal(*opts.ServiceUUID) {
			printService = service
			break
		}
	}
	if printService == nil {
		client.CancelConnection()
		return fmt.Errorf("print service %s not found", opts.ServiceUUID.String())
	}

	for _, char := range printService.Characteristics {
		switch {
		case char.UUID.Equal(*opts.WriteCharUUID):
			c.writeChar = char
		case char.UUID.Equal(*opts.NotifyCharUUID):
			c.notifyChar = char
		}
	}
	if c.writeChar == nil {
		client.CancelConnection()
		return fmt.Errorf("write characteristic %s not found", opts.WriteCharUUID.String())
	}
	if c.notifyChar == nil {
		client.CancelConnection()
		return fmt.Errorf("notify characteristic %s not found", opts.NotifyCharUUID.String())
	}

	if err := client.Subscribe(c.notifyChar, false, c.handleNotification); err != nil {
		client.CancelConnection()
		return fmt.Errorf("failed to subscribe to notify characteristic: %w", err)
	}

	// Close the stream when the link drops so the driver sees end-of-stream
	// instead of hanging on a dead connection. Not every ble.Client exposes
	// a disconnect channel; Disconnect() covers teardown either way.
	if dc, ok := any(client).(interface{ Disconnected() <-chan struct{} }); ok {
		go func() {
			<-dc.Disconnected()
			c.connMutex.Lock()
			c.isConnected = false
			c.connMutex.Unlock()
			c.closeOnce.Do(c.notif.Close)
			c.logger.Warn("Printer connection lost")
		}()
	}

	c.isConnected = true
	c.logger.WithFields(logrus.Fields{
		"service": printService.UUID.String(),
		"write":   c.writeChar.UUID.String(),
		"notify":  c.notifyChar.UUID.String(),
	}).Info("Printer connection established")

	return nil
}

// handleNotification forwards device frames to the notification stream. The
// callback runs on the BLE stack's goroutine and must never block; the ring
// overwrites the oldest frame instead.
func (c *Connection) handleNotification(data []byte) {
	c.connMutex.RLock()
	connected := c.isConnected
	c.connMutex.RUnlock()
	if !connected {
		return
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	c.logger.WithField("raw", fmt.Sprintf("% X", cp)).Debug("Notification received")
	c.notif.Send(cp)
}

// WriteWithoutResponse sends one frame to the printer's write characteristic.
// Frames are at most 20 bytes by construction, so no chunking is needed.
func (c *Connection) WriteWithoutResponse(data []byte) error {
	c.connMutex.RLock()
	connected := c.isConnected
	c.connMutex.RUnlock()

	if !connected {
		return fmt.Errorf("not connected")
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	if err := c.client.WriteCharacteristic(c.writeChar, data, true); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	c.logger.WithField("bytes", len(data)).Debug("Frame written")
	return nil
}

// Notifications returns the inbound frame stream. The channel closes when
// the connection drops or Disconnect is called.
func (c *Connection) Notifications() <-chan []byte {
	return c.notif.C()
}

// IsConnected reports whether the link is up.
func (c *Connection) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.isConnected
}

// Disconnect unsubscribes and tears down the connection.
func (c *Connection) Disconnect() error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if !c.isConnected {
		return fmt.Errorf("not connected")
	}
	c.isConnected = false

	if err := c.client.Unsubscribe(c.notifyChar, false); err != nil {
		c.logger.WithError(err).Warn("Failed to unsubscribe, continuing teardown")
	}
	c.closeOnce.Do(c.notif.Close)

	if err := c.client.CancelConnection(); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}

	c.logger.Info("Disconnected from printer")
	return nil
}
