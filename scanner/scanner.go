// Package scanner discovers LX-D01 printers by their advertised name and
// remembers the last seen address so later prints can dial directly instead
// of scanning again.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/srg/lxprint/internal/ringchan"
)

// DefaultDeviceName is the substring a stock LX-D01 advertises.
const DefaultDeviceName = "LX-D01"

// ProgressCallback is called when the scan phase changes.
type ProgressCallback func(phase string)

// Printer is one discovered device.
type Printer struct {
	Name     string
	Address  string
	RSSI     int
	LastSeen time.Time
}

// Scanner handles printer discovery.
type Scanner struct {
	printers *hashmap.Map[string, Printer]
	events   *ringchan.RingChannel[Printer]
	logger   *logrus.Logger

	scanOptions *ScanOptions
}

// ScanOptions configures discovery.
type ScanOptions struct {
	// Duration bounds the scan; the context may end it earlier.
	Duration time.Duration
	// NameFilter keeps only devices whose advertised name contains this
	// substring. Empty keeps everything.
	NameFilter string
	// DuplicateFilter drops repeat advertisements from the same device.
	DuplicateFilter bool
}

// DefaultScanOptions returns discovery defaults for LX-D01 printers.
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		NameFilter:      DefaultDeviceName,
		DuplicateFilter: true,
	}
}

// deviceFactory creates the BLE scanning device. A variable so tests can
// substitute a fake.
var deviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}

// NewScanner creates a printer scanner.
func NewScanner(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		events: ringchan.New[Printer](64),
		logger: logger,
	}
}

// Scan discovers printers until the configured duration or ctx ends, and
// returns everything found keyed by address.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progress ProgressCallback) (map[string]Printer, error) {
	s.printers = hashmap.New[string, Printer]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progress == nil {
		progress = func(string) {}
	}

	s.logger.WithFields(logrus.Fields{
		"duration": opts.Duration,
		"name":     opts.NameFilter,
	}).Info("Starting printer scan...")
	progress("Scanning")

	dev, err := deviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()

	err = dev.Scan(scanCtx, !opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("printer_count", s.printers.Len()).Info("Printer scan completed")
	progress("Processing results")

	printers := make(map[string]Printer, s.printers.Len())
	s.printers.Range(func(addr string, p Printer) bool {
		printers[addr] = p
		return true
	})
	return printers, nil
}

// FindFirst scans until one matching printer shows up, then returns it.
func (s *Scanner) FindFirst(ctx context.Context, opts *ScanOptions) (Printer, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := s.Scan(scanCtx, opts, nil)
		done <- err
	}()

	select {
	case p := <-s.events.C():
		cancel()
		<-done
		return p, nil
	case err := <-done:
		if err == nil {
			err = fmt.Errorf("no printer matching %q found", opts.NameFilter)
		}
		return Printer{}, err
	case <-ctx.Done():
		<-done
		return Printer{}, ctx.Err()
	}
}

func (s *Scanner) handleAdvertisement(adv ble.Advertisement) {
	if s.scanOptions == nil {
		return
	}
	name := adv.LocalName()
	if s.scanOptions.NameFilter != "" && !strings.Contains(name, s.scanOptions.NameFilter) {
		return
	}

	addr := adv.Addr().String()
	p := Printer{
		Name:     name,
		Address:  addr,
		RSSI:     adv.RSSI(),
		LastSeen: time.Now(),
	}

	_, existing := s.printers.Get(addr)
	s.printers.Set(addr, p)

	if !existing {
		s.logger.WithFields(logrus.Fields{
			"name":    p.Name,
			"address": p.Address,
			"rssi":    p.RSSI,
		}).Info("Discovered printer")
		s.events.Send(p)
	}
}

// Events returns a stream of newly discovered printers.
func (s *Scanner) Events() <-chan Printer {
	return s.events.C()
}
