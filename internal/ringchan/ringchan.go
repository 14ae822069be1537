// Package ringchan provides a bounded channel with overwrite-oldest
// semantics. The driver's notification receive path uses it so a burst of
// device frames (the printer repeats its completion notice until it is
// acknowledged) never blocks the BLE notification callback.
package ringchan

import "sync/atomic"

// RingChannel wraps a buffered channel whose producers never block: when the
// buffer is full the oldest element is discarded to make room. Consumers read
// it like a normal channel via C().
type RingChannel[T any] struct {
	ch      chan T
	dropped atomic.Int64
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// Send inserts v, discarding the oldest buffered element if the channel is
// full. It never blocks.
func (rc *RingChannel[T]) Send(v T) {
	for {
		select {
		case rc.ch <- v:
			return
		default:
		}
		select {
		case <-rc.ch: // drop oldest
			rc.dropped.Add(1)
		default:
		}
	}
}

// C returns the receive side. Consumers can range over it until Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Dropped returns how many elements were overwritten before being consumed.
func (rc *RingChannel[T]) Dropped() int64 {
	return rc.dropped.Load()
}

// Close closes the channel. Send must not be called afterwards.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}
