package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressPrinter_StopPhaseStopsAutomatically(t *testing.T) {
	p := NewProgressPrinter("Printing", "Streaming", "Done")
	p.Start()

	cb := p.Callback()
	cb("AwaitingCompletion")
	cb("Done")

	// Stop after a stop phase is a no-op, not a deadlock.
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after stop phase")
	}
}

func TestProgressPrinter_StopIsIdempotent(t *testing.T) {
	p := NewProgressPrinter("Scanning", "Scanning")
	p.Start()
	p.Stop()
	assert.NotPanics(t, func() { p.Stop() })
}

func TestProgressPrinter_StartTwicePanics(t *testing.T) {
	p := NewProgressPrinter("Scanning", "Scanning")
	p.Start()
	defer p.Stop()
	assert.Panics(t, func() { p.Start() })
}
