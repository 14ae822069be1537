package driver

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/lxprint/internal/capture"
	"github.com/srg/lxprint/internal/protocol"
)

// fakeTransport emulates the printer side of the link. Device behavior is
// scripted through onWrite, which runs synchronously inside every write.
type fakeTransport struct {
	mu      sync.Mutex
	writes  [][]byte
	notif   chan []byte
	onWrite func(data []byte)
	failOn  func(data []byte) error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{notif: make(chan []byte, 32)}
}

func (f *fakeTransport) WriteWithoutResponse(data []byte) error {
	if f.failOn != nil {
		if err := f.failOn(data); err != nil {
			return err
		}
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	f.mu.Lock()
	f.writes = append(f.writes, cp)
	f.mu.Unlock()

	if f.onWrite != nil {
		f.onWrite(cp)
	}
	return nil
}

func (f *fakeTransport) Notifications() <-chan []byte {
	return f.notif
}

func (f *fakeTransport) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// respondComplete makes the fake device answer the last data block with a
// completion frame, like the real printer does once it has printed.
func (f *fakeTransport) respondComplete(blockCount uint16) {
	f.onWrite = func(data []byte) {
		df, err := protocol.DecodeData(data)
		if err != nil {
			return
		}
		if df.Index == blockCount-1 {
			f.notif <- protocol.ControlFrame{Op: protocol.OpComplete, W1: blockCount, W2: 1}.Encode()
		}
	}
}

func testOptions() *Options {
	return &Options{
		SkipStatusWait:        true,
		CompletionWaitTimeout: 2 * time.Second,
		AckDrainGrace:         20 * time.Millisecond,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func isAckFrame(data []byte) bool {
	frame, err := protocol.DecodeControl(data)
	return err == nil && frame.Op == protocol.OpStart && frame.W2 == protocol.AckToken
}

// Full handshake for a 928-byte image: start frame, 58 sequential blocks,
// completion, ack.
func TestPrintImage_FullHandshake(t *testing.T) {
	image := bytes.Repeat([]byte{0xF0}, 928)

	tr := newFakeTransport()
	tr.respondComplete(58)

	d := New(tr, testLogger(), testOptions())
	require.NoError(t, d.PrintImage(context.Background(), image))

	frames := tr.sentFrames()
	require.Len(t, frames, 60) // start + 58 blocks + ack

	// Start frame: 5A 04, blockCount=0x003A little-endian, job id 1.
	assert.Equal(t,
		[]byte{0x5A, 0x04, 0x3A, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		frames[0])

	// Blocks are strictly sequential by index, 0x0000..0x0039.
	for i := 0; i < 58; i++ {
		df, err := protocol.DecodeData(frames[1+i])
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, uint16(i), df.Index)
	}

	// Ack reuses the start opcode with the ack token in w2.
	assert.Equal(t,
		[]byte{0x5A, 0x04, 0x3A, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		frames[59])
}

// The device retransmits its completion frame until it observes the ack. The
// session must absorb the repeats in Done without sending another ack.
func TestPrintImage_RepeatedCompletionAfterAck(t *testing.T) {
	image := bytes.Repeat([]byte{0x01}, 32) // 2 blocks

	tr := newFakeTransport()
	complete := protocol.ControlFrame{Op: protocol.OpComplete, W1: 2, W2: 1}.Encode()
	tr.onWrite = func(data []byte) {
		if df, err := protocol.DecodeData(data); err == nil && df.Index == 1 {
			tr.notif <- complete
		}
		if isAckFrame(data) {
			// Pretend the ack was lost: the device repeats itself.
			tr.notif <- complete
			tr.notif <- complete
		}
	}

	opts := testOptions()
	opts.AckDrainGrace = 100 * time.Millisecond

	d := New(tr, testLogger(), opts)
	require.NoError(t, d.PrintImage(context.Background(), image))

	acks := 0
	for _, f := range tr.sentFrames() {
		if isAckFrame(f) {
			acks++
		}
	}
	assert.Equal(t, 1, acks)
}

func TestPrintImage_CompletionTimeout(t *testing.T) {
	tr := newFakeTransport() // device never answers

	opts := testOptions()
	opts.CompletionWaitTimeout = 50 * time.Millisecond

	d := New(tr, testLogger(), opts)
	err := d.PrintImage(context.Background(), bytes.Repeat([]byte{0x01}, 16))
	assert.ErrorIs(t, err, ErrJobTimeout)
}

func TestPrintImage_ImageTooLarge(t *testing.T) {
	tr := newFakeTransport()
	d := New(tr, testLogger(), testOptions())

	err := d.PrintImage(context.Background(), make([]byte, protocol.MaxBlockCount*protocol.BlockPayloadLen+1))
	assert.ErrorIs(t, err, ErrImageTooLarge)
	assert.Empty(t, tr.sentFrames(), "no frames may be sent for a rejected image")
}

func TestPrintImage_EmptyImage(t *testing.T) {
	tr := newFakeTransport()
	d := New(tr, testLogger(), testOptions())

	err := d.PrintImage(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
	assert.Empty(t, tr.sentFrames())
}

// A malformed frame arriving while the session awaits completion is
// discarded; the wait continues and the job still succeeds.
func TestPrintImage_MalformedFrameDiscarded(t *testing.T) {
	image := bytes.Repeat([]byte{0x01}, 16)

	tr := newFakeTransport()
	tr.onWrite = func(data []byte) {
		if df, err := protocol.DecodeData(data); err == nil && df.Index == 0 {
			tr.notif <- []byte{0x5A, 0x06, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00} // 11 bytes
			tr.notif <- protocol.ControlFrame{Op: protocol.OpComplete, W1: 1, W2: 1}.Encode()
		}
	}

	d := New(tr, testLogger(), testOptions())
	assert.NoError(t, d.PrintImage(context.Background(), image))
}

// Frames that decode fine but are not the awaited completion (start echo,
// mid-progress, completion for a different block count) must not end the
// wait.
func TestPrintImage_IgnoresUnrelatedFrames(t *testing.T) {
	image := bytes.Repeat([]byte{0x01}, 48) // 3 blocks

	tr := newFakeTransport()
	tr.onWrite = func(data []byte) {
		if df, err := protocol.DecodeData(data); err == nil && df.Index == 2 {
			tr.notif <- protocol.StartFrame(3, 1).Encode() // accepted echo
			tr.notif <- protocol.ControlFrame{Op: protocol.OpMidProgress, W1: 1}.Encode()
			tr.notif <- protocol.ControlFrame{Op: protocol.OpComplete, W1: 99, W2: 1}.Encode()
			tr.notif <- protocol.ControlFrame{Op: protocol.OpComplete, W1: 3, W2: 1}.Encode()
		}
	}

	d := New(tr, testLogger(), testOptions())
	assert.NoError(t, d.PrintImage(context.Background(), image))
}

func TestPrintImage_JobInProgress(t *testing.T) {
	tr := newFakeTransport()

	opts := testOptions()
	opts.CompletionWaitTimeout = time.Second

	d := New(tr, testLogger(), opts)

	started := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		close(started)
		firstDone <- d.PrintImage(context.Background(), bytes.Repeat([]byte{0x01}, 16))
	}()

	<-started
	// Wait until the first job has actually claimed the session.
	require.Eventually(t, func() bool {
		return len(tr.sentFrames()) > 0
	}, time.Second, 5*time.Millisecond)

	err := d.PrintImage(context.Background(), []byte{0x01})
	assert.ErrorIs(t, err, ErrJobInProgress)

	// Let the first job finish.
	tr.notif <- protocol.ControlFrame{Op: protocol.OpComplete, W1: 1, W2: 1}.Encode()
	assert.NoError(t, <-firstDone)

	// After the first job returns, a new job is accepted again.
	tr2 := newFakeTransport()
	tr2.respondComplete(1)
	d2 := New(tr2, testLogger(), testOptions())
	assert.NoError(t, d2.PrintImage(context.Background(), []byte{0x01}))
}

func TestPrintImage_Cancellation(t *testing.T) {
	tr := newFakeTransport() // never completes

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	d := New(tr, testLogger(), testOptions())
	err := d.PrintImage(ctx, bytes.Repeat([]byte{0x01}, 16))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrintImage_StreamClosed(t *testing.T) {
	tr := newFakeTransport()
	tr.onWrite = func(data []byte) {
		if df, err := protocol.DecodeData(data); err == nil && df.Index == 0 {
			close(tr.notif) // connection drop
		}
	}

	d := New(tr, testLogger(), testOptions())
	err := d.PrintImage(context.Background(), bytes.Repeat([]byte{0x01}, 16))
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestPrintImage_WriteFailure(t *testing.T) {
	bleErr := errors.New("att write rejected")

	tr := newFakeTransport()
	tr.failOn = func(data []byte) error {
		if _, err := protocol.DecodeData(data); err == nil {
			return bleErr
		}
		return nil
	}

	d := New(tr, testLogger(), testOptions())
	err := d.PrintImage(context.Background(), bytes.Repeat([]byte{0x01}, 16))

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "block", terr.Op)
	assert.ErrorIs(t, err, bleErr)
}

// The initial status frame is advisory: the job must proceed whether it
// arrives or the wait times out.
func TestPrintImage_StatusWait(t *testing.T) {
	t.Run("status frame arrives", func(t *testing.T) {
		tr := newFakeTransport()
		tr.notif <- protocol.ControlFrame{Op: protocol.OpStatus, W1: 0x64}.Encode()
		tr.respondComplete(1)

		opts := testOptions()
		opts.SkipStatusWait = false
		opts.StatusWaitTimeout = time.Second

		d := New(tr, testLogger(), opts)
		assert.NoError(t, d.PrintImage(context.Background(), []byte{0x01}))
	})

	t.Run("status wait times out and the job proceeds", func(t *testing.T) {
		tr := newFakeTransport()
		tr.respondComplete(1)

		opts := testOptions()
		opts.SkipStatusWait = false
		opts.StatusWaitTimeout = 30 * time.Millisecond

		d := New(tr, testLogger(), opts)
		assert.NoError(t, d.PrintImage(context.Background(), []byte{0x01}))
	})
}

func TestPrintImage_ProgressCallback(t *testing.T) {
	tr := newFakeTransport()
	tr.respondComplete(1)

	var mu sync.Mutex
	var phases []string

	opts := testOptions()
	opts.Progress = func(phase string) {
		mu.Lock()
		phases = append(phases, phase)
		mu.Unlock()
	}

	d := New(tr, testLogger(), opts)
	require.NoError(t, d.PrintImage(context.Background(), []byte{0x01}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"AwaitingStatus", "Starting", "Streaming",
		"AwaitingCompletion", "Acknowledging", "Done",
	}, phases)
}

func TestWithCapture_RecordsTraffic(t *testing.T) {
	tr := newFakeTransport()
	tr.respondComplete(1)

	log := capture.NewLog(64)
	d := New(WithCapture(tr, log), testLogger(), testOptions())
	require.NoError(t, d.PrintImage(context.Background(), []byte{0x01}))

	records := log.Drain()
	require.NotEmpty(t, records)

	var tx, rx int
	for _, rec := range records {
		switch rec.Dir {
		case capture.TX:
			tx++
		case capture.RX:
			rx++
		}
	}
	assert.Equal(t, 3, tx) // start + 1 block + ack
	assert.Equal(t, 1, rx) // completion
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, 2, opts.FlowWindow)
	assert.Equal(t, 500*time.Millisecond, opts.StatusWaitTimeout)
	assert.Equal(t, 30*time.Second, opts.CompletionWaitTimeout)
	assert.Equal(t, 500*time.Millisecond, opts.AckDrainGrace)
	assert.Equal(t, uint16(1), opts.Copies)
	assert.False(t, opts.SkipStatusWait)
}
