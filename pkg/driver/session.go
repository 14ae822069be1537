package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lxprint/internal/groutine"
	"github.com/srg/lxprint/internal/protocol"
	"github.com/srg/lxprint/internal/ringchan"
)

// frameBuffer sizes the receive-path ring. The device sends at most a
// handful of control frames per job; the ring only needs to absorb the
// completion-retry burst without blocking the notification callback.
const frameBuffer = 32

// session owns all protocol state for one job. It is single-use: a
// subsequent print builds a fresh session even after success. The receive
// goroutine only delivers decoded frames; every state mutation happens on the
// goroutine running run().
type session struct {
	tr   Transport
	job  *protocol.Job
	opts Options
	flow *FlowController
	log  *logrus.Entry

	state  State
	frames *ringchan.RingChannel[protocol.ControlFrame]

	// capability words from the initial status frame; opaque beyond having
	// been received
	statusSeen bool
	status     protocol.ControlFrame
}

func newSession(tr Transport, job *protocol.Job, opts Options, logger *logrus.Logger) *session {
	return &session{
		tr:     tr,
		job:    job,
		opts:   opts,
		flow:   NewFlowController(opts.FlowWindow),
		log:    logger.WithField("blocks", job.BlockCount()),
		state:  StateIdle,
		frames: ringchan.New[protocol.ControlFrame](frameBuffer),
	}
}

func (s *session) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	groutine.Go(ctx, "lxprint-recv", s.receiveLoop)

	if err := s.awaitStatus(ctx); err != nil {
		return s.fail(err)
	}
	if err := s.start(); err != nil {
		return s.fail(err)
	}
	if err := s.stream(ctx); err != nil {
		return s.fail(err)
	}
	if err := s.awaitCompletion(ctx); err != nil {
		return s.fail(err)
	}
	if err := s.acknowledge(); err != nil {
		return s.fail(err)
	}

	s.transition(StateDone)
	s.drain(ctx)
	s.log.Info("Print job completed")
	return nil
}

func (s *session) transition(next State) {
	s.log.WithFields(logrus.Fields{"from": s.state, "to": next}).Debug("State transition")
	s.state = next
	if s.opts.Progress != nil {
		s.opts.Progress(next.String())
	}
}

// fail converts any component-level error into the Failed terminal state.
// Context errors are wrapped so callers can still match them with errors.Is.
func (s *session) fail(err error) error {
	s.transition(StateFailed)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("print job cancelled: %w", err)
	}
	s.log.WithError(err).Error("Print job failed")
	return err
}

// receiveLoop is the session's only consumer of the transport's notification
// stream. It decodes control frames and forwards them as immutable events;
// malformed or unknown frames are logged and dropped here so the state
// machine only ever sees well-formed frames. The ring closes when the stream
// does, which the waiting phases surface as ErrStreamClosed.
func (s *session) receiveLoop(ctx context.Context) {
	defer s.frames.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-s.tr.Notifications():
			if !ok {
				s.log.Warn("Notification stream closed")
				return
			}
			frame, err := protocol.DecodeControl(raw)
			if err != nil {
				s.log.WithError(err).WithField("raw", fmt.Sprintf("% X", raw)).
					Debug("Discarding undecodable frame")
				continue
			}
			s.frames.Send(frame)
		}
	}
}

// awaitStatus waits for the device's opening status frame. The status is
// informational capability data, so a timeout proceeds rather than fails.
func (s *session) awaitStatus(ctx context.Context) error {
	s.transition(StateAwaitingStatus)
	if s.opts.SkipStatusWait {
		return nil
	}

	timer := time.NewTimer(s.opts.StatusWaitTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.log.Debug("No status frame within wait window, proceeding")
			return nil
		case frame, ok := <-s.frames.C():
			if !ok {
				return ErrStreamClosed
			}
			if frame.Op != protocol.OpStatus {
				s.log.WithField("op", frame.Op).Debug("Ignoring pre-start frame")
				continue
			}
			s.statusSeen = true
			s.status = frame
			s.log.WithFields(logrus.Fields{
				"w1": frame.W1, "w2": frame.W2, "w3": frame.W3,
			}).Debug("Device status received")
			return nil
		}
	}
}

// start announces the job. The device may echo the frame back; the echo is
// informational and gets discarded by the later waiting phases.
func (s *session) start() error {
	s.transition(StateStarting)

	frame := protocol.StartFrame(s.job.BlockCount(), s.job.Copies)
	if err := s.tr.WriteWithoutResponse(frame.Encode()); err != nil {
		return &TransportError{Op: "start", Err: err}
	}
	return nil
}

// stream sends every block strictly in index order. The flow window bounds
// how many writes are outstanding; it never reorders them.
func (s *session) stream(ctx context.Context) error {
	s.transition(StateStreaming)

	for i, block := range s.job.Blocks {
		if err := s.flow.Acquire(ctx); err != nil {
			return err
		}
		data, err := protocol.EncodeData(uint16(i), block)
		if err != nil {
			s.flow.Release()
			return err
		}
		if err := s.tr.WriteWithoutResponse(data); err != nil {
			s.flow.Release()
			return &TransportError{Op: "block", Err: err}
		}
		s.flow.Release()
	}

	s.log.Debug("All blocks handed to transport")
	return nil
}

// awaitCompletion waits for the completion frame matching this job's block
// count. Start echoes, mid-progress frames and anything else arriving in
// the meantime are observed and discarded without changing state.
func (s *session) awaitCompletion(ctx context.Context) error {
	s.transition(StateAwaitingCompletion)

	timer := time.NewTimer(s.opts.CompletionWaitTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrJobTimeout
		case frame, ok := <-s.frames.C():
			if !ok {
				return ErrStreamClosed
			}
			if frame.IsCompletionOf(s.job.BlockCount()) {
				s.log.Debug("Completion frame received")
				return nil
			}
			s.log.WithFields(logrus.Fields{"op": frame.Op, "w1": frame.W1}).
				Debug("Ignoring frame while awaiting completion")
		}
	}
}

// acknowledge answers the completion notice. The wire reuses the start
// opcode with the ack token in w2; the device keeps retransmitting its
// completion frame until it sees this.
func (s *session) acknowledge() error {
	s.transition(StateAcknowledging)

	frame := protocol.AckFrame(s.job.BlockCount())
	if err := s.tr.WriteWithoutResponse(frame.Encode()); err != nil {
		return &TransportError{Op: "ack", Err: err}
	}
	return nil
}

// drain absorbs the completion retries and echoes the device keeps sending
// until it has observed the ack, so no stale frames are left queued for a
// subsequent job. Done is already reached; nothing here can fail the job,
// and no further ack is ever sent.
func (s *session) drain(ctx context.Context) {
	if s.opts.AckDrainGrace <= 0 {
		return
	}

	timer := time.NewTimer(s.opts.AckDrainGrace)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case frame, ok := <-s.frames.C():
			if !ok {
				return
			}
			s.log.WithField("op", frame.Op).Debug("Draining post-completion frame")
		}
	}
}
