package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
	"github.com/tailored-agentic-units/chatstream/generation"
	"github.com/tailored-agentic-units/chatstream/memory"
	"github.com/tailored-agentic-units/chatstream/observability"
	"github.com/tailored-agentic-units/chatstream/router"
	"github.com/tailored-agentic-units/chatstream/store"
	"github.com/tailored-agentic-units/chatstream/stream"
)

// sendTimeout bounds control frames sent outside a job's own context.
const sendTimeout = 5 * time.Second

// Session is one live conversation bound to a connection. Its mutex guards
// the lifecycle state and the job slot; at most one job runs at a time.
type Session struct {
	id        string
	createdAt time.Time
	mgr       *Manager
	sink      Sink
	window    *memory.Window
	ctx       context.Context
	cancel    context.CancelCauseFunc

	mu    sync.Mutex
	state State
	job   *job

	closeOnce sync.Once
	closed    chan struct{}
}

type job struct {
	id      string
	cancel  context.CancelCauseFunc
	release context.CancelFunc
	done    chan struct{}
	// stopped requires Session.mu.
	stopped bool
}

func newSession(ctx context.Context, m *Manager, rec *store.Session, sink Sink) *Session {
	sctx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	return &Session{
		id:        rec.ID,
		createdAt: rec.CreatedAt,
		mgr:       m,
		sink:      sink,
		window:    memory.NewWindow(m.windowSize),
		ctx:       sctx,
		cancel:    cancel,
		state:     StateConnecting,
		closed:    make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a generation job is live.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job != nil
}

// History returns the memory window.
func (s *Session) History() []protocol.Turn {
	return s.window.Snapshot()
}

// Done is closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} { return s.closed }

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setState(to)
}

// setState requires s.mu.
func (s *Session) setState(to State) error {
	if !CanTransition(s.state, to) {
		return &transitionError{from: s.state, to: to}
	}
	from := s.state
	s.state = to
	s.mgr.observer.OnEvent(s.ctx, observability.NewEvent(EventStateTransition, observability.LevelVerbose, "session.Session", map[string]any{
		"session_id": s.id,
		"from":       from.String(),
		"to":         to.String(),
	}))
	return nil
}

// Submit starts a generation job for text. It returns ErrBusy while a job
// is live, without changing state, and ErrEmptyMessage for blank input.
// The job reports its outcome on the sink.
func (s *Session) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.job != nil || s.state == StateGenerating {
		s.mu.Unlock()
		s.mgr.observer.OnEvent(ctx, observability.NewEvent(EventBusy, observability.LevelInfo, "session.Submit", map[string]any{
			"session_id": s.id,
		}))
		return ErrBusy
	}
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := s.setState(StateGenerating); err != nil {
		s.mu.Unlock()
		return err
	}

	jctx, cancel := context.WithCancelCause(s.ctx)
	release := func() {}
	if timeout := s.mgr.cfg.GenerationTimeout.Std(); timeout > 0 {
		jctx, release = context.WithTimeoutCause(jctx, timeout, ErrGenerationTimeout)
	}
	j := &job{
		id:      store.NewID(),
		cancel:  cancel,
		release: release,
		done:    make(chan struct{}),
	}
	s.job = j
	s.mu.Unlock()

	go s.run(jctx, j, text)
	return nil
}

// Stop cancels the live job. The client receives a stopped system frame
// once the job has wound down, or immediately when nothing is running.
func (s *Session) Stop() {
	s.mu.Lock()
	j := s.job
	if j != nil {
		j.stopped = true
	}
	s.mu.Unlock()

	if j == nil {
		s.send(protocol.NewSystem(s.id, protocol.ActionStopped, "no generation in progress"))
		return
	}
	j.cancel(ErrStopped)
}

// Close moves the session to CLOSING, cancels the live job, waits a bounded
// time for it, closes the connection and ends in CLOSED.
func (s *Session) Close(reason string) {
	s.close(ErrClosed, reason)
}

func (s *Session) close(cause error, reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		_ = s.setState(StateClosing)
		j := s.job
		s.mu.Unlock()

		if j != nil {
			j.cancel(cause)
			select {
			case <-j.done:
			case <-time.After(s.mgr.cfg.CloseTimeout.Std()):
			}
		}

		s.send(protocol.NewSystem(s.id, protocol.ActionClosing, reason))
		s.sink.Close(reason)
		s.cancel(cause)

		s.mu.Lock()
		_ = s.setState(StateClosed)
		s.mu.Unlock()

		s.mgr.release(s)
		s.mgr.observer.OnEvent(s.ctx, observability.NewEvent(EventClose, observability.LevelInfo, "session.Close", map[string]any{
			"session_id": s.id,
			"reason":     reason,
		}))
		close(s.closed)
	})
}

// settled waits until the job left behind by close has released its slot.
// A cancelled job still finishes its queued turn writes, which the pool
// bounds, so the wait follows only ctx.
func (s *Session) settled(ctx context.Context) error {
	s.mu.Lock()
	j := s.job
	s.mu.Unlock()

	if j == nil {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run(ctx context.Context, j *job, text string) {
	start := time.Now()
	defer s.finish(j)

	s.mgr.observer.OnEvent(ctx, observability.NewEvent(EventJobStart, observability.LevelInfo, "session.Submit", map[string]any{
		"session_id": s.id,
		"job_id":     j.id,
		"chars":      len(text),
	}))

	history := s.window.Snapshot()

	res := <-s.mgr.pool.Append(ctx, s.id, protocol.NewTurn(protocol.RoleUser, text, nil))
	if res.Err != nil {
		s.failed(ctx, j, res.Err)
		s.send(Classify(res.Err).Frame())
		return
	}
	s.window.Append(res.Turn)

	if ctx.Err() != nil {
		s.aborted(ctx, j)
		return
	}

	decision := router.Decide(ctx, s.mgr.router, text, history)
	s.mgr.observer.OnEvent(ctx, observability.NewEvent(EventRouteDecision, observability.LevelVerbose, "session.Submit", map[string]any{
		"session_id": s.id,
		"route":      string(decision.Route),
		"reason":     decision.Reason,
		"error":      decision.Error,
	}))

	req := generation.NewRequest(s.id, text, history, decision)
	sum, err := s.mgr.encoder.Encode(ctx, s.mgr.path.Produce(ctx, req), func(ctx context.Context, c stream.Chunk) error {
		if c.Kind == stream.KindError {
			return s.sink.Send(ctx, Classify(c.Err).Frame())
		}
		return s.sink.Send(ctx, c.Frame(s.id))
	})
	if err != nil {
		if ctx.Err() != nil {
			s.aborted(ctx, j)
			return
		}
		s.failed(ctx, j, err)
		return
	}

	tokens := s.mgr.counter.Count(sum.Text)
	meta := req.MetadataCopy()
	meta["token_count"] = tokens
	meta["chunk_count"] = sum.Chunks
	meta["duration_ms"] = time.Since(start).Milliseconds()

	res = <-s.mgr.pool.Append(ctx, s.id, protocol.NewTurn(protocol.RoleAssistant, sum.Text, meta))
	if res.Err != nil {
		s.failed(ctx, j, res.Err)
		s.send(Classify(res.Err).Frame())
		return
	}
	s.window.Append(res.Turn)

	s.send(protocol.NewComplete(s.id, res.Turn.ID, sum.Text, tokens))

	s.mgr.observer.OnEvent(ctx, observability.NewEvent(EventJobComplete, observability.LevelInfo, "session.Submit", map[string]any{
		"session_id":  s.id,
		"job_id":      j.id,
		"route":       string(decision.Route),
		"chunks":      sum.Chunks,
		"tokens":      tokens,
		"duration_ms": time.Since(start).Milliseconds(),
	}))
}

// finish releases the job slot and returns the session to ACTIVE unless it
// is closing.
func (s *Session) finish(j *job) {
	s.mu.Lock()
	if s.job == j {
		s.job = nil
	}
	active := s.state == StateGenerating
	if active {
		_ = s.setState(StateActive)
	}
	stopped := j.stopped
	s.mu.Unlock()

	j.release()
	j.cancel(nil)
	close(j.done)
	s.mgr.settle(s)

	if active && stopped {
		s.send(protocol.NewSystem(s.id, protocol.ActionStopped, ""))
	}
}

// aborted handles a job whose context ended. Only a timeout is reported to
// the client here; a stop is acknowledged by finish and a close needs no
// frame.
func (s *Session) aborted(ctx context.Context, j *job) {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrGenerationTimeout):
		s.mgr.observer.OnEvent(s.ctx, observability.NewEvent(EventJobTimeout, observability.LevelWarning, "session.Submit", map[string]any{
			"session_id": s.id,
			"job_id":     j.id,
			"timeout":    s.mgr.cfg.GenerationTimeout.String(),
		}))
		s.send(Classify(ErrGenerationTimeout).Frame())
	case errors.Is(cause, ErrStopped):
		s.mgr.observer.OnEvent(s.ctx, observability.NewEvent(EventJobStopped, observability.LevelInfo, "session.Stop", map[string]any{
			"session_id": s.id,
			"job_id":     j.id,
		}))
	default:
		s.mgr.observer.OnEvent(s.ctx, observability.NewEvent(EventJobStopped, observability.LevelInfo, "session.Close", map[string]any{
			"session_id": s.id,
			"job_id":     j.id,
			"cause":      errString(cause),
		}))
	}
}

func (s *Session) failed(ctx context.Context, j *job, err error) {
	s.mgr.observer.OnEvent(s.ctx, observability.NewEvent(EventJobFailed, observability.LevelError, "session.Submit", map[string]any{
		"session_id": s.id,
		"job_id":     j.id,
		"code":       Classify(err).Code,
		"error":      err.Error(),
	}))
}

// send delivers a control frame with a bounded wait, independent of any
// job context.
func (s *Session) send(f protocol.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	_ = s.sink.Send(ctx, f)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type transitionError struct {
	from, to State
}

func (e *transitionError) Error() string {
	return ErrInvalidTransition.Error() + ": " + e.from.String() + " -> " + e.to.String()
}

func (e *transitionError) Unwrap() error { return ErrInvalidTransition }
