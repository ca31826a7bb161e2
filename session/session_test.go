package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/chatstream/core/config"
	"github.com/tailored-agentic-units/chatstream/core/protocol"
	"github.com/tailored-agentic-units/chatstream/generation"
	"github.com/tailored-agentic-units/chatstream/lookup"
	"github.com/tailored-agentic-units/chatstream/router"
	"github.com/tailored-agentic-units/chatstream/session"
	"github.com/tailored-agentic-units/chatstream/store"
)

const waitFor = 2 * time.Second

type sink struct {
	frames chan protocol.Frame
	closed atomic.Bool
}

func newSink() *sink {
	return &sink{frames: make(chan protocol.Frame, 256)}
}

func (s *sink) Send(ctx context.Context, f protocol.Frame) error {
	if s.closed.Load() {
		return errors.New("connection closed")
	}
	select {
	case s.frames <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *sink) Close(string) { s.closed.Store(true) }

func (s *sink) next(t *testing.T) protocol.Frame {
	t.Helper()
	select {
	case f := <-s.frames:
		return f
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// until collects frames up to and including the first one match accepts.
func (s *sink) until(t *testing.T, match func(protocol.Frame) bool) []protocol.Frame {
	t.Helper()
	var got []protocol.Frame
	for {
		f := s.next(t)
		got = append(got, f)
		if match(f) {
			return got
		}
	}
}

func (s *sink) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case f := <-s.frames:
		t.Fatalf("unexpected frame %#v", f)
	case <-time.After(d):
	}
}

func isTerminal(f protocol.Frame) bool {
	switch f.(type) {
	case protocol.CompleteFrame, protocol.ErrorFrame:
		return true
	}
	return false
}

func isSystem(action string) func(protocol.Frame) bool {
	return func(f protocol.Frame) bool {
		sf, ok := f.(protocol.SystemFrame)
		return ok && sf.Action == action
	}
}

type harness struct {
	store   store.Store
	model   *generation.Scripted
	manager *session.Manager
}

type setup struct {
	cfg      func(*session.Config)
	store    store.Store
	resolver *lookup.Resolver
	router   router.Router
}

func newHarness(t *testing.T, s setup, replies ...generation.Reply) *harness {
	t.Helper()

	st := s.store
	if st == nil {
		st = store.NewMemory()
	}
	model := generation.NewScripted(replies...)

	gcfg := generation.DefaultConfig()
	adapter, err := generation.New(&gcfg, model, s.resolver, nil)
	require.NoError(t, err)

	cfg := session.DefaultConfig()
	cfg.PersistDelay = config.Duration(time.Millisecond)
	if s.cfg != nil {
		s.cfg(&cfg)
	}

	mgr, err := session.NewManager(&cfg, st, adapter, session.WithRouter(s.router), session.WithWindowSize(10))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	return &harness{store: st, model: model, manager: mgr}
}

func (h *harness) attach(t *testing.T, id string) (*session.Session, *sink) {
	t.Helper()
	out := newSink()
	s, err := h.manager.Attach(context.Background(), id, out)
	require.NoError(t, err)

	first, ok := out.next(t).(protocol.SystemFrame)
	require.True(t, ok, "first frame must be a system frame")
	require.Equal(t, protocol.ActionConnected, first.Action)
	require.Equal(t, s.ID(), first.SessionID)
	return s, out
}

func waitState(t *testing.T, s *session.Session, want session.State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, waitFor, 5*time.Millisecond,
		"session stuck in %s, want %s", s.State(), want)
}

func TestScenario_DirectAnswer(t *testing.T) {
	h := newHarness(t, setup{}, generation.Reply{Stream: []string{"Hi", " there!"}})
	s, out := h.attach(t, "")

	require.NoError(t, s.Submit(context.Background(), "hello"))
	frames := out.until(t, isTerminal)

	require.Len(t, frames, 4)
	assert.Equal(t, protocol.NewChunk(s.ID(), 0, "Hi", false), frames[0])
	assert.Equal(t, protocol.NewChunk(s.ID(), 1, " there!", false), frames[1])
	assert.Equal(t, protocol.NewChunk(s.ID(), 2, "", true), frames[2])

	complete, ok := frames[3].(protocol.CompleteFrame)
	require.True(t, ok)
	assert.Equal(t, "Hi there!", complete.FullResponse)
	assert.Equal(t, 2, complete.TokenCount)

	turns, err := h.store.ListRecentTurns(context.Background(), s.ID(), 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, protocol.RoleUser, turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, protocol.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Hi there!", turns[1].Content)
	assert.Equal(t, complete.MessageID, turns[1].ID)
	assert.Equal(t, "DIRECT", turns[1].Metadata["route"])
	assert.EqualValues(t, 2, turns[1].Metadata["token_count"])

	waitState(t, s, session.StateActive)
	assert.Len(t, s.History(), 2)
}

func TestScenario_BusyRejectsSecondMessage(t *testing.T) {
	h := newHarness(t, setup{}, generation.Reply{Stream: []string{"slow", " answer"}, Delay: 100 * time.Millisecond})
	s, out := h.attach(t, "")

	require.NoError(t, s.Submit(context.Background(), "first"))
	err := s.Submit(context.Background(), "second")

	assert.ErrorIs(t, err, session.ErrBusy)
	assert.Equal(t, protocol.CodeBusy, session.Classify(err).Code)
	assert.Equal(t, session.StateGenerating, s.State())

	out.until(t, isTerminal)
	waitState(t, s, session.StateActive)

	assert.Len(t, h.model.Prompts(), 1)
	turns, err := h.store.ListRecentTurns(context.Background(), s.ID(), 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Content)
}

func TestScenario_LookupTimeoutAnswersDirectly(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	reg := lookup.NewRegistry()
	require.NoError(t, reg.Register("sql", lookup.Func(func(context.Context, string) (*lookup.Result, error) {
		<-release
		return &lookup.Result{}, nil
	})))
	resolver := lookup.NewResolver(reg, lookup.WithTimeout(20*time.Millisecond))

	lookupAll := router.Func(func(_ context.Context, text string, _ []protocol.Turn) (router.Decision, error) {
		return router.Lookup("sql", text, "test"), nil
	})

	h := newHarness(t, setup{resolver: resolver, router: lookupAll}, generation.Reply{Text: "Live data is unavailable right now."})
	s, out := h.attach(t, "")

	require.NoError(t, s.Submit(context.Background(), "revenue this week?"))
	frames := out.until(t, isTerminal)

	complete, ok := frames[len(frames)-1].(protocol.CompleteFrame)
	require.True(t, ok, "got %#v", frames[len(frames)-1])
	assert.Equal(t, "Live data is unavailable right now.", complete.FullResponse)

	turns, err := h.store.ListRecentTurns(context.Background(), s.ID(), 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, true, turns[1].Metadata["lookup_failed"])
	assert.Equal(t, "LOOKUP_THEN_ANSWER", turns[1].Metadata["route"])
}

func TestScenario_ReconnectRebuildsWindow(t *testing.T) {
	h := newHarness(t, setup{},
		generation.Reply{Stream: []string{"Hi", " there!"}},
		generation.Reply{Stream: []string{"one", " two", " three", " four"}, Delay: 50 * time.Millisecond},
	)
	s, out := h.attach(t, "")

	require.NoError(t, s.Submit(context.Background(), "hello"))
	out.until(t, isTerminal)
	waitState(t, s, session.StateActive)

	require.NoError(t, s.Submit(context.Background(), "tell me more"))
	_, ok := out.next(t).(protocol.ChunkFrame)
	require.True(t, ok)

	s.Close("connection lost")
	<-s.Done()
	assert.Equal(t, session.StateClosed, s.State())
	before := s.History()

	s2, _ := h.attach(t, s.ID())
	after := s2.History()

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Content, after[i].Content)
		assert.Equal(t, before[i].Seq, after[i].Seq)
	}

	turns, err := h.store.ListRecentTurns(context.Background(), s.ID(), 10)
	require.NoError(t, err)
	require.Len(t, turns, 3, "aborted generation must not persist an assistant turn")
	assert.Equal(t, "tell me more", turns[2].Content)
}

func TestSession_Stop(t *testing.T) {
	h := newHarness(t, setup{},
		generation.Reply{Stream: []string{"a", "b", "c", "d"}, Delay: 50 * time.Millisecond},
	)
	s, out := h.attach(t, "")

	require.NoError(t, s.Submit(context.Background(), "go"))
	_, ok := out.next(t).(protocol.ChunkFrame)
	require.True(t, ok)

	s.Stop()
	frames := out.until(t, isSystem(protocol.ActionStopped))
	for _, f := range frames {
		if _, ok := f.(protocol.CompleteFrame); ok {
			t.Fatal("stopped generation completed")
		}
	}
	assert.Equal(t, session.StateActive, s.State())

	turns, err := h.store.ListRecentTurns(context.Background(), s.ID(), 10)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestSession_StopIdle(t *testing.T) {
	h := newHarness(t, setup{})
	s, out := h.attach(t, "")

	s.Stop()
	sf, ok := out.next(t).(protocol.SystemFrame)
	require.True(t, ok)
	assert.Equal(t, protocol.ActionStopped, sf.Action)
}

func TestSession_GenerationTimeout(t *testing.T) {
	h := newHarness(t, setup{cfg: func(c *session.Config) {
		c.GenerationTimeout = config.Duration(50 * time.Millisecond)
	}},
		generation.Reply{Stream: []string{"never"}, Delay: time.Second},
		generation.Reply{Text: "ok"},
	)
	s, out := h.attach(t, "")

	require.NoError(t, s.Submit(context.Background(), "slow"))
	frames := out.until(t, isTerminal)

	ef, ok := frames[len(frames)-1].(protocol.ErrorFrame)
	require.True(t, ok, "got %#v", frames[len(frames)-1])
	assert.Equal(t, protocol.CodeTimeout, ef.ErrorCode)

	waitState(t, s, session.StateActive)
	require.NoError(t, s.Submit(context.Background(), "again"))
	frames = out.until(t, isTerminal)
	_, ok = frames[len(frames)-1].(protocol.CompleteFrame)
	assert.True(t, ok)
}

func TestSession_MidStreamFailure(t *testing.T) {
	h := newHarness(t, setup{}, generation.Reply{Stream: []string{"Hi"}, StreamErr: errors.New("reset")})
	s, out := h.attach(t, "")

	require.NoError(t, s.Submit(context.Background(), "hello"))
	frames := out.until(t, isTerminal)

	require.Len(t, frames, 2)
	assert.Equal(t, protocol.NewChunk(s.ID(), 0, "Hi", false), frames[0])
	ef, ok := frames[1].(protocol.ErrorFrame)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeGenerationFailed, ef.ErrorCode)

	waitState(t, s, session.StateActive)
	turns, _ := h.store.ListRecentTurns(context.Background(), s.ID(), 10)
	assert.Len(t, turns, 1)
}

func TestSession_DegradedAnswerIsPersisted(t *testing.T) {
	h := newHarness(t, setup{}, generation.Reply{Err: generation.ErrUnavailable})
	s, out := h.attach(t, "")

	require.NoError(t, s.Submit(context.Background(), "hello"))
	frames := out.until(t, isTerminal)

	complete, ok := frames[len(frames)-1].(protocol.CompleteFrame)
	require.True(t, ok)
	assert.Contains(t, complete.FullResponse, "Sorry")

	turns, _ := h.store.ListRecentTurns(context.Background(), s.ID(), 10)
	require.Len(t, turns, 2)
	assert.Equal(t, true, turns[1].Metadata["degraded"])
	assert.Equal(t, generation.KindUnavailable, turns[1].Metadata["capability_error"])
}

func TestSession_EmptyMessage(t *testing.T) {
	h := newHarness(t, setup{})
	s, _ := h.attach(t, "")

	assert.ErrorIs(t, s.Submit(context.Background(), "  \n "), session.ErrEmptyMessage)
	assert.Equal(t, session.StateActive, s.State())
}

type flakyStore struct {
	store.Store
	failures atomic.Int32
}

func (f *flakyStore) AppendTurn(ctx context.Context, id string, turn protocol.Turn) (protocol.Turn, error) {
	if f.failures.Add(-1) >= 0 {
		return protocol.Turn{}, errors.New("database is locked")
	}
	return f.Store.AppendTurn(ctx, id, turn)
}

func TestSession_PersistenceRetried(t *testing.T) {
	st := &flakyStore{Store: store.NewMemory()}
	h := newHarness(t, setup{store: st}, generation.Reply{Text: "fine"})
	s, out := h.attach(t, "")

	st.failures.Store(2)
	require.NoError(t, s.Submit(context.Background(), "hello"))
	frames := out.until(t, isTerminal)

	_, ok := frames[len(frames)-1].(protocol.CompleteFrame)
	assert.True(t, ok, "got %#v", frames[len(frames)-1])
}

func TestSession_PersistenceFailure(t *testing.T) {
	st := &flakyStore{Store: store.NewMemory()}
	h := newHarness(t, setup{store: st}, generation.Reply{Text: "never"})
	s, out := h.attach(t, "")

	st.failures.Store(100)
	require.NoError(t, s.Submit(context.Background(), "hello"))
	frames := out.until(t, isTerminal)

	ef, ok := frames[len(frames)-1].(protocol.ErrorFrame)
	require.True(t, ok)
	assert.Equal(t, protocol.CodePersistence, ef.ErrorCode)
	assert.Len(t, frames, 1, "nothing may be generated after a failed user turn write")
	assert.Empty(t, h.model.Prompts())

	waitState(t, s, session.StateActive)
	assert.Empty(t, s.History())
}

func TestManager_ReplacesLiveBinding(t *testing.T) {
	h := newHarness(t, setup{})
	first, firstOut := h.attach(t, "")

	second, _ := h.attach(t, first.ID())

	firstOut.until(t, isSystem(protocol.ActionClosing))
	assert.True(t, firstOut.closed.Load())
	assert.Equal(t, session.StateClosed, first.State())
	assert.Equal(t, session.StateActive, second.State())
	assert.Equal(t, 1, h.manager.Len())

	got, ok := h.manager.Get(first.ID())
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestManager_ExpiredSession(t *testing.T) {
	h := newHarness(t, setup{cfg: func(c *session.Config) {
		c.ExpiryTTL = config.Duration(time.Millisecond)
	}})

	_, err := h.store.CreateOrGetSession(context.Background(), "old-session", "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = h.manager.Attach(context.Background(), "old-session", newSink())
	assert.ErrorIs(t, err, session.ErrExpired)
	assert.Equal(t, protocol.CodeSessionExpired, session.Classify(err).Code)
	assert.Zero(t, h.manager.Len())
}

func TestManager_MintsIDAndPersistsSession(t *testing.T) {
	h := newHarness(t, setup{})
	s, _ := h.attach(t, "")

	require.NotEmpty(t, s.ID())
	rec, err := h.store.GetSession(context.Background(), s.ID())
	require.NoError(t, err)
	assert.Equal(t, store.DefaultTitle(s.ID()), rec.Title)
}

func TestSession_AtMostOneJob(t *testing.T) {
	h := newHarness(t, setup{}, generation.Reply{Stream: []string{"x"}, Delay: 100 * time.Millisecond})
	s, out := h.attach(t, "")

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		busy     atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := s.Submit(context.Background(), "hi"); {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, session.ErrBusy):
				busy.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(19), busy.Load())
	out.until(t, isTerminal)
}

func TestManager_Shutdown(t *testing.T) {
	h := newHarness(t, setup{}, generation.Reply{Stream: []string{"x", "y"}, Delay: 200 * time.Millisecond})
	s, _ := h.attach(t, "")
	require.NoError(t, s.Submit(context.Background(), "hi"))

	require.NoError(t, h.manager.Shutdown(context.Background()))
	assert.Equal(t, session.StateClosed, s.State())
	assert.Zero(t, h.manager.Len())
	assert.ErrorIs(t, s.Submit(context.Background(), "late"), session.ErrClosed)
}

type slowStore struct {
	store.Store
	delay time.Duration
}

func (s *slowStore) AppendTurn(ctx context.Context, id string, turn protocol.Turn) (protocol.Turn, error) {
	time.Sleep(s.delay)
	return s.Store.AppendTurn(ctx, id, turn)
}

func TestManager_ReconnectWaitsForReplacedJob(t *testing.T) {
	st := &slowStore{Store: store.NewMemory(), delay: 300 * time.Millisecond}
	h := newHarness(t, setup{store: st, cfg: func(c *session.Config) {
		c.CloseTimeout = config.Duration(20 * time.Millisecond)
	}}, generation.Reply{Stream: []string{"a", "b"}})
	first, _ := h.attach(t, "")
	require.NoError(t, first.Submit(context.Background(), "first"))

	second, out := h.attach(t, first.ID())
	assert.False(t, first.Busy(), "replaced session still has a live job")

	require.NoError(t, second.Submit(context.Background(), "second"))
	out.until(t, isTerminal)
	waitState(t, second, session.StateActive)

	turns, err := h.store.ListRecentTurns(context.Background(), second.ID(), 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, "second", turns[1].Content)
	assert.Equal(t, "ab", turns[2].Content)

	history := second.History()
	require.Len(t, history, len(turns), "window diverges from persisted turns")
	for i := range turns {
		assert.Equal(t, turns[i].ID, history[i].ID)
		assert.Equal(t, turns[i].Content, history[i].Content)
	}
}

func TestManager_ReconnectAfterClientCloseWaitsForJob(t *testing.T) {
	st := &slowStore{Store: store.NewMemory(), delay: 300 * time.Millisecond}
	h := newHarness(t, setup{store: st, cfg: func(c *session.Config) {
		c.CloseTimeout = config.Duration(20 * time.Millisecond)
	}})
	first, _ := h.attach(t, "")
	require.NoError(t, first.Submit(context.Background(), "first"))

	first.Close("closed by client")
	<-first.Done()

	second, _ := h.attach(t, first.ID())
	assert.False(t, first.Busy())

	history := second.History()
	require.Len(t, history, 1)
	assert.Equal(t, "first", history[0].Content)
}

func TestSession_UserTurnPersistedBeforeAnswer(t *testing.T) {
	h := newHarness(t, setup{}, generation.Reply{Stream: []string{"Hi", " there!"}, Delay: 100 * time.Millisecond})
	s, out := h.attach(t, "")

	require.NoError(t, s.Submit(context.Background(), "hello"))
	_, ok := out.next(t).(protocol.ChunkFrame)
	require.True(t, ok)

	turns, err := h.store.ListRecentTurns(context.Background(), s.ID(), 10)
	require.NoError(t, err)
	require.Len(t, turns, 1, "assistant turn written before generation completed")
	assert.Equal(t, protocol.RoleUser, turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)

	out.until(t, isTerminal)

	turns, err = h.store.ListRecentTurns(context.Background(), s.ID(), 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, protocol.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Hi there!", turns[1].Content)
}

func TestSession_StopAlwaysAcknowledged(t *testing.T) {
	const rounds = 50
	replies := make([]generation.Reply, rounds)
	for i := range replies {
		replies[i] = generation.Reply{Text: "ok"}
	}
	h := newHarness(t, setup{}, replies...)
	s, out := h.attach(t, "")

	for range rounds {
		require.NoError(t, s.Submit(context.Background(), "go"))
		s.Stop()
		out.until(t, isSystem(protocol.ActionStopped))
		waitState(t, s, session.StateActive)
		require.Eventually(t, func() bool { return !s.Busy() }, waitFor, time.Millisecond)
	}
	out.quiet(t, 50*time.Millisecond)
}
