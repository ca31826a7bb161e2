// Package session owns per-conversation state: the lifecycle state machine,
// the memory window and the single in-flight generation job. A Manager binds
// sessions to client connections and rebuilds them from the store when a
// client reconnects.
package session

import (
	"context"
	"errors"
	"fmt"
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

// Sink is the outbound side of a client connection.
type Sink interface {
	// Send queues a frame for delivery, waiting at most as long as ctx
	// allows.
	Send(ctx context.Context, f protocol.Frame) error
	// Close terminates the connection.
	Close(reason string)
}

// Option configures a Manager after config-driven initialization.
type Option func(*Manager)

// WithRouter sets the turn router. Without one every turn is answered
// directly.
func WithRouter(r router.Router) Option {
	return func(m *Manager) { m.router = r }
}

// WithEncoder overrides the passthrough encoder.
func WithEncoder(e *stream.Encoder) Option {
	return func(m *Manager) {
		if e != nil {
			m.encoder = e
		}
	}
}

// WithTokenCounter overrides the config-selected token counter.
func WithTokenCounter(c TokenCounter) Option {
	return func(m *Manager) {
		if c != nil {
			m.counter = c
		}
	}
}

// WithWindowSize sets the memory window length.
func WithWindowSize(k int) Option {
	return func(m *Manager) {
		if k > 0 {
			m.windowSize = k
		}
	}
}

// WithObserver sets the observer for session events.
func WithObserver(o observability.Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// Manager binds sessions to connections. Its lock guards only the registry;
// each Session serialises its own state.
type Manager struct {
	store      store.Store
	path       generation.Path
	router     router.Router
	encoder    *stream.Encoder
	counter    TokenCounter
	pool       *Pool
	observer   observability.Observer
	windowSize int
	cfg        Config

	mu       sync.Mutex
	sessions map[string]*Session
	// attaching holds one channel per id with an Attach in progress; it is
	// closed when that Attach returns.
	attaching map[string]chan struct{}
	// draining holds closed sessions whose job has not finished yet.
	draining map[string]*Session
}

// NewManager creates a Manager that persists through st and answers through
// path.
func NewManager(cfg *Config, st store.Store, path generation.Path, opts ...Option) (*Manager, error) {
	counter, err := NewTokenCounter(cfg.Tokenizer)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:      st,
		path:       path,
		encoder:    stream.NewPassthrough(),
		counter:    counter,
		observer:   observability.NoOpObserver{},
		windowSize: memory.DefaultSize,
		cfg:        *cfg,
		sessions:   make(map[string]*Session),
		attaching:  make(map[string]chan struct{}),
		draining:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.pool = NewPool(st, cfg.Workers, uint(cfg.PersistAttempts), cfg.PersistDelay.Std(), cfg.PersistTimeout.Std(), m.observer)
	return m, nil
}

// Attach binds sink to session id, minting a new id when id is empty. A
// live session with the same id is closed and its job awaited before the
// memory window is rebuilt from the store, so the two never generate at
// once. Attaches to one id are serialised. The first frame sent on sink is
// the connected system frame carrying the session id.
func (m *Manager) Attach(ctx context.Context, id string, sink Sink) (*Session, error) {
	if id == "" {
		id = store.NewID()
	}

	unlock, err := m.lockID(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if old, ok := m.bound(id); ok {
		if err := m.replace(ctx, old); err != nil {
			return nil, err
		}
	}

	rec, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	turns, err := m.store.ListRecentTurns(ctx, id, m.windowSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s := newSession(ctx, m, rec, sink)
	s.window.Rebuild(turns)
	if err := s.transition(StateActive); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.observer.OnEvent(ctx, observability.NewEvent(EventAttach, observability.LevelInfo, "session.Attach", map[string]any{
		"session_id": id,
		"turns":      len(turns),
	}))

	if err := sink.Send(ctx, protocol.NewSystem(id, protocol.ActionConnected, "")); err != nil {
		s.close(err, "connection lost")
		return nil, err
	}
	return s, nil
}

// replace closes old and waits for its job to finish writing.
func (m *Manager) replace(ctx context.Context, old *Session) error {
	old.close(ErrReplaced, "replaced by a new connection")
	if err := old.settled(ctx); err != nil {
		return fmt.Errorf("waiting for replaced session %s: %w", old.id, err)
	}
	return nil
}

// lockID waits for any other Attach of id to return, then claims id.
func (m *Manager) lockID(ctx context.Context, id string) (func(), error) {
	for {
		m.mu.Lock()
		busy, ok := m.attaching[id]
		if !ok {
			held := make(chan struct{})
			m.attaching[id] = held
			m.mu.Unlock()
			return func() {
				m.mu.Lock()
				delete(m.attaching, id)
				m.mu.Unlock()
				close(held)
			}, nil
		}
		m.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Manager) load(ctx context.Context, id string) (*store.Session, error) {
	rec, err := m.store.GetSession(ctx, id)
	switch {
	case err == nil:
		if ttl := m.cfg.ExpiryTTL.Std(); ttl > 0 && time.Since(rec.UpdatedAt) > ttl {
			m.observer.OnEvent(ctx, observability.NewEvent(EventExpired, observability.LevelInfo, "session.Attach", map[string]any{
				"session_id": id,
				"updated_at": rec.UpdatedAt,
			}))
			return nil, fmt.Errorf("%w: %s", ErrExpired, id)
		}
		return rec, nil
	case errors.Is(err, store.ErrNotFound):
		rec, err = m.store.CreateOrGetSession(ctx, id, store.DefaultTitle(id))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		return rec, nil
	case errors.Is(err, store.ErrInvalidID):
		return nil, NewFrameError(protocol.CodeInvalidFrame, "Invalid session id.", err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
}

// Get returns the live session bound to id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// bound returns the live or draining session for id.
func (m *Manager) bound(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, true
	}
	s, ok := m.draining[id]
	return s, ok
}

// release unbinds a closed session. One whose job is still running stays
// visible to Attach until settle.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.id] == s {
		delete(m.sessions, s.id)
	}

	s.mu.Lock()
	running := s.job != nil
	s.mu.Unlock()
	if running {
		m.draining[s.id] = s
	}
}

// settle forgets s once its job has released the slot.
func (m *Manager) settle(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draining[s.id] == s {
		delete(m.draining, s.id)
	}
}

// Shutdown closes every live session and waits for queued writes.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range live {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close("server shutting down")
		}()
	}
	wg.Wait()

	done := make(chan struct{})
	go func() {
		m.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for persistence: %w", ctx.Err())
	}
}
