package hub

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/chatstream/observability"
	"github.com/tailored-agentic-units/chatstream/session"
)

// Option configures a Hub after config-driven initialization.
type Option func(*Hub)

// WithObserver sets the observer for connection events.
func WithObserver(o observability.Observer) Option {
	return func(h *Hub) {
		if o != nil {
			h.observer = o
		}
	}
}

// WithMetrics shares an existing counter set, so a collector created
// before the hub can report on it.
func WithMetrics(m *Metrics) Option {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// Hub is the WebSocket endpoint. It implements http.Handler.
type Hub struct {
	cfg      Config
	manager  *session.Manager
	upgrader websocket.Upgrader
	metrics  *Metrics
	observer observability.Observer

	mu      sync.Mutex
	conns   map[*conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// New creates a Hub that binds connections to sessions of mgr.
func New(cfg *Config, mgr *session.Manager, opts ...Option) (*Hub, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	h := &Hub{
		cfg:      *cfg,
		manager:  mgr,
		metrics:  NewMetrics(),
		observer: observability.NoOpObserver{},
		conns:    make(map[*conn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}

	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return slices.Contains(h.cfg.AllowedOrigins, "*") || slices.Contains(h.cfg.AllowedOrigins, origin)
}

// ServeHTTP upgrades the request and serves the connection until it ends.
// The session id comes from the session_id query parameter; without one a
// new session is created.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closing := h.closing
	h.mu.Unlock()
	if closing {
		http.Error(w, ErrShuttingDown.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.event(r.Context(), EventUpgradeFailed, observability.LevelWarning, map[string]any{
			"remote": r.RemoteAddr,
			"error":  err.Error(),
		})
		return
	}

	c := newConn(h, ws)
	if !h.register(c) {
		c.cancel()
		_ = ws.Close()
		return
	}
	defer h.unregister(c)
	go c.writeLoop()

	s, err := h.manager.Attach(r.Context(), r.URL.Query().Get("session_id"), c)
	if err != nil {
		fe := session.Classify(err)
		h.event(r.Context(), EventAttachFailed, observability.LevelWarning, map[string]any{
			"session_id": r.URL.Query().Get("session_id"),
			"code":       fe.Code,
			"error":      err.Error(),
		})
		c.reply(fe.Frame())
		c.Close(fe.Message)
		<-c.done
		return
	}
	c.sid.Store(s.ID())

	h.event(r.Context(), EventConnOpen, observability.LevelInfo, map[string]any{
		"session_id": s.ID(),
		"remote":     c.remote,
	})

	c.readLoop(s)
	c.Close("session closed")
	<-c.done
}

func (h *Hub) register(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[c] = struct{}{}
	h.wg.Add(1)
	h.metrics.RecordConnection(1)
	return true
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()

	h.metrics.RecordConnection(-1)
	h.event(context.Background(), EventConnClose, observability.LevelInfo, map[string]any{
		"session_id": c.sessionID(),
		"remote":     c.remote,
		"reason":     c.reason,
	})
	h.wg.Done()
}

// Metrics returns a snapshot of the connection counters.
func (h *Hub) Metrics() MetricsSnapshot {
	return h.metrics.Snapshot()
}

// Counters returns the live counter set.
func (h *Hub) Counters() *Metrics {
	return h.metrics
}

// Path returns the configured mount path.
func (h *Hub) Path() string {
	return h.cfg.Path
}

// Shutdown refuses new connections, closes live ones and waits for their
// handlers to return. Sessions should be closed first so clients receive
// their closing frames.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	live := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		live = append(live, c)
	}
	h.mu.Unlock()

	for _, c := range live {
		c.Close("server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) event(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	h.observer.OnEvent(ctx, observability.NewEvent(typ, level, "hub", data))
}
