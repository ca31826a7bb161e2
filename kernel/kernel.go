// Package kernel is the composition root of a chatstream server. It builds
// every subsystem from configuration and serves the WebSocket hub, the
// Connect control service, health and metrics on one HTTP listener.
//
// The kernel initializes from configuration via New. Functional options
// supply prebuilt subsystems in place of the configured ones.
//
//	k, err := kernel.New(ctx, &cfg)
//	err = k.Run(ctx)
package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/chatstream/control"
	"github.com/tailored-agentic-units/chatstream/generation"
	"github.com/tailored-agentic-units/chatstream/hub"
	"github.com/tailored-agentic-units/chatstream/lookup"
	"github.com/tailored-agentic-units/chatstream/metrics"
	"github.com/tailored-agentic-units/chatstream/observability"
	"github.com/tailored-agentic-units/chatstream/router"
	"github.com/tailored-agentic-units/chatstream/session"
	"github.com/tailored-agentic-units/chatstream/store"
	"github.com/tailored-agentic-units/chatstream/stream"
)

// Option configures a Kernel before config-driven initialization. A
// subsystem supplied by an option replaces the one the config would create.
type Option func(*Kernel)

// WithLogger sets the logger backing the "slog" observer.
func WithLogger(l *slog.Logger) Option {
	return func(k *Kernel) { k.logger = l }
}

// WithObserver replaces the configured observers.
func WithObserver(o observability.Observer) Option {
	return func(k *Kernel) { k.observer = o }
}

// WithStore overrides the config-created store. The kernel does not close
// a supplied store.
func WithStore(s store.Store) Option {
	return func(k *Kernel) { k.store = s }
}

// WithModel overrides the config-created language model.
func WithModel(m generation.Model) Option {
	return func(k *Kernel) { k.model = m }
}

// WithLookupRegistry overrides the lookup sources built from config.
func WithLookupRegistry(r *lookup.Registry) Option {
	return func(k *Kernel) { k.lookups = r }
}

// Kernel owns the running subsystems of one chatstream server.
type Kernel struct {
	cfg      Config
	logger   *slog.Logger
	observer observability.Observer

	store    store.Store
	model    generation.Model
	lookups  *lookup.Registry
	manager  *session.Manager
	hub      *hub.Hub
	service  *control.Service
	handler  http.Handler
	closers  []io.Closer
	ownStore bool

	ready        atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a Kernel from configuration. On error every resource opened
// so far is released.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Kernel, error) {
	k := &Kernel{cfg: *cfg}
	for _, opt := range opts {
		opt(k)
	}

	if err := k.build(ctx); err != nil {
		k.release()
		return nil, err
	}
	return k, nil
}

func (k *Kernel) build(ctx context.Context) error {
	if k.logger == nil {
		k.logger = slog.Default()
	}
	if k.observer == nil {
		obs, err := resolveObservers(k.cfg.Observers, k.logger)
		if err != nil {
			return fmt.Errorf("failed to resolve observers: %w", err)
		}
		k.observer = obs
	}

	if k.store == nil {
		st, err := store.New(ctx, &k.cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		k.store = st
		k.ownStore = true
	}

	if k.model == nil {
		m, err := generation.NewModel(&k.cfg.Generation)
		if err != nil {
			return fmt.Errorf("failed to create model: %w", err)
		}
		k.model = m
	}

	if k.lookups == nil && len(k.cfg.Lookup.Sources) > 0 {
		reg, closers, err := lookup.Build(ctx, &k.cfg.Lookup, k.model)
		if err != nil {
			return fmt.Errorf("failed to build lookup sources: %w", err)
		}
		k.lookups = reg
		k.closers = append(k.closers, closers...)
	}

	var resolver *lookup.Resolver
	if k.lookups != nil {
		resolver = lookup.NewResolver(k.lookups,
			lookup.WithTimeout(k.cfg.Lookup.Timeout.Std()),
			lookup.WithRecorder(k.store),
			lookup.WithObserver(k.observer),
		)
	}

	rt, err := router.New(&k.cfg.Router, k.model)
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	adapter, err := generation.New(&k.cfg.Generation, k.model, resolver, k.observer)
	if err != nil {
		return fmt.Errorf("failed to create generation adapter: %w", err)
	}

	enc, err := stream.New(&k.cfg.Stream)
	if err != nil {
		return fmt.Errorf("failed to create stream encoder: %w", err)
	}

	k.manager, err = session.NewManager(&k.cfg.Session, k.store, adapter,
		session.WithRouter(rt),
		session.WithEncoder(enc),
		session.WithWindowSize(k.cfg.Memory.Size),
		session.WithObserver(k.observer),
	)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	k.hub, err = hub.New(&k.cfg.Hub, k.manager, hub.WithObserver(k.observer))
	if err != nil {
		return fmt.Errorf("failed to create hub: %w", err)
	}
	if err := metrics.Register(metrics.NewHubCollector(k.hub.Counters())); err != nil {
		return fmt.Errorf("failed to register hub metrics: %w", err)
	}

	k.service = control.NewService(k.store,
		control.WithManager(k.manager),
		control.WithLookups(k.lookups),
		control.WithSuggester(k.model),
		control.WithServiceObserver(k.observer),
	)

	k.handler = control.NewRouter(&k.cfg.Server, control.Routes{
		Service:     k.service,
		Socket:      k.hub,
		SocketPath:  k.hub.Path(),
		Metrics:     metrics.Handler(),
		MetricsPath: k.cfg.Server.MetricsPath,
		Ready:       k.ready.Load,
	}, k.observer)

	return nil
}

// release closes resources opened during a failed build.
func (k *Kernel) release() {
	for _, c := range k.closers {
		c.Close()
	}
	if k.ownStore && k.store != nil {
		k.store.Close()
	}
}

// Handler returns the HTTP handler serving every surface.
func (k *Kernel) Handler() http.Handler {
	return k.handler
}

// Manager returns the session manager.
func (k *Kernel) Manager() *session.Manager {
	return k.manager
}

// Hub returns the WebSocket hub.
func (k *Kernel) Hub() *hub.Hub {
	return k.hub
}

// Store returns the persistence backend.
func (k *Kernel) Store() store.Store {
	return k.store
}

// Run listens on the configured address and serves until ctx is cancelled.
func (k *Kernel) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", k.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", k.cfg.Server.Addr, err)
	}
	return k.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts the
// kernel down. A clean shutdown returns nil.
func (k *Kernel) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           k.handler,
		ReadHeaderTimeout: k.cfg.Server.ReadHeaderTimeout.Std(),
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	k.event(ctx, EventStart, observability.LevelInfo, map[string]any{
		"addr":   ln.Addr().String(),
		"store":  k.cfg.Store.Driver,
		"model":  k.cfg.Generation.Provider,
		"router": k.cfg.Router.Strategy,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		k.ready.Store(true)
		k.event(ctx, EventReady, observability.LevelInfo, map[string]any{"addr": ln.Addr().String()})
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%w: %w", ErrServing, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		return k.shutdown(shutdownCtx, srv)
	})

	return g.Wait()
}

// Shutdown releases every subsystem. It is safe to call more than once.
func (k *Kernel) Shutdown(ctx context.Context) error {
	return k.shutdown(ctx, nil)
}

func (k *Kernel) shutdown(ctx context.Context, srv *http.Server) error {
	k.shutdownOnce.Do(func() {
		k.ready.Store(false)
		k.event(ctx, EventShutdown, observability.LevelInfo, map[string]any{"sessions": k.manager.Len()})

		var result *multierror.Error

		// Sessions close first so connected clients receive their closing
		// frames before the sockets go away.
		if err := k.manager.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("sessions: %w", err))
		}
		if err := k.hub.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("hub: %w", err))
		}
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				result = multierror.Append(result, fmt.Errorf("server: %w", err))
			}
		}
		for _, c := range k.closers {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("lookup source: %w", err))
			}
		}
		if k.ownStore {
			if err := k.store.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("store: %w", err))
			}
		}

		k.shutdownErr = result.ErrorOrNil()
		if k.shutdownErr != nil {
			k.event(ctx, EventShutdownError, observability.LevelError, map[string]any{"error": k.shutdownErr.Error()})
		}
	})
	return k.shutdownErr
}

func (k *Kernel) event(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	k.observer.OnEvent(ctx, observability.NewEvent(typ, level, "kernel", data))
}
