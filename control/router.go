package control

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tailored-agentic-units/chatstream/observability"
)

// Routes lists what NewRouter mounts. Nil handlers are skipped.
type Routes struct {
	Service *Service
	// Socket serves the WebSocket endpoint at SocketPath.
	Socket     http.Handler
	SocketPath string
	// Metrics serves the Prometheus scrape endpoint at MetricsPath.
	Metrics     http.Handler
	MetricsPath string
	// Ready reports readiness for /healthz.
	Ready func() bool
}

// NewRouter creates the chi router serving every HTTP surface.
func NewRouter(cfg *Config, routes Routes, observer observability.Observer) *chi.Mux {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(observer))
	r.Use(Recovery(observer))

	r.Get("/healthz", health(routes.Ready))

	if routes.Socket != nil && routes.SocketPath != "" {
		r.Handle(routes.SocketPath, routes.Socket)
	}
	if routes.Metrics != nil && routes.MetricsPath != "" {
		r.Handle(routes.MetricsPath, routes.Metrics)
	}
	if routes.Service != nil {
		path, handler := routes.Service.Handler()
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.Token))
			r.Mount(path, handler)
		})
	}
	return r
}

func health(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if ready != nil && !ready() {
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

// RequestLogger reports method, path, status and duration of each request.
// The wrapped writer keeps http.Hijacker, so WebSocket upgrades pass
// through.
func RequestLogger(observer observability.Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			observer.OnEvent(r.Context(), observability.NewEvent(EventRequest, observability.LevelVerbose, "control.http", map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"request_id":  middleware.GetReqID(r.Context()),
				"duration_ms": time.Since(start).Milliseconds(),
			}))
		})
	}
}

// Recovery turns a handler panic into a 500 and an error event.
func Recovery(observer observability.Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					observer.OnEvent(r.Context(), observability.NewEvent(EventPanic, observability.LevelError, "control.http", map[string]any{
						"path":  r.URL.Path,
						"panic": rec,
					}))
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// BearerAuth requires "Authorization: Bearer <token>". An empty token
// disables the check.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
