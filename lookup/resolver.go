package lookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/chatstream/observability"
	"github.com/tailored-agentic-units/chatstream/store"
)

// DefaultTimeout bounds a lookup when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Recorder persists lookup audit records.
type Recorder interface {
	RecordQuery(ctx context.Context, rec store.QueryRecord) (store.QueryRecord, error)
}

// StatementError carries the statement that was rejected or failed so it
// can be audited.
type StatementError struct {
	Statement string
	Err       error
}

func (e *StatementError) Error() string { return e.Err.Error() }
func (e *StatementError) Unwrap() error { return e.Err }

// Resolver runs lookups against a Registry with a hard time bound and
// records every attempt.
type Resolver struct {
	registry *Registry
	timeout  time.Duration
	recorder Recorder
	observer observability.Observer
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTimeout bounds each lookup.
func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRecorder enables the audit log.
func WithRecorder(rec Recorder) ResolverOption {
	return func(r *Resolver) {
		r.recorder = rec
	}
}

// WithObserver sets the observer for lookup events.
func WithObserver(o observability.Observer) ResolverOption {
	return func(r *Resolver) {
		if o != nil {
			r.observer = o
		}
	}
}

// NewResolver creates a Resolver over reg.
func NewResolver(reg *Registry, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry: reg,
		timeout:  DefaultTimeout,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Timeout returns the per-lookup bound.
func (r *Resolver) Timeout() time.Duration { return r.timeout }

// Registry returns the underlying source registry.
func (r *Resolver) Registry() *Registry { return r.registry }

type outcome struct {
	result *Result
	err    error
}

// Resolve queries source on behalf of a session. It returns within the
// configured timeout even if the capability ignores cancellation; a timeout
// is reported as ErrTimeout, caller cancellation as the context error.
func (r *Resolver) Resolve(ctx context.Context, sessionID, source, query string) (*Result, error) {
	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		res, err := r.registry.Query(qctx, source, query)
		done <- outcome{result: res, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-qctx.Done():
		o.err = qctx.Err()
	}
	elapsed := time.Since(start)

	if o.err != nil {
		if ctx.Err() != nil {
			o.err = ctx.Err()
		} else if errors.Is(o.err, context.DeadlineExceeded) {
			o.err = fmt.Errorf("%w: %s after %s", ErrTimeout, source, r.timeout)
		}
	}

	r.audit(ctx, sessionID, source, query, o, elapsed)
	return o.result, o.err
}

func (r *Resolver) audit(ctx context.Context, sessionID, source, query string, o outcome, elapsed time.Duration) {
	rec := store.QueryRecord{
		SessionID: sessionID,
		Source:    source,
		Question:  query,
		Status:    store.QuerySuccess,
		Duration:  elapsed,
	}

	data := map[string]any{
		"session_id":  sessionID,
		"source":      source,
		"duration_ms": elapsed.Milliseconds(),
	}

	event, level := EventQuery, observability.LevelInfo
	if o.err != nil {
		rec.Status = store.QueryFailed
		rec.Error = o.err.Error()
		event, level = EventFailed, observability.LevelWarning
		if errors.Is(o.err, ErrUnsafeStatement) {
			rec.Status = store.QueryBlocked
			event = EventBlocked
		}
		var se *StatementError
		if errors.As(o.err, &se) {
			rec.Statement = se.Statement
		}
		data["error"] = o.err.Error()
	} else {
		rec.Statement = o.result.Statement
		rec.ResultCount = o.result.Rows
		data["rows"] = o.result.Rows
	}

	r.observer.OnEvent(ctx, observability.NewEvent(event, level, "lookup.Resolve", data))

	if r.recorder == nil || sessionID == "" {
		return
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if _, err := r.recorder.RecordQuery(actx, rec); err != nil {
		r.observer.OnEvent(ctx, observability.NewEvent(EventFailed, observability.LevelWarning, "lookup.audit", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		}))
	}
}
