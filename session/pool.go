package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/semaphore"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
	"github.com/tailored-agentic-units/chatstream/observability"
	"github.com/tailored-agentic-units/chatstream/store"
)

// Result is the outcome of one persistence request.
type Result struct {
	Turn protocol.Turn
	Err  error
}

// Pool runs turn writes on a bounded number of workers, retrying transient
// failures with exponential backoff. Callers receive the outcome on a
// channel so no write ever blocks a connection's read loop.
type Pool struct {
	store    store.Store
	sem      *semaphore.Weighted
	attempts uint
	delay    time.Duration
	timeout  time.Duration
	observer observability.Observer
	wg       sync.WaitGroup
}

// NewPool creates a Pool with at most workers concurrent writes.
func NewPool(st store.Store, workers int, attempts uint, delay, timeout time.Duration, observer observability.Observer) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if attempts == 0 {
		attempts = 1
	}
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Pool{
		store:    st,
		sem:      semaphore.NewWeighted(int64(workers)),
		attempts: attempts,
		delay:    delay,
		timeout:  timeout,
		observer: observer,
	}
}

// Append persists turn for sessionID. The returned channel receives exactly
// one Result. Cancellation of ctx is ignored once the write is queued; the
// pool's own timeout bounds it.
func (p *Pool) Append(ctx context.Context, sessionID string, turn protocol.Turn) <-chan Result {
	out := make(chan Result, 1)
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		wctx := context.WithoutCancel(ctx)
		if p.timeout > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(wctx, p.timeout)
			defer cancel()
		}

		if err := p.sem.Acquire(wctx, 1); err != nil {
			out <- Result{Err: fmt.Errorf("%w: %w", ErrPersistence, err)}
			return
		}
		defer p.sem.Release(1)

		var saved protocol.Turn
		err := retry.Do(
			func() error {
				t, err := p.store.AppendTurn(wctx, sessionID, turn)
				if err != nil {
					return err
				}
				saved = t
				return nil
			},
			retry.Context(wctx),
			retry.Attempts(p.attempts),
			retry.Delay(p.delay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrInvalidID)
			}),
			retry.OnRetry(func(n uint, err error) {
				p.observer.OnEvent(wctx, observability.NewEvent(EventPersistRetry, observability.LevelWarning, "session.Pool", map[string]any{
					"session_id": sessionID,
					"role":       string(turn.Role),
					"attempt":    n + 1,
					"error":      err.Error(),
				}))
			}),
		)
		if err != nil {
			p.observer.OnEvent(wctx, observability.NewEvent(EventPersistFailed, observability.LevelError, "session.Pool", map[string]any{
				"session_id": sessionID,
				"role":       string(turn.Role),
				"error":      err.Error(),
			}))
			out <- Result{Err: fmt.Errorf("%w: %w", ErrPersistence, err)}
			return
		}
		out <- Result{Turn: saved}
	}()

	return out
}

// Wait blocks until every queued write has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
