package metrics

import (
	"context"
	"time"

	"github.com/tailored-agentic-units/chatstream/generation"
	"github.com/tailored-agentic-units/chatstream/lookup"
	"github.com/tailored-agentic-units/chatstream/observability"
	"github.com/tailored-agentic-units/chatstream/session"
)

// Observer turns observability events into Prometheus samples. Events it
// does not know are ignored.
type Observer struct{}

func NewObserver() Observer {
	return Observer{}
}

func init() {
	observability.RegisterObserver("metrics", NewObserver())
}

func (Observer) OnEvent(ctx context.Context, event observability.Event) {
	switch event.Type {
	case session.EventJobComplete:
		ObserveJob(stringOf(event.Data, "route"), time.Duration(intOf(event.Data, "duration_ms"))*time.Millisecond, int(intOf(event.Data, "tokens")))
	case session.EventJobFailed:
		IncJob("failed")
	case session.EventJobTimeout:
		IncJob("timeout")
	case session.EventJobStopped:
		IncJob("stopped")
	case session.EventBusy:
		IncJob("busy")
	case session.EventRouteDecision:
		IncRoute(stringOf(event.Data, "route"))
	case session.EventPersistRetry:
		IncPersist("retry")
	case session.EventPersistFailed:
		IncPersist("failed")
	case session.EventAttach:
		IncSession("attach")
	case session.EventExpired:
		IncSession("expired")
	case session.EventClose:
		IncSession("close")
	case lookup.EventQuery:
		IncLookup("ok")
	case lookup.EventFailed:
		IncLookup("failed")
	case lookup.EventBlocked:
		IncLookup("blocked")
	case generation.EventDegraded:
		IncDegraded(stringOf(event.Data, "kind"))
	case generation.EventInterrupted:
		IncDegraded("interrupted")
	}
}

func stringOf(data map[string]any, key string) string {
	if s, ok := data[key].(string); ok && s != "" {
		return s
	}
	return "unknown"
}

func intOf(data map[string]any, key string) int64 {
	switch v := data[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
