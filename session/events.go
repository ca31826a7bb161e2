package session

import "github.com/tailored-agentic-units/chatstream/observability"

const (
	EventAttach          observability.EventType = "session.attach"
	EventExpired         observability.EventType = "session.expired"
	EventClose           observability.EventType = "session.close"
	EventBusy            observability.EventType = "session.busy"
	EventJobStart        observability.EventType = "session.job.start"
	EventJobComplete     observability.EventType = "session.job.complete"
	EventJobFailed       observability.EventType = "session.job.failed"
	EventJobTimeout      observability.EventType = "session.job.timeout"
	EventJobStopped      observability.EventType = "session.job.stopped"
	EventPersistRetry    observability.EventType = "session.persist.retry"
	EventPersistFailed   observability.EventType = "session.persist.failed"
	EventRouteDecision   observability.EventType = "session.route"
	EventStateTransition observability.EventType = "session.state"
)
