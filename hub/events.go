package hub

import "github.com/tailored-agentic-units/chatstream/observability"

const (
	EventConnOpen      observability.EventType = "hub.conn.open"
	EventConnClose     observability.EventType = "hub.conn.close"
	EventUpgradeFailed observability.EventType = "hub.upgrade.failed"
	EventAttachFailed  observability.EventType = "hub.attach.failed"
	EventFrameRejected observability.EventType = "hub.frame.rejected"
	EventFrameDropped  observability.EventType = "hub.frame.dropped"
	EventRateLimited   observability.EventType = "hub.rate_limited"
	EventSlowConsumer  observability.EventType = "hub.slow_consumer"
	EventIdleTimeout   observability.EventType = "hub.idle_timeout"
)
