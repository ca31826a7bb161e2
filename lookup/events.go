package lookup

import "github.com/tailored-agentic-units/chatstream/observability"

const (
	EventQuery   observability.EventType = "lookup.query"
	EventFailed  observability.EventType = "lookup.failed"
	EventBlocked observability.EventType = "lookup.blocked"
)
