package generation

import "github.com/tailored-agentic-units/chatstream/observability"

const (
	EventDegraded    observability.EventType = "generation.degraded"
	EventInterrupted observability.EventType = "generation.interrupted"
	EventLookupNote  observability.EventType = "generation.lookup.note"
)
