package control

import "github.com/tailored-agentic-units/chatstream/observability"

const (
	EventCall           observability.EventType = "control.call"
	EventSessionDeleted observability.EventType = "control.session.deleted"
	EventRequest        observability.EventType = "control.http.request"
	EventPanic          observability.EventType = "control.http.panic"

	EventSuggestFallback observability.EventType = "control.suggest.fallback"
)
