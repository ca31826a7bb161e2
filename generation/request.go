package generation

import (
	"maps"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
	"github.com/tailored-agentic-units/chatstream/router"
)

// Request carries one routed user turn through a Path. A Path records what
// happened in Metadata while producing; read it only after the fragments are
// drained.
type Request struct {
	SessionID string
	Message   string
	History   []protocol.Turn
	Decision  router.Decision
	Notes     []string
	Metadata  map[string]any
}

// NewRequest creates a Request seeded with the decision's metadata.
func NewRequest(sessionID, message string, history []protocol.Turn, d router.Decision) *Request {
	return &Request{
		SessionID: sessionID,
		Message:   message,
		History:   history,
		Decision:  d,
		Metadata:  d.Metadata(),
	}
}

// Annotate records a metadata field.
func (r *Request) Annotate(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
}

// Note appends a system note for the model.
func (r *Request) Note(text string) {
	r.Notes = append(r.Notes, text)
}

// MetadataCopy returns an independent copy of the recorded metadata.
func (r *Request) MetadataCopy() map[string]any {
	return maps.Clone(r.Metadata)
}

func (r *Request) prompt(system string) Prompt {
	return Prompt{
		System:  system,
		History: r.History,
		Notes:   r.Notes,
		Message: r.Message,
	}
}
