package generation

import (
	"context"
	"strings"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

// Prompt is everything a Model needs to answer one user turn.
type Prompt struct {
	System  string
	History []protocol.Turn
	// Notes are system-level facts gathered for this turn only, such as a
	// lookup result or the reason a lookup failed.
	Notes   []string
	Message string
}

// Output is the result of a Model call: either a live Stream or a complete
// Text that the caller slices itself.
type Output struct {
	Text   string
	Stream Fragments
}

// Model is the opaque language model capability. Generate errors wrap
// ErrUnavailable, ErrTimeout or ErrBadRequest when the failure class is
// known. Implementations must be safe for concurrent use.
type Model interface {
	Generate(ctx context.Context, p Prompt) (*Output, error)
	Complete(ctx context.Context, system, prompt string) (string, error)
}

const historyLead = "Based on the following conversation history, answer the user's new question:\n\n"

// Render flattens history and message into a single prompt string. With no
// history the bare message is returned.
func Render(history []protocol.Turn, message string) string {
	var lines []string
	for _, t := range history {
		switch t.Role {
		case protocol.RoleUser:
			lines = append(lines, "User: "+t.Content)
		case protocol.RoleAssistant:
			lines = append(lines, "Assistant: "+t.Content)
		}
	}
	if len(lines) == 0 {
		return message
	}
	return historyLead + strings.Join(lines, "\n") + "\n\nUser: " + message
}

// SystemText joins the system prompt and the per-turn notes.
func (p Prompt) SystemText() string {
	parts := make([]string, 0, len(p.Notes)+1)
	if p.System != "" {
		parts = append(parts, p.System)
	}
	parts = append(parts, p.Notes...)
	return strings.Join(parts, "\n\n")
}

// Text renders the user-facing part of the prompt.
func (p Prompt) Text() string {
	return Render(p.History, p.Message)
}
