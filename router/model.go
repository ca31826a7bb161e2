package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

// Completer is the single-shot text completion capability a model-backed
// router consults.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

const modelSystemPrompt = `You classify chat messages. Decide whether answering the user's latest message requires querying one of the available data sources first.
Reply with a single JSON object and nothing else:
{"route":"DIRECT"|"LOOKUP_THEN_ANSWER","source":"<source name>","query":"<what to look up>","reason":"<short reason>"}`

// Model asks a Completer to classify each turn and parses its JSON verdict.
type Model struct {
	completer Completer
	sources   []string
	history   int
}

// ModelOption configures a Model router.
type ModelOption func(*Model)

// WithSources names the lookup sources the model may choose from. The first
// source is used when the verdict omits one.
func WithSources(sources ...string) ModelOption {
	return func(m *Model) {
		m.sources = sources
	}
}

// WithHistory sets how many recent turns are shown to the classifier.
func WithHistory(turns int) ModelOption {
	return func(m *Model) {
		m.history = turns
	}
}

// NewModel creates a model-backed Router.
func NewModel(completer Completer, opts ...ModelOption) *Model {
	m := &Model{
		completer: completer,
		sources:   []string{"sql"},
		history:   4,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Route(ctx context.Context, text string, history []protocol.Turn) (Decision, error) {
	reply, err := m.completer.Complete(ctx, modelSystemPrompt, m.prompt(text, history))
	if err != nil {
		return Decision{}, fmt.Errorf("classify: %w", err)
	}
	return m.parse(text, reply)
}

func (m *Model) prompt(text string, history []protocol.Turn) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Available sources: %s\n", strings.Join(m.sources, ", "))

	if m.history > 0 && len(history) > 0 {
		recent := history
		if len(recent) > m.history {
			recent = recent[len(recent)-m.history:]
		}
		b.WriteString("\nRecent conversation:\n")
		for _, turn := range recent {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
	}

	fmt.Fprintf(&b, "\nLatest message: %s", text)
	return b.String()
}

func (m *Model) parse(text, reply string) (Decision, error) {
	body := extractJSON(reply)
	if !gjson.Valid(body) {
		return Decision{}, fmt.Errorf("%w: %q", ErrInvalidVerdict, reply)
	}

	verdict := gjson.Parse(body)
	route := Route(strings.ToUpper(strings.TrimSpace(verdict.Get("route").String())))
	reason := verdict.Get("reason").String()

	switch route {
	case RouteDirect:
		return Direct(reason), nil
	case RouteLookup:
		source := verdict.Get("source").String()
		if source == "" && len(m.sources) > 0 {
			source = m.sources[0]
		}
		query := verdict.Get("query").String()
		if query == "" {
			query = text
		}
		return Lookup(source, query, reason), nil
	default:
		return Decision{}, fmt.Errorf("%w: route %q", ErrInvalidVerdict, route)
	}
}

// extractJSON trims markdown fences and surrounding prose from a model reply.
func extractJSON(reply string) string {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return reply
	}
	return reply[start : end+1]
}
