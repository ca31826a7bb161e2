package lookup

import (
	"context"
	"fmt"
	"strings"
)

// DefaultSuggestions is how many questions Suggest proposes when no limit
// is given.
const DefaultSuggestions = 5

const suggestSystemPrompt = `You propose questions a user could ask about a database.
Reply with one question per line and nothing else.`

// Suggest asks c for up to limit questions answerable from schema. The
// optional focus narrows the topic.
func Suggest(ctx context.Context, c Completer, schema *Schema, focus string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultSuggestions
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Schema:\n%s\n\nPropose %d questions.", schema.Description, limit)
	if focus = strings.TrimSpace(focus); focus != "" {
		fmt.Fprintf(&b, " Focus on: %s", focus)
	}

	reply, err := c.Complete(ctx, suggestSystemPrompt, b.String())
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}

	var out []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•0123456789.) "))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("suggest: %w", ErrNoSuggestions)
	}
	return out, nil
}

// TableSuggestions proposes simple questions for each table without a
// model.
func TableSuggestions(schema *Schema, limit int) []string {
	if limit <= 0 {
		limit = DefaultSuggestions
	}

	var out []string
	for _, t := range schema.Tables {
		for _, q := range []string{
			"How many rows are in " + t.Name + "?",
			"Show the first 10 rows of " + t.Name + ".",
		} {
			if len(out) == limit {
				return out
			}
			out = append(out, q)
		}
	}
	return out
}
