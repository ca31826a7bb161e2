// Package lookup provides the structured-data capability consulted before
// answering LOOKUP_THEN_ANSWER turns: a registry of named sources (SQL
// databases, MCP tools) and a Resolver that bounds each query in time and
// records it in the audit log.
package lookup

import "context"

// Result is the outcome of one lookup.
type Result struct {
	Source    string `json:"source"`
	Query     string `json:"query"`
	Statement string `json:"statement,omitempty"`
	Text      string `json:"text"`
	Rows      int    `json:"rows"`
}

// Capability answers a query against one data source. Implementations must
// honour ctx cancellation and be safe for concurrent use.
type Capability interface {
	Query(ctx context.Context, query string) (*Result, error)
}

// Func adapts a function to the Capability interface.
type Func func(ctx context.Context, query string) (*Result, error)

func (f Func) Query(ctx context.Context, query string) (*Result, error) {
	return f(ctx, query)
}

// Completer is the text completion capability used for text-to-SQL
// translation.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}
