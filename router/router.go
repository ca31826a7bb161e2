// Package router decides, for each user turn, whether the answer can be
// generated directly or needs a structured-data lookup first.
//
// Every Router must be deterministic for identical inputs. Decide wraps any
// Router with the fail-open policy: a failing router never blocks a turn, it
// degrades to RouteDirect and reports why.
package router

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

// Route names a generation path.
type Route string

const (
	RouteDirect Route = "DIRECT"
	RouteLookup Route = "LOOKUP_THEN_ANSWER"
)

// Valid reports whether r is a known route.
func (r Route) Valid() bool {
	return r == RouteDirect || r == RouteLookup
}

// Hint tells the lookup path which source to consult and with what query.
type Hint struct {
	Source string `json:"source"`
	Query  string `json:"query"`
}

// Decision is the outcome of routing one user turn.
type Decision struct {
	Route  Route  `json:"route"`
	Hint   *Hint  `json:"hint,omitempty"`
	Reason string `json:"reason,omitempty"`
	// Error is set when routing failed and the decision fell open to
	// RouteDirect.
	Error string `json:"error,omitempty"`
}

// Direct returns a RouteDirect decision.
func Direct(reason string) Decision {
	return Decision{Route: RouteDirect, Reason: reason}
}

// Lookup returns a RouteLookup decision for the given source and query.
func Lookup(source, query, reason string) Decision {
	return Decision{
		Route:  RouteLookup,
		Hint:   &Hint{Source: source, Query: query},
		Reason: reason,
	}
}

// Metadata returns the fields recorded on the assistant turn.
func (d Decision) Metadata() map[string]any {
	meta := map[string]any{"route": string(d.Route)}
	if d.Reason != "" {
		meta["route_reason"] = d.Reason
	}
	if d.Hint != nil && d.Hint.Source != "" {
		meta["lookup_source"] = d.Hint.Source
	}
	if d.Error != "" {
		meta["route_error"] = d.Error
	}
	return meta
}

// Router picks a generation path for a user turn given the recent history.
type Router interface {
	Route(ctx context.Context, text string, history []protocol.Turn) (Decision, error)
}

// Func adapts a function to the Router interface.
type Func func(ctx context.Context, text string, history []protocol.Turn) (Decision, error)

func (f Func) Route(ctx context.Context, text string, history []protocol.Turn) (Decision, error) {
	return f(ctx, text, history)
}

// Decide routes text with r and applies the fail-open policy: any error,
// invalid route or lookup decision without a query yields RouteDirect with
// Error describing the failure.
func Decide(ctx context.Context, r Router, text string, history []protocol.Turn) Decision {
	if r == nil {
		return Direct("no router configured")
	}

	d, err := r.Route(ctx, text, history)
	if err != nil {
		return Decision{Route: RouteDirect, Error: err.Error()}
	}

	if !d.Route.Valid() {
		return Decision{Route: RouteDirect, Error: fmt.Sprintf("%v: %q", ErrUnknownRoute, d.Route)}
	}

	if d.Route == RouteLookup && (d.Hint == nil || d.Hint.Query == "") {
		return Decision{Route: RouteDirect, Error: ErrMissingHint.Error()}
	}

	return d
}
