package generation

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/chatstream/lookup"
	"github.com/tailored-agentic-units/chatstream/observability"
)

// LookupThenAnswer resolves the routing hint against a data source, folds
// the result into the prompt as a system note, then answers directly. A
// failed or timed-out lookup never fails the turn.
type LookupThenAnswer struct {
	resolver *lookup.Resolver
	direct   *DirectAnswer
	observer observability.Observer
}

// NewLookupThenAnswer creates the lookup path. The resolver carries the
// lookup timeout.
func NewLookupThenAnswer(resolver *lookup.Resolver, direct *DirectAnswer, observer observability.Observer) *LookupThenAnswer {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &LookupThenAnswer{
		resolver: resolver,
		direct:   direct,
		observer: observer,
	}
}

// Produce implements Path.
func (l *LookupThenAnswer) Produce(ctx context.Context, req *Request) Fragments {
	return Once(func(yield func(string, error) bool) {
		if hint := req.Decision.Hint; hint != nil && l.resolver != nil {
			res, err := l.resolver.Resolve(ctx, req.SessionID, hint.Source, hint.Query)
			if err != nil && ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			if err != nil {
				l.failed(ctx, req, err)
			} else {
				l.succeeded(req, res)
			}
		} else {
			l.failed(ctx, req, fmt.Errorf("%w: no lookup source configured", lookup.ErrUnknownSource))
		}

		for frag, err := range l.direct.Produce(ctx, req) {
			if !yield(frag, err) || err != nil {
				return
			}
		}
	})
}

func (l *LookupThenAnswer) succeeded(req *Request, res *lookup.Result) {
	query := res.Query
	if res.Statement != "" {
		query = res.Statement
	}
	req.Annotate("lookup_query", query)
	req.Annotate("lookup_rows", res.Rows)
	req.Note(fmt.Sprintf("Data lookup result for %q:\n%s\n\nUse this data to answer the user's question.", res.Query, res.Text))
}

func (l *LookupThenAnswer) failed(ctx context.Context, req *Request, err error) {
	req.Annotate("lookup_failed", true)
	req.Annotate("lookup_error", err.Error())
	req.Note("The data lookup for this question failed (" + err.Error() + "). Answer from general knowledge and tell the user that live data was unavailable.")

	l.observer.OnEvent(ctx, observability.NewEvent(EventLookupNote, observability.LevelWarning, "generation.LookupThenAnswer", map[string]any{
		"session_id": req.SessionID,
		"error":      err.Error(),
	}))
}
