package generation

import (
	"context"

	"github.com/tailored-agentic-units/chatstream/router"
)

// Adapter dispatches a request to the path named by its routing decision.
type Adapter struct {
	direct Path
	lookup Path
}

// NewAdapter creates an Adapter. A nil lookup path sends every turn through
// direct.
func NewAdapter(direct, lookup Path) *Adapter {
	return &Adapter{direct: direct, lookup: lookup}
}

// Produce implements Path.
func (a *Adapter) Produce(ctx context.Context, req *Request) Fragments {
	if req.Decision.Route != router.RouteLookup {
		return a.direct.Produce(ctx, req)
	}
	if a.lookup == nil {
		req.Annotate("lookup_failed", true)
		req.Annotate("lookup_error", "no lookup path configured")
		return a.direct.Produce(ctx, req)
	}
	return a.lookup.Produce(ctx, req)
}
