package router

import (
	"context"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

// Fallback tries Primary and, when it fails, answers with Secondary.
type Fallback struct {
	Primary   Router
	Secondary Router
}

func (f Fallback) Route(ctx context.Context, text string, history []protocol.Turn) (Decision, error) {
	d, err := f.Primary.Route(ctx, text, history)
	if err == nil {
		return d, nil
	}

	d, ferr := f.Secondary.Route(ctx, text, history)
	if ferr != nil {
		return Decision{}, ferr
	}
	d.Reason = "fallback (" + err.Error() + "): " + d.Reason
	return d, nil
}
