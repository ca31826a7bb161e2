package generation

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/chatstream/observability"
)

// Path produces the answer fragments for one routed user turn.
type Path interface {
	Produce(ctx context.Context, req *Request) Fragments
}

// DirectAnswer calls the Model once and streams its answer. Single-string
// answers are sliced with the configured Splitter.
type DirectAnswer struct {
	model    Model
	splitter Splitter
	system   string
	observer observability.Observer
}

// DirectOption configures a DirectAnswer.
type DirectOption func(*DirectAnswer)

// WithSplitter sets how single-string answers are sliced.
func WithSplitter(s Splitter) DirectOption {
	return func(d *DirectAnswer) {
		if s != nil {
			d.splitter = s
		}
	}
}

// WithSystemPrompt sets the system prompt sent with every turn.
func WithSystemPrompt(system string) DirectOption {
	return func(d *DirectAnswer) {
		d.system = system
	}
}

// WithDirectObserver sets the observer for degradation events.
func WithDirectObserver(o observability.Observer) DirectOption {
	return func(d *DirectAnswer) {
		if o != nil {
			d.observer = o
		}
	}
}

// NewDirectAnswer creates a DirectAnswer over m.
func NewDirectAnswer(m Model, opts ...DirectOption) *DirectAnswer {
	d := &DirectAnswer{
		model:    m,
		splitter: SplitTokens,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Produce implements Path.
func (d *DirectAnswer) Produce(ctx context.Context, req *Request) Fragments {
	return Once(func(yield func(string, error) bool) {
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}

		out, err := d.model.Generate(ctx, req.prompt(d.system))
		if err != nil {
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			d.degrade(ctx, req, err, yield)
			return
		}

		if out.Stream == nil {
			d.pieces(ctx, d.splitter(out.Text), yield)
			return
		}

		produced := false
		for frag, err := range out.Stream {
			if cerr := ctx.Err(); cerr != nil {
				yield("", cerr)
				return
			}
			if err != nil {
				if !produced {
					d.degrade(ctx, req, err, yield)
					return
				}
				d.observer.OnEvent(ctx, observability.NewEvent(EventInterrupted, observability.LevelError, "generation.DirectAnswer", map[string]any{
					"session_id": req.SessionID,
					"error":      err.Error(),
				}))
				yield("", fmt.Errorf("%w: %w", ErrInterrupted, err))
				return
			}
			if frag == "" {
				continue
			}
			produced = true
			if !yield(frag, nil) {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			yield("", err)
		}
	})
}

// degrade substitutes the apology for a failure that happened before any
// fragment was produced.
func (d *DirectAnswer) degrade(ctx context.Context, req *Request, err error, yield func(string, error) bool) {
	kind := Kind(err)
	req.Annotate("degraded", true)
	req.Annotate("capability_error", kind)

	d.observer.OnEvent(ctx, observability.NewEvent(EventDegraded, observability.LevelWarning, "generation.DirectAnswer", map[string]any{
		"session_id": req.SessionID,
		"kind":       kind,
		"error":      err.Error(),
	}))

	d.pieces(ctx, d.splitter(Apology(err)), yield)
}

func (d *DirectAnswer) pieces(ctx context.Context, parts []string, yield func(string, error) bool) {
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}
		if !yield(p, nil) {
			return
		}
	}
}
