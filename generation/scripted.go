package generation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Reply is one scripted Model answer.
type Reply struct {
	// Text is returned as a single-string answer when Stream is empty.
	Text string
	// Stream is yielded fragment by fragment, followed by StreamErr if set.
	Stream    []string
	StreamErr error
	// Err fails Generate before any output.
	Err error
	// Delay is waited before the answer and before each streamed fragment.
	Delay time.Duration
}

// Scripted is a Model that plays back replies in order. Once the script is
// exhausted the last reply repeats; an empty script fails with
// ErrUnavailable.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	next    int
	prompts []Prompt
}

// NewScripted creates a Scripted model.
func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

func (s *Scripted) take(p Prompt) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, p)
	if len(s.replies) == 0 {
		return Reply{}, fmt.Errorf("%w: %w", ErrUnavailable, ErrScriptExhausted)
	}
	r := s.replies[min(s.next, len(s.replies)-1)]
	s.next++
	return r, nil
}

// Prompts returns every prompt received so far.
func (s *Scripted) Prompts() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prompt(nil), s.prompts...)
}

// Generate implements Model.
func (s *Scripted) Generate(ctx context.Context, p Prompt) (*Output, error) {
	r, err := s.take(p)
	if err != nil {
		return nil, err
	}
	if err := wait(ctx, r.Delay); err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	if len(r.Stream) == 0 && r.StreamErr == nil {
		return &Output{Text: r.Text}, nil
	}

	return &Output{Stream: Once(func(yield func(string, error) bool) {
		for _, frag := range r.Stream {
			if err := wait(ctx, r.Delay); err != nil {
				yield("", err)
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
		if r.StreamErr != nil {
			yield("", r.StreamErr)
		}
	})}, nil
}

// Complete implements Model.
func (s *Scripted) Complete(ctx context.Context, system, prompt string) (string, error) {
	out, err := s.Generate(ctx, Prompt{System: system, Message: prompt})
	if err != nil {
		return "", err
	}
	if out.Stream != nil {
		return Collect(out.Stream)
	}
	return out.Text, nil
}

// Echo is a Model that answers with the user's own message. It backs local
// development when no model endpoint is configured.
type Echo struct{}

// Generate implements Model.
func (Echo) Generate(ctx context.Context, p Prompt) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Output{Text: "You said: " + p.Message}, nil
}

// Complete implements Model.
func (Echo) Complete(ctx context.Context, system, prompt string) (string, error) {
	return prompt, ctx.Err()
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
