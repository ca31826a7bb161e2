// Package generation turns a routed user turn into a lazy, finite sequence
// of answer fragments. It adapts the opaque language model (streaming or
// not) and the data-lookup path behind one Path interface; failures never
// escape as panics or bare errors, they end the sequence.
package generation

import (
	"iter"
	"strings"
	"sync/atomic"
)

// Fragments is a lazy, finite, single-use sequence of answer text. A non-nil
// error is the terminal element; nothing follows it.
type Fragments = iter.Seq2[string, error]

// Once guards seq so it can be ranged over a single time. Later iterations
// yield ErrConsumed.
func Once(seq Fragments) Fragments {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrConsumed)
			return
		}
		seq(yield)
	}
}

// FromStrings yields parts in order.
func FromStrings(parts ...string) Fragments {
	return Once(func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	})
}

// Fail yields parts followed by err.
func Fail(err error, parts ...string) Fragments {
	return Once(func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
		yield("", err)
	})
}

// Collect drains f and returns the concatenated text and the terminal error.
func Collect(f Fragments) (string, error) {
	var b strings.Builder
	for frag, err := range f {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}
