// Package stream encodes answer fragments into the ordered chunk sequence
// sent to a client. Every job's chunks are indexed from 0; only the last
// chunk of a successful job is marked complete.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
	"github.com/tailored-agentic-units/chatstream/generation"
)

// Kind distinguishes text chunks from the terminal error chunk.
type Kind string

const (
	KindText  Kind = "text"
	KindError Kind = "error"
)

// Chunk is one encoded element of a job's output.
type Chunk struct {
	Index    int
	Content  string
	Complete bool
	Kind     Kind
	// Err is set on the error chunk.
	Err error
}

// Frame converts a text chunk to its wire frame.
func (c Chunk) Frame(sessionID string) protocol.ChunkFrame {
	return protocol.NewChunk(sessionID, c.Index, c.Content, c.Complete)
}

// Emit delivers one chunk. A returned error aborts encoding.
type Emit func(ctx context.Context, c Chunk) error

// Summary describes a finished encoding.
type Summary struct {
	// Text is the concatenation of every text chunk emitted.
	Text      string
	Chunks    int
	Fragments int
	Complete  bool
}

// Mode selects how fragments are mapped to chunks.
type Mode string

const (
	ModePassthrough Mode = "passthrough"
	ModeFixed       Mode = "fixed"
)

// Encoder maps fragments to chunks. It is immutable and safe for concurrent
// use.
type Encoder struct {
	mode Mode
	size int
}

// NewPassthrough returns an Encoder that emits fragments unmodified.
func NewPassthrough() *Encoder {
	return &Encoder{mode: ModePassthrough}
}

// NewFixed returns an Encoder that re-slices text into size-rune chunks.
func NewFixed(size int) (*Encoder, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &Encoder{mode: ModeFixed, size: size}, nil
}

// Mode returns the encoder's mode.
func (e *Encoder) Mode() Mode { return e.mode }

// Encode drains fragments and emits chunks in index order.
//
// On normal completion a terminal chunk with Complete set is emitted. A
// failing fragment produces exactly one error chunk and no terminal chunk;
// the fragment's error is returned. When ctx ends nothing further is
// emitted and the context error is returned.
func (e *Encoder) Encode(ctx context.Context, fragments generation.Fragments, emit Emit) (sum Summary, err error) {
	var (
		text  strings.Builder
		buf   strings.Builder
		index int
	)
	defer func() { sum.Text = text.String() }()

	send := func(c Chunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.Index = index
		if err := emit(ctx, c); err != nil {
			return fmt.Errorf("%w: %w", ErrEmit, err)
		}
		index++
		sum.Chunks++
		if c.Kind == KindText {
			text.WriteString(c.Content)
		}
		return nil
	}

	for frag, ferr := range fragments {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if ferr != nil {
			if isContextErr(ferr) {
				return sum, ferr
			}
			if e.mode == ModeFixed && buf.Len() > 0 {
				if err := send(Chunk{Content: buf.String(), Kind: KindText}); err != nil {
					return sum, err
				}
			}
			if err := send(Chunk{Kind: KindError, Err: ferr}); err != nil {
				return sum, err
			}
			return sum, ferr
		}

		sum.Fragments++
		if frag == "" {
			continue
		}

		if e.mode != ModeFixed {
			if err := send(Chunk{Content: frag, Kind: KindText}); err != nil {
				return sum, err
			}
			continue
		}

		buf.WriteString(frag)
		for utf8.RuneCountInString(buf.String()) >= e.size {
			head, rest := splitRunes(buf.String(), e.size)
			buf.Reset()
			buf.WriteString(rest)
			if err := send(Chunk{Content: head, Kind: KindText}); err != nil {
				return sum, err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	if err := send(Chunk{Content: buf.String(), Complete: true, Kind: KindText}); err != nil {
		return sum, err
	}
	sum.Complete = true
	return sum, nil
}

func splitRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
