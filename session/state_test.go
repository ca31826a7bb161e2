package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
	"github.com/tailored-agentic-units/chatstream/generation"
	"github.com/tailored-agentic-units/chatstream/session"
	"github.com/tailored-agentic-units/chatstream/stream"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to session.State
		want     bool
	}{
		{session.StateConnecting, session.StateActive, true},
		{session.StateConnecting, session.StateGenerating, false},
		{session.StateActive, session.StateGenerating, true},
		{session.StateGenerating, session.StateActive, true},
		{session.StateGenerating, session.StateGenerating, false},
		{session.StateActive, session.StateClosing, true},
		{session.StateGenerating, session.StateClosing, true},
		{session.StateClosing, session.StateClosed, true},
		{session.StateClosing, session.StateActive, false},
		{session.StateClosed, session.StateActive, false},
		{session.StateClosed, session.StateConnecting, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s to %s", tt.from, tt.to), func(t *testing.T) {
			if got := session.CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []session.State{session.StateConnecting, session.StateActive, session.StateGenerating, session.StateClosing} {
		if session.IsTerminal(s) {
			t.Errorf("%s reported terminal", s)
		}
	}
	if !session.IsTerminal(session.StateClosed) {
		t.Error("CLOSED not terminal")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "busy", err: session.ErrBusy, want: protocol.CodeBusy},
		{name: "empty", err: session.ErrEmptyMessage, want: protocol.CodeEmptyMessage},
		{name: "expired", err: fmt.Errorf("%w: s1", session.ErrExpired), want: protocol.CodeSessionExpired},
		{name: "persistence", err: fmt.Errorf("%w: disk full", session.ErrPersistence), want: protocol.CodePersistence},
		{name: "timeout", err: session.ErrGenerationTimeout, want: protocol.CodeTimeout},
		{name: "deadline", err: context.DeadlineExceeded, want: protocol.CodeTimeout},
		{name: "interrupted", err: fmt.Errorf("%w: reset", generation.ErrInterrupted), want: protocol.CodeGenerationFailed},
		{name: "emit", err: stream.ErrEmit, want: protocol.CodeProcessing},
		{name: "other", err: errors.New("boom"), want: protocol.CodeProcessing},
		{
			name: "frame error passes through",
			err:  fmt.Errorf("wrapped: %w", session.NewFrameError(protocol.CodeInvalidFrame, "bad", nil)),
			want: protocol.CodeInvalidFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := session.Classify(tt.err)
			if fe.Code != tt.want {
				t.Errorf("got code %q, want %q", fe.Code, tt.want)
			}
			frame := fe.Frame()
			if frame.Type != protocol.TypeError || frame.Message == "" {
				t.Errorf("got frame %+v", frame)
			}
		})
	}
}
