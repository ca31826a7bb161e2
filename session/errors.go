package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
	"github.com/tailored-agentic-units/chatstream/generation"
	"github.com/tailored-agentic-units/chatstream/stream"
)

var (
	ErrBusy              = errors.New("a generation is already in progress")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrExpired           = errors.New("session has expired")
	ErrClosed            = errors.New("session is closed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrPersistence       = errors.New("failed to persist turn")
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrStopped           = errors.New("generation stopped by client")
	ErrReplaced          = errors.New("session bound to a new connection")
	ErrUnknownTokenizer  = errors.New("unknown tokenizer")
)

// FrameError is a failure surfaced to the client as an error frame.
type FrameError struct {
	Code    string
	Message string
	Details string
	Err     error
}

// NewFrameError creates a FrameError wrapping err.
func NewFrameError(code, message string, err error) *FrameError {
	fe := &FrameError{Code: code, Message: message, Err: err}
	if err != nil {
		fe.Details = err.Error()
	}
	return fe
}

func (e *FrameError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FrameError) Unwrap() error { return e.Err }

// Frame returns the wire error frame.
func (e *FrameError) Frame() protocol.ErrorFrame {
	return protocol.NewError(e.Code, e.Message, e.Details)
}

// Classify maps an error to the frame reported to the client.
func Classify(err error) *FrameError {
	var fe *FrameError
	if errors.As(err, &fe) {
		return fe
	}

	switch {
	case errors.Is(err, ErrBusy):
		return NewFrameError(protocol.CodeBusy, "A response is still being generated. Wait for it to finish or stop it first.", nil)
	case errors.Is(err, ErrEmptyMessage):
		return NewFrameError(protocol.CodeEmptyMessage, "Message must not be empty.", nil)
	case errors.Is(err, ErrExpired):
		return NewFrameError(protocol.CodeSessionExpired, "This conversation has expired. Start a new one.", err)
	case errors.Is(err, ErrPersistence):
		return NewFrameError(protocol.CodePersistence, "Your message could not be saved. Please try again.", err)
	case errors.Is(err, ErrGenerationTimeout), errors.Is(err, context.DeadlineExceeded):
		return NewFrameError(protocol.CodeTimeout, "Generating a response took too long and was cancelled.", err)
	case errors.Is(err, generation.ErrInterrupted):
		return NewFrameError(protocol.CodeGenerationFailed, "The response was interrupted.", err)
	case errors.Is(err, stream.ErrEmit):
		return NewFrameError(protocol.CodeProcessing, "The response could not be delivered.", err)
	default:
		return NewFrameError(protocol.CodeProcessing, "The request could not be processed.", err)
	}
}
