package generation

import (
	"context"
	"errors"
)

var (
	ErrUnavailable      = errors.New("generation capability unavailable")
	ErrTimeout          = errors.New("generation capability timed out")
	ErrBadRequest       = errors.New("generation capability rejected the request")
	ErrConsumed         = errors.New("fragment sequence already consumed")
	ErrUnknownProvider  = errors.New("unknown generation provider")
	ErrUnknownSplitter  = errors.New("unknown splitter")
	ErrScriptExhausted  = errors.New("scripted model has no more replies")
	ErrMissingParameter = errors.New("missing parameter")
	ErrInterrupted      = errors.New("generation interrupted after partial output")
)

// Capability error kinds recorded in turn metadata.
const (
	KindUnavailable = "unavailable"
	KindTimeout     = "timeout"
	KindBadRequest  = "bad_request"
	KindUnknown     = "unknown"
)

// Kind classifies a capability failure.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrBadRequest):
		return KindBadRequest
	default:
		return KindUnknown
	}
}

var apologies = map[string]string{
	KindUnavailable: "Sorry, the assistant is temporarily unavailable. Please try again in a moment.",
	KindTimeout:     "Sorry, generating a response took too long. Please try again.",
	KindBadRequest:  "Sorry, I could not process that request. Please rephrase your message and try again.",
	KindUnknown:     "Sorry, something went wrong while generating a response. Please try again.",
}

// Apology returns the user-visible text substituted for a failed generation.
func Apology(err error) string {
	return apologies[Kind(err)]
}
