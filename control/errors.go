package control

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/chatstream/lookup"
	"github.com/tailored-agentic-units/chatstream/store"
)

var (
	ErrMissingID = errors.New("session id is required")
	ErrEncode    = errors.New("failed to encode response")
)

// connectError maps store and validation failures to Connect codes.
func connectError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, lookup.ErrUnknownSource):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, store.ErrInvalidID), errors.Is(err, ErrMissingID):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, lookup.ErrNoSchema):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
