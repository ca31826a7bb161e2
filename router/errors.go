package router

import "errors"

var (
	ErrUnknownRoute    = errors.New("unknown route")
	ErrMissingHint     = errors.New("lookup route without a query")
	ErrInvalidRule     = errors.New("invalid routing rule")
	ErrInvalidVerdict  = errors.New("invalid routing verdict")
	ErrUnknownStrategy = errors.New("unknown routing strategy")
)
