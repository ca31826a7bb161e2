package stream

import "errors"

var (
	ErrInvalidSize = errors.New("fixed chunk size must be positive")
	ErrUnknownMode = errors.New("unknown stream mode")
	ErrEmit        = errors.New("chunk delivery failed")
)
