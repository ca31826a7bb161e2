package store

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidID     = errors.New("invalid session id")
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrLoadFailed    = errors.New("load failed")
	ErrSaveFailed    = errors.New("save failed")
)
