package lookup

import "errors"

var (
	ErrEmptyName       = errors.New("source name cannot be empty")
	ErrAlreadyExists   = errors.New("source already registered")
	ErrUnknownSource   = errors.New("unknown lookup source")
	ErrTimeout         = errors.New("lookup timed out")
	ErrUnsafeStatement = errors.New("unsafe statement")
	ErrToolFailed      = errors.New("tool call failed")
	ErrUnknownKind     = errors.New("unknown source kind")
	ErrNoSchema        = errors.New("source does not expose a schema")
	ErrNoSuggestions   = errors.New("model proposed no questions")
)
