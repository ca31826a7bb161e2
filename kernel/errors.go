package kernel

import "errors"

var (
	ErrLogLevel  = errors.New("unknown log level")
	ErrLogFormat = errors.New("unknown log format")
	ErrServing   = errors.New("server failed")
)
