package hub

import "errors"

var (
	ErrConnClosed    = errors.New("connection closed")
	ErrSlowConsumer  = errors.New("outbound queue full")
	ErrEncode        = errors.New("failed to encode frame")
	ErrUnknownPolicy = errors.New("unknown backpressure policy")
	ErrShuttingDown  = errors.New("hub is shutting down")
)
