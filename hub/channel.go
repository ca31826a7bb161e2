package hub

import (
	"context"
)

// MessageChannel is a bounded queue tied to the lifetime of a context.
// Sends fail once that context is done; the channel itself is never closed.
type MessageChannel[T any] struct {
	channel    chan T
	context    context.Context
	bufferSize int
}

func NewMessageChannel[T any](ctx context.Context, bufferSize int) *MessageChannel[T] {
	return &MessageChannel[T]{
		channel:    make(chan T, bufferSize),
		context:    ctx,
		bufferSize: bufferSize,
	}
}

// Send waits for space until ctx or the channel's own context is done.
func (mc *MessageChannel[T]) Send(ctx context.Context, message T) error {
	if err := mc.context.Err(); err != nil {
		return err
	}
	select {
	case mc.channel <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-mc.context.Done():
		return mc.context.Err()
	}
}

// TrySend queues message only if there is space right now.
func (mc *MessageChannel[T]) TrySend(message T) bool {
	if mc.context.Err() != nil {
		return false
	}
	select {
	case mc.channel <- message:
		return true
	default:
		return false
	}
}

func (mc *MessageChannel[T]) TryReceive() (T, bool) {
	select {
	case message := <-mc.channel:
		return message, true
	default:
		var zero T
		return zero, false
	}
}

// Chan exposes the receive side for use in a select.
func (mc *MessageChannel[T]) Chan() <-chan T {
	return mc.channel
}

func (mc *MessageChannel[T]) BufferSize() int {
	return mc.bufferSize
}

func (mc *MessageChannel[T]) QueueLength() int {
	return len(mc.channel)
}
