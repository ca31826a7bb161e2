package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tailored-agentic-units/chatstream/core/config"
	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

func newTestConn(t *testing.T, policy string) (*Hub, *conn) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SendBuffer = 1
	cfg.SendTimeout = config.Duration(20 * time.Millisecond)
	cfg.Policy = policy

	h, err := New(&cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return h, newConn(h, nil)
}

func TestConn_DropPolicy(t *testing.T) {
	h, c := newTestConn(t, PolicyDrop)
	frame := protocol.NewChunk("s1", 0, "x", false)

	for range 3 {
		if err := c.Send(context.Background(), frame); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	if got := h.Metrics().FramesDropped; got != 2 {
		t.Errorf("got %d dropped, want 2", got)
	}
	if c.ctx.Err() != nil {
		t.Error("drop policy closed the connection")
	}
}

func TestConn_DisconnectPolicy(t *testing.T) {
	h, c := newTestConn(t, PolicyDisconnect)
	frame := protocol.NewChunk("s1", 0, "x", false)

	if err := c.Send(context.Background(), frame); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := c.Send(context.Background(), frame); !errors.Is(err, ErrSlowConsumer) {
		t.Fatalf("got %v, want ErrSlowConsumer", err)
	}
	if c.ctx.Err() == nil {
		t.Error("slow consumer left connection open")
	}
	if err := c.Send(context.Background(), frame); !errors.Is(err, ErrConnClosed) {
		t.Errorf("got %v, want ErrConnClosed", err)
	}
	if got := h.Metrics().SlowConsumers; got != 1 {
		t.Errorf("got %d slow consumers, want 1", got)
	}
}
