package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
	"github.com/tailored-agentic-units/chatstream/observability"
	"github.com/tailored-agentic-units/chatstream/session"
)

// rejectTimeout bounds how long an error reply waits for queue space.
const rejectTimeout = time.Second

// maxCloseReason is the largest reason a close control frame can carry.
const maxCloseReason = 123

// conn is one client connection. It is the session's Sink.
type conn struct {
	hub     *Hub
	ws      *websocket.Conn
	remote  string
	out     *MessageChannel[[]byte]
	limiter *rate.Limiter
	sid     atomic.Value

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	reason    string
	done      chan struct{}
}

func newConn(h *Hub, ws *websocket.Conn) *conn {
	ctx, cancel := context.WithCancel(context.Background())

	limit := rate.Limit(h.cfg.RateLimit)
	if h.cfg.RateLimit < 0 {
		limit = rate.Inf
	}

	c := &conn{
		hub:     h,
		ws:      ws,
		out:     NewMessageChannel[[]byte](ctx, h.cfg.SendBuffer),
		limiter: rate.NewLimiter(limit, h.cfg.RateBurst),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if ws != nil {
		c.remote = ws.RemoteAddr().String()
	}
	c.sid.Store("")
	return c
}

func (c *conn) sessionID() string {
	return c.sid.Load().(string)
}

// Send encodes f and queues it for the writer. When the queue is full the
// hub's policy decides between dropping the frame and waiting up to the
// send timeout before closing the connection.
func (c *conn) Send(ctx context.Context, f protocol.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if c.ctx.Err() != nil {
		return ErrConnClosed
	}
	if c.out.TrySend(data) {
		return nil
	}

	if c.hub.cfg.Policy == PolicyDrop {
		c.hub.metrics.RecordFrameDropped(1)
		c.hub.event(c.ctx, EventFrameDropped, observability.LevelWarning, map[string]any{
			"session_id": c.sessionID(),
			"frame_type": string(f.FrameType()),
		})
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, c.hub.cfg.SendTimeout.Std())
	defer cancel()
	if err := c.out.Send(sctx, data); err != nil {
		if c.ctx.Err() != nil {
			return ErrConnClosed
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.hub.metrics.RecordSlowConsumer(1)
		c.hub.event(c.ctx, EventSlowConsumer, observability.LevelWarning, map[string]any{
			"session_id": c.sessionID(),
			"queued":     c.out.QueueLength(),
		})
		c.Close("client is not reading")
		return fmt.Errorf("%w: %w", ErrSlowConsumer, err)
	}
	return nil
}

// Close stops the writer after it flushes what is already queued.
func (c *conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		c.cancel()
	})
}

func (c *conn) writeLoop() {
	defer close(c.done)
	defer c.ws.Close()

	ping := time.NewTicker(c.hub.cfg.PingInterval.Std())
	defer ping.Stop()

	for {
		select {
		case data := <-c.out.Chan():
			if err := c.write(data); err != nil {
				c.Close("write failed")
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(c.hub.cfg.WriteTimeout.Std())
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.Close("ping failed")
				return
			}
		case <-c.ctx.Done():
			c.flush()
			deadline := time.Now().Add(c.hub.cfg.WriteTimeout.Std())
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, truncate(c.reason, maxCloseReason))
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		}
	}
}

func (c *conn) flush() {
	for {
		data, ok := c.out.TryReceive()
		if !ok {
			return
		}
		if err := c.write(data); err != nil {
			return
		}
	}
}

func (c *conn) write(data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout.Std()))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.hub.metrics.RecordFrameSent(1)
	return nil
}

// readLoop feeds inbound frames to s until the connection fails or goes
// idle, then closes the session.
func (c *conn) readLoop(s *session.Session) {
	c.ws.SetReadLimit(c.hub.cfg.ReadLimit)

	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.cfg.IdleTimeout.Std()))
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			s.Close(c.readFailure(err))
			return
		}
		c.hub.metrics.RecordFrameRecv(1)

		if !c.limiter.Allow() {
			c.hub.metrics.RecordRateLimited(1)
			c.hub.event(c.ctx, EventRateLimited, observability.LevelWarning, map[string]any{
				"session_id": s.ID(),
			})
			c.reject(protocol.CodeRateLimited, "Too many messages. Slow down and try again.", "")
			continue
		}
		if kind != websocket.TextMessage {
			c.reject(protocol.CodeInvalidFrame, "Frames must be JSON text messages.", "")
			continue
		}
		c.dispatch(s, data)
	}
}

func (c *conn) readFailure(err error) string {
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		c.hub.event(c.ctx, EventIdleTimeout, observability.LevelInfo, map[string]any{
			"session_id": c.sessionID(),
			"idle":       c.hub.cfg.IdleTimeout.String(),
		})
		return "idle timeout"
	case errors.Is(err, websocket.ErrReadLimit):
		return "frame too large"
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return "client disconnected"
	default:
		return "connection lost"
	}
}

func (c *conn) dispatch(s *session.Session, data []byte) {
	if !gjson.ValidBytes(data) {
		c.reject(protocol.CodeInvalidFrame, "Frame is not valid JSON.", "")
		return
	}

	typ := gjson.GetBytes(data, "type")
	if typ.Type != gjson.String {
		c.reject(protocol.CodeInvalidFrame, "Frame has no type.", "")
		return
	}

	if sid := gjson.GetBytes(data, "session_id"); sid.Exists() && sid.String() != "" && sid.String() != s.ID() {
		c.reject(protocol.CodeSessionMismatch, "Frame belongs to a different session.", sid.String())
		return
	}

	switch protocol.FrameType(typ.Str) {
	case protocol.TypeUserMessage:
		var msg protocol.UserMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reject(protocol.CodeInvalidFrame, "Malformed user_message frame.", err.Error())
			return
		}
		if err := s.Submit(c.ctx, msg.Message); err != nil {
			c.reply(session.Classify(err).Frame())
		}

	case protocol.TypeSystem:
		switch action := gjson.GetBytes(data, "action").String(); action {
		case protocol.ActionStop:
			s.Stop()
		case protocol.ActionClose:
			s.Close("closed by client")
		case protocol.ActionPing:
			c.reply(protocol.NewSystem(s.ID(), protocol.ActionPong, ""))
		default:
			c.reject(protocol.CodeInvalidFrame, fmt.Sprintf("Unknown system action %q.", action), "")
		}

	default:
		c.reject(protocol.CodeUnknownType, fmt.Sprintf("Frame type %q is not accepted.", typ.Str), "")
	}
}

func (c *conn) reject(code, message, details string) {
	c.hub.metrics.RecordFrameRejected(1)
	c.hub.event(c.ctx, EventFrameRejected, observability.LevelVerbose, map[string]any{
		"session_id": c.sessionID(),
		"code":       code,
	})
	c.reply(protocol.NewError(code, message, details))
}

func (c *conn) reply(f protocol.Frame) {
	ctx, cancel := context.WithTimeout(c.ctx, rejectTimeout)
	defer cancel()
	_ = c.Send(ctx, f)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
