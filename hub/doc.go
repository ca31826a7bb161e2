// Package hub multiplexes WebSocket connections onto conversation sessions.
//
// Each connection is bound to exactly one session for its lifetime. A
// connection runs one read goroutine, which peeks the type of every inbound
// frame and dispatches it to the session, and one write goroutine, which
// drains a bounded outbound queue. Frames never cross sessions.
//
//	h, err := hub.New(&cfg, manager, hub.WithObserver(obs))
//	mux.Handle("/ws", h)
package hub
