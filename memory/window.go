// Package memory holds the per-session conversation window: the most recent
// turns used to build generation context. The window never performs I/O; it
// is rebuilt from persisted turns whenever a session is resumed.
package memory

import (
	"slices"
	"sync"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

// DefaultSize is the number of turns kept when no size is configured.
const DefaultSize = 10

// Window is a bounded, ordered sequence of the most recent turns. Eviction is
// strict FIFO on turn count. All methods are safe for concurrent use.
type Window struct {
	size  int
	turns []protocol.Turn
	mu    sync.RWMutex
}

// NewWindow creates an empty Window holding at most size turns. A size of
// zero or less uses DefaultSize.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultSize
	}
	return &Window{
		size:  size,
		turns: make([]protocol.Turn, 0, size),
	}
}

// Size returns the window bound k.
func (w *Window) Size() int {
	return w.size
}

// Len returns the number of turns currently held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.turns)
}

// Append adds turn as the newest entry, evicting the oldest when the window
// is full.
func (w *Window) Append(turn protocol.Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.turns) == w.size {
		w.turns = slices.Delete(w.turns, 0, 1)
	}
	w.turns = append(w.turns, turn.Clone())
}

// Snapshot returns a copy of the held turns, oldest first.
func (w *Window) Snapshot() []protocol.Turn {
	w.mu.RLock()
	defer w.mu.RUnlock()

	copied := make([]protocol.Turn, len(w.turns))
	for i, turn := range w.turns {
		copied[i] = turn.Clone()
	}
	return copied
}

// Rebuild replaces the window contents with the last Size() entries of
// persisted, which must be ordered oldest first.
func (w *Window) Rebuild(persisted []protocol.Turn) {
	if len(persisted) > w.size {
		persisted = persisted[len(persisted)-w.size:]
	}

	rebuilt := make([]protocol.Turn, len(persisted), w.size)
	for i, turn := range persisted {
		rebuilt[i] = turn.Clone()
	}

	w.mu.Lock()
	w.turns = rebuilt
	w.mu.Unlock()
}
