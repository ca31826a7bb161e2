package observability

import "context"

// NoOpObserver discards all events.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, event Event) {}

// MultiObserver fans out events to multiple observers in registration order.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver creates a MultiObserver over the given observers. Nil and
// NoOpObserver entries are skipped and nested MultiObservers are flattened.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{observers: make([]Observer, 0, len(observers))}
	for _, obs := range observers {
		m.add(obs)
	}
	return m
}

func (m *MultiObserver) add(obs Observer) {
	switch o := obs.(type) {
	case nil, NoOpObserver:
	case *MultiObserver:
		if o != nil {
			m.observers = append(m.observers, o.observers...)
		}
	default:
		m.observers = append(m.observers, obs)
	}
}

// Len returns the number of observers events are forwarded to.
func (m *MultiObserver) Len() int {
	return len(m.observers)
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}
