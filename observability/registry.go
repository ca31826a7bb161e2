package observability

import (
	"fmt"
	"log/slog"
	"sync"
)

var (
	observers = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
	}
	mutex sync.RWMutex
)

// GetObserver returns a registered observer by name.
// Pre-registered observers: "noop" and "slog" (default logger).
func GetObserver(name string) (Observer, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	obs, exists := observers[name]
	if !exists {
		return nil, fmt.Errorf("unknown observer: %s", name)
	}
	return obs, nil
}

// RegisterObserver adds or replaces a named observer in the global registry.
func RegisterObserver(name string, observer Observer) {
	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}

// Resolve looks up every named observer and combines them into one. An empty
// name list resolves to NoOpObserver.
func Resolve(names ...string) (Observer, error) {
	if len(names) == 0 {
		return NoOpObserver{}, nil
	}

	resolved := make([]Observer, 0, len(names))
	for _, name := range names {
		obs, err := GetObserver(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, obs)
	}

	if len(resolved) == 1 {
		return resolved[0], nil
	}
	return NewMultiObserver(resolved...), nil
}
