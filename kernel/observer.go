package kernel

import (
	"log/slog"

	"github.com/tailored-agentic-units/chatstream/observability"
)

// Kernel event types emitted during startup and shutdown.
const (
	EventStart         observability.EventType = "kernel.start"
	EventReady         observability.EventType = "kernel.ready"
	EventShutdown      observability.EventType = "kernel.shutdown"
	EventShutdownError observability.EventType = "kernel.shutdown.error"
)

// resolveObservers combines the named observers. "slog" is bound to logger
// rather than the registry's default logger.
func resolveObservers(names []string, logger *slog.Logger) (observability.Observer, error) {
	resolved := make([]observability.Observer, 0, len(names))
	for _, name := range names {
		if name == "slog" {
			resolved = append(resolved, observability.NewSlogObserver(logger))
			continue
		}
		obs, err := observability.Resolve(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, obs)
	}
	return observability.NewMultiObserver(resolved...), nil
}
