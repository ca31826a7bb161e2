package lookup

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Registry maps source names to capabilities. It is safe for concurrent
// registration and lookup.
type Registry struct {
	sources map[string]Capability
	mu      sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Capability)}
}

// Register adds a source. Returns ErrAlreadyExists if the name is taken; use
// Replace to swap an existing source.
func (r *Registry) Register(name string, c Capability) error {
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	r.sources[name] = c
	return nil
}

// Replace swaps the capability behind an existing source.
func (r *Registry) Replace(name string, c Capability) error {
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	r.sources[name] = c
	return nil
}

// Get returns the capability registered under name.
func (r *Registry) Get(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.sources[name]
	return c, ok
}

// Names returns the registered source names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Query dispatches to the named source. Capability errors are wrapped with
// the source name.
func (r *Registry) Query(ctx context.Context, name, query string) (*Result, error) {
	c, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}

	result, err := c.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	if result.Source == "" {
		result.Source = name
	}
	return result, nil
}
