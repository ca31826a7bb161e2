package memory

// Config holds memory window parameters.
type Config struct {
	Size int `json:"size,omitempty" yaml:"size,omitempty"` // Turns kept per session (k).
}

// DefaultConfig returns the default window configuration (k = 10).
func DefaultConfig() Config {
	return Config{Size: DefaultSize}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Size > 0 {
		c.Size = source.Size
	}
}

// New creates an empty Window from configuration.
func New(cfg *Config) *Window {
	return NewWindow(cfg.Size)
}
