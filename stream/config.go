package stream

import "fmt"

// DefaultFixedSize is the chunk size used by ModeFixed when none is set.
const DefaultFixedSize = 16

// Config selects the encoder mode.
type Config struct {
	Mode Mode `json:"mode" yaml:"mode"`
	Size int  `json:"size,omitempty" yaml:"size,omitempty"`
}

// DefaultConfig returns passthrough encoding.
func DefaultConfig() Config {
	return Config{
		Mode: ModePassthrough,
		Size: DefaultFixedSize,
	}
}

// Merge overlays non-zero values from source.
func (c *Config) Merge(source *Config) {
	if source.Mode != "" {
		c.Mode = source.Mode
	}
	if source.Size > 0 {
		c.Size = source.Size
	}
}

// New builds the configured Encoder.
func New(cfg *Config) (*Encoder, error) {
	switch cfg.Mode {
	case "", ModePassthrough:
		return NewPassthrough(), nil
	case ModeFixed:
		return NewFixed(cfg.Size)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, cfg.Mode)
	}
}
