package hub

import (
	"fmt"
	"time"

	"github.com/tailored-agentic-units/chatstream/core/config"
)

// Backpressure policies applied when a connection's outbound queue is full.
const (
	PolicyDisconnect = "disconnect"
	PolicyDrop       = "drop"
)

// Config defines connection handling parameters.
type Config struct {
	// Path is where the WebSocket endpoint is mounted.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Outbound queue
	SendBuffer  int             `json:"send_buffer,omitempty" yaml:"send_buffer,omitempty"`
	SendTimeout config.Duration `json:"send_timeout,omitempty" yaml:"send_timeout,omitempty"`
	Policy      string          `json:"policy,omitempty" yaml:"policy,omitempty"`

	// Liveness
	IdleTimeout  config.Duration `json:"idle_timeout,omitempty" yaml:"idle_timeout,omitempty"`
	PingInterval config.Duration `json:"ping_interval,omitempty" yaml:"ping_interval,omitempty"`
	WriteTimeout config.Duration `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`

	// Inbound limits. RateLimit is frames per second; a negative value
	// disables rate limiting.
	ReadLimit int64   `json:"read_limit,omitempty" yaml:"read_limit,omitempty"`
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	RateBurst int     `json:"rate_burst,omitempty" yaml:"rate_burst,omitempty"`

	// AllowedOrigins restricts the Origin header on upgrade. Empty allows
	// any origin.
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Path:         "/ws",
		SendBuffer:   256,
		SendTimeout:  config.Duration(5 * time.Second),
		Policy:       PolicyDisconnect,
		IdleTimeout:  config.Duration(300 * time.Second),
		PingInterval: config.Duration(30 * time.Second),
		WriteTimeout: config.Duration(10 * time.Second),
		ReadLimit:    64 << 10,
		RateLimit:    10,
		RateBurst:    20,
	}
}

func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}

	if source.SendBuffer > 0 {
		c.SendBuffer = source.SendBuffer
	}

	if source.SendTimeout > 0 {
		c.SendTimeout = source.SendTimeout
	}

	if source.Policy != "" {
		c.Policy = source.Policy
	}

	if source.IdleTimeout > 0 {
		c.IdleTimeout = source.IdleTimeout
	}

	if source.PingInterval > 0 {
		c.PingInterval = source.PingInterval
	}

	if source.WriteTimeout > 0 {
		c.WriteTimeout = source.WriteTimeout
	}

	if source.ReadLimit > 0 {
		c.ReadLimit = source.ReadLimit
	}

	if source.RateLimit != 0 {
		c.RateLimit = source.RateLimit
	}

	if source.RateBurst > 0 {
		c.RateBurst = source.RateBurst
	}

	if len(source.AllowedOrigins) > 0 {
		c.AllowedOrigins = source.AllowedOrigins
	}
}

func (c *Config) validate() error {
	switch c.Policy {
	case PolicyDisconnect, PolicyDrop:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, c.Policy)
	}
}
