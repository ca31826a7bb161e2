package control

import (
	"os"
	"time"

	"github.com/tailored-agentic-units/chatstream/core/config"
)

// EnvToken names the environment variable holding the control token.
const EnvToken = "CHATSTREAM_CONTROL_TOKEN"

// Config holds HTTP server settings.
type Config struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
	// Token protects the Connect procedures. Empty disables the check.
	Token             string          `json:"token,omitempty" yaml:"token,omitempty"`
	ReadHeaderTimeout config.Duration `json:"read_header_timeout,omitempty" yaml:"read_header_timeout,omitempty"`
	ShutdownTimeout   config.Duration `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`
	MetricsPath       string          `json:"metrics_path,omitempty" yaml:"metrics_path,omitempty"`
}

// DefaultConfig returns the default server settings, reading the token
// from the environment.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		Token:             os.Getenv(EnvToken),
		ReadHeaderTimeout: config.Duration(10 * time.Second),
		ShutdownTimeout:   config.Duration(15 * time.Second),
		MetricsPath:       "/metrics",
	}
}

func (c *Config) Merge(source *Config) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.Token != "" {
		c.Token = source.Token
	}
	if source.ReadHeaderTimeout > 0 {
		c.ReadHeaderTimeout = source.ReadHeaderTimeout
	}
	if source.ShutdownTimeout > 0 {
		c.ShutdownTimeout = source.ShutdownTimeout
	}
	if source.MetricsPath != "" {
		c.MetricsPath = source.MetricsPath
	}
}
