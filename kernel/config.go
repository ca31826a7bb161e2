package kernel

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/chatstream/control"
	"github.com/tailored-agentic-units/chatstream/generation"
	"github.com/tailored-agentic-units/chatstream/hub"
	"github.com/tailored-agentic-units/chatstream/lookup"
	"github.com/tailored-agentic-units/chatstream/memory"
	"github.com/tailored-agentic-units/chatstream/router"
	"github.com/tailored-agentic-units/chatstream/session"
	"github.com/tailored-agentic-units/chatstream/store"
	"github.com/tailored-agentic-units/chatstream/stream"
)

// Log formats.
const (
	LogText = "text"
	LogJSON = "json"
)

// Config holds initialization parameters for all subsystems.
// Each subsystem section delegates to that subsystem's config-driven constructor.
type Config struct {
	Server     control.Config    `json:"server" yaml:"server"`
	Hub        hub.Config        `json:"hub" yaml:"hub"`
	Session    session.Config    `json:"session" yaml:"session"`
	Memory     memory.Config     `json:"memory" yaml:"memory"`
	Store      store.Config      `json:"store" yaml:"store"`
	Generation generation.Config `json:"generation" yaml:"generation"`
	Router     router.Config     `json:"router" yaml:"router"`
	Lookup     lookup.Config     `json:"lookup" yaml:"lookup"`
	Stream     stream.Config     `json:"stream" yaml:"stream"`

	// Observers names registered observers that receive every event.
	// "slog" logs through the kernel's logger.
	Observers []string `json:"observers,omitempty" yaml:"observers,omitempty"`
	LogLevel  string   `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat string   `json:"log_format,omitempty" yaml:"log_format,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Server:     control.DefaultConfig(),
		Hub:        hub.DefaultConfig(),
		Session:    session.DefaultConfig(),
		Memory:     memory.DefaultConfig(),
		Store:      store.DefaultConfig(),
		Generation: generation.DefaultConfig(),
		Router:     router.DefaultConfig(),
		Lookup:     lookup.DefaultConfig(),
		Stream:     stream.DefaultConfig(),
		Observers:  []string{"slog", "metrics"},
		LogLevel:   "info",
		LogFormat:  LogText,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Server.Merge(&source.Server)
	c.Hub.Merge(&source.Hub)
	c.Session.Merge(&source.Session)
	c.Memory.Merge(&source.Memory)
	c.Store.Merge(&source.Store)
	c.Generation.Merge(&source.Generation)
	c.Router.Merge(&source.Router)
	c.Lookup.Merge(&source.Lookup)
	c.Stream.Merge(&source.Stream)

	if len(source.Observers) > 0 {
		c.Observers = source.Observers
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
	if source.LogFormat != "" {
		c.LogFormat = source.LogFormat
	}
}

// LoadConfig reads a JSON or YAML config file, chosen by extension, merges
// it with defaults, and returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	default:
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// NewLogger builds the stderr logger described by cfg.
func NewLogger(cfg *Config) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrLogLevel, cfg.LogLevel)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.LogFormat {
	case "", LogText:
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case LogJSON:
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrLogFormat, cfg.LogFormat)
	}
}
