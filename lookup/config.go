package lookup

import (
	"context"
	"fmt"
	"io"

	"github.com/tailored-agentic-units/chatstream/core/config"
	"github.com/tailored-agentic-units/chatstream/store"
)

// Source kinds.
const (
	KindSQL = "sql"
	KindMCP = "mcp"
)

// SourceConfig declares one named lookup source.
type SourceConfig struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`

	// sql
	Driver    string `json:"driver,omitempty" yaml:"driver,omitempty"`
	DSN       string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	MaxRows   int    `json:"max_rows,omitempty" yaml:"max_rows,omitempty"`
	Schema    string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Translate bool   `json:"translate,omitempty" yaml:"translate,omitempty"`

	// mcp
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	Transport string `json:"transport,omitempty" yaml:"transport,omitempty"`
	Tool      string `json:"tool,omitempty" yaml:"tool,omitempty"`
	Argument  string `json:"argument,omitempty" yaml:"argument,omitempty"`
}

// Config holds lookup parameters.
type Config struct {
	Timeout config.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Sources []SourceConfig  `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// DefaultConfig returns a configuration with the default timeout and no
// sources.
func DefaultConfig() Config {
	return Config{Timeout: config.Duration(DefaultTimeout)}
}

// Merge applies non-zero values from source into c. Sources are replaced as
// a whole.
func (c *Config) Merge(source *Config) {
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
	if len(source.Sources) > 0 {
		c.Sources = source.Sources
	}
}

// Build opens every configured source and registers it. The returned closers
// release database and MCP connections.
func Build(ctx context.Context, cfg *Config, translator Completer) (*Registry, []io.Closer, error) {
	reg := NewRegistry()
	var closers []io.Closer

	fail := func(err error) (*Registry, []io.Closer, error) {
		for _, c := range closers {
			c.Close()
		}
		return nil, nil, err
	}

	for _, src := range cfg.Sources {
		var capability Capability

		switch src.Kind {
		case KindSQL:
			db, err := store.OpenDB(src.Driver, src.DSN)
			if err != nil {
				return fail(fmt.Errorf("source %s: %w", src.Name, err))
			}
			if sqlDB, err := db.DB(); err == nil {
				closers = append(closers, sqlDB)
			}

			opts := []SQLOption{WithMaxRows(src.MaxRows), WithSchema(src.Schema)}
			if src.Translate && translator != nil {
				opts = append(opts, WithTranslator(translator))
			}
			capability = NewSQL(db, opts...)
		case KindMCP:
			c, err := ConnectMCP(ctx, src.Transport, src.URL)
			if err != nil {
				return fail(fmt.Errorf("source %s: %w", src.Name, err))
			}
			closers = append(closers, c)
			capability = NewMCP(c, src.Tool, src.Argument)
		default:
			return fail(fmt.Errorf("%w: %s", ErrUnknownKind, src.Kind))
		}

		if err := reg.Register(src.Name, capability); err != nil {
			return fail(err)
		}
	}

	return reg, closers, nil
}
