package session

import (
	"time"

	"github.com/tailored-agentic-units/chatstream/core/config"
)

// Config holds session manager parameters.
type Config struct {
	// GenerationTimeout bounds one generation job.
	GenerationTimeout config.Duration `json:"generation_timeout,omitempty" yaml:"generation_timeout,omitempty"`
	// CloseTimeout bounds how long Close waits for a cancelled job.
	CloseTimeout config.Duration `json:"close_timeout,omitempty" yaml:"close_timeout,omitempty"`
	// ExpiryTTL rejects sessions idle for longer. A negative value disables
	// expiry.
	ExpiryTTL config.Duration `json:"expiry_ttl,omitempty" yaml:"expiry_ttl,omitempty"`
	// Workers is the size of the persistence pool.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
	// PersistAttempts and PersistDelay configure turn write retries.
	PersistAttempts int             `json:"persist_attempts,omitempty" yaml:"persist_attempts,omitempty"`
	PersistDelay    config.Duration `json:"persist_delay,omitempty" yaml:"persist_delay,omitempty"`
	PersistTimeout  config.Duration `json:"persist_timeout,omitempty" yaml:"persist_timeout,omitempty"`
	// Tokenizer names the token_count measure: "words" or a tiktoken
	// encoding such as "cl100k_base".
	Tokenizer string `json:"tokenizer,omitempty" yaml:"tokenizer,omitempty"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		GenerationTimeout: config.Duration(120 * time.Second),
		CloseTimeout:      config.Duration(5 * time.Second),
		ExpiryTTL:         config.Duration(7 * 24 * time.Hour),
		Workers:           8,
		PersistAttempts:   3,
		PersistDelay:      config.Duration(100 * time.Millisecond),
		PersistTimeout:    config.Duration(10 * time.Second),
		Tokenizer:         TokenizerWords,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.GenerationTimeout > 0 {
		c.GenerationTimeout = source.GenerationTimeout
	}
	if source.CloseTimeout > 0 {
		c.CloseTimeout = source.CloseTimeout
	}
	if source.ExpiryTTL != 0 {
		c.ExpiryTTL = source.ExpiryTTL
	}
	if source.Workers > 0 {
		c.Workers = source.Workers
	}
	if source.PersistAttempts > 0 {
		c.PersistAttempts = source.PersistAttempts
	}
	if source.PersistDelay > 0 {
		c.PersistDelay = source.PersistDelay
	}
	if source.PersistTimeout > 0 {
		c.PersistTimeout = source.PersistTimeout
	}
	if source.Tokenizer != "" {
		c.Tokenizer = source.Tokenizer
	}
}
