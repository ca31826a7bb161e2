package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tailored-agentic-units/chatstream/core/config"
	"github.com/tailored-agentic-units/chatstream/session"
)

func TestDefaultConfig(t *testing.T) {
	cfg := session.DefaultConfig()

	if cfg.GenerationTimeout.Std() != 120*time.Second {
		t.Errorf("got generation timeout %v, want 120s", cfg.GenerationTimeout)
	}
	if cfg.Tokenizer != session.TokenizerWords {
		t.Errorf("got tokenizer %q, want %q", cfg.Tokenizer, session.TokenizerWords)
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.Merge(&session.Config{
		GenerationTimeout: config.Duration(30 * time.Second),
		ExpiryTTL:         config.Duration(-1),
		Workers:           2,
	})

	if cfg.GenerationTimeout.Std() != 30*time.Second {
		t.Errorf("got generation timeout %v, want 30s", cfg.GenerationTimeout)
	}
	if cfg.ExpiryTTL >= 0 {
		t.Errorf("negative expiry not merged: %v", cfg.ExpiryTTL)
	}
	if cfg.Workers != 2 {
		t.Errorf("got workers %d, want 2", cfg.Workers)
	}
	if cfg.PersistAttempts != 3 {
		t.Errorf("zero merge changed persist attempts to %d", cfg.PersistAttempts)
	}
}

func TestNewTokenCounter(t *testing.T) {
	c, err := session.NewTokenCounter("")
	if err != nil {
		t.Fatalf("NewTokenCounter failed: %v", err)
	}
	if got := c.Count("Hi there!"); got != 2 {
		t.Errorf("got %d words, want 2", got)
	}
	if got := c.Count("  spaced \n\t out  "); got != 2 {
		t.Errorf("got %d words, want 2", got)
	}

	if _, err := session.NewTokenCounter("no_such_encoding"); !errors.Is(err, session.ErrUnknownTokenizer) {
		t.Errorf("got %v, want ErrUnknownTokenizer", err)
	}
}
