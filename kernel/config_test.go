package kernel_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tailored-agentic-units/chatstream/kernel"
	"github.com/tailored-agentic-units/chatstream/store"
)

func TestDefaultConfig(t *testing.T) {
	cfg := kernel.DefaultConfig()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("got Server.Addr %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Hub.Path != "/ws" {
		t.Errorf("got Hub.Path %q, want %q", cfg.Hub.Path, "/ws")
	}
	if cfg.Memory.Size != 10 {
		t.Errorf("got Memory.Size %d, want 10", cfg.Memory.Size)
	}
	if cfg.Store.Driver != store.DriverMemory {
		t.Errorf("got Store.Driver %q, want %q", cfg.Store.Driver, store.DriverMemory)
	}
	if cfg.Generation.Provider != "echo" {
		t.Errorf("got Generation.Provider %q, want %q", cfg.Generation.Provider, "echo")
	}
	if len(cfg.Observers) != 2 || cfg.Observers[0] != "slog" || cfg.Observers[1] != "metrics" {
		t.Errorf("got Observers %v, want [slog metrics]", cfg.Observers)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("got LogLevel %q, want %q", cfg.LogLevel, "info")
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := kernel.DefaultConfig()

	source := &kernel.Config{
		Observers: []string{"noop"},
		LogLevel:  "debug",
		LogFormat: kernel.LogJSON,
	}
	source.Server.Addr = ":9090"
	source.Memory.Size = 4
	source.Store.Driver = store.DriverFile

	cfg.Merge(source)

	if cfg.Server.Addr != ":9090" {
		t.Errorf("got Server.Addr %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Memory.Size != 4 {
		t.Errorf("got Memory.Size %d, want 4", cfg.Memory.Size)
	}
	if cfg.Store.Driver != store.DriverFile {
		t.Errorf("got Store.Driver %q, want %q", cfg.Store.Driver, store.DriverFile)
	}
	if len(cfg.Observers) != 1 || cfg.Observers[0] != "noop" {
		t.Errorf("got Observers %v, want [noop]", cfg.Observers)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("got LogLevel %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.LogFormat != kernel.LogJSON {
		t.Errorf("got LogFormat %q, want %q", cfg.LogFormat, kernel.LogJSON)
	}
}

func TestConfig_Merge_ZeroValuesPreserveDefaults(t *testing.T) {
	cfg := kernel.DefaultConfig()
	original := kernel.DefaultConfig()

	source := &kernel.Config{} // All zero values

	cfg.Merge(source)

	if cfg.Server.Addr != original.Server.Addr {
		t.Errorf("got Server.Addr %q, want %q (preserved default)", cfg.Server.Addr, original.Server.Addr)
	}
	if cfg.Session.GenerationTimeout != original.Session.GenerationTimeout {
		t.Errorf("got Session.GenerationTimeout %v, want %v (preserved default)", cfg.Session.GenerationTimeout, original.Session.GenerationTimeout)
	}
	if cfg.Memory.Size != original.Memory.Size {
		t.Errorf("got Memory.Size %d, want %d (preserved default)", cfg.Memory.Size, original.Memory.Size)
	}
	if len(cfg.Observers) != len(original.Observers) {
		t.Errorf("got Observers %v, want %v (preserved default)", cfg.Observers, original.Observers)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	content := `{
		"server": {"addr": ":7070"},
		"session": {"generation_timeout": "30s"},
		"memory": {"size": 6},
		"store": {"driver": "file", "path": "/tmp/chats"}
	}`

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := kernel.LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Addr != ":7070" {
		t.Errorf("got Server.Addr %q, want %q", cfg.Server.Addr, ":7070")
	}
	if got := cfg.Session.GenerationTimeout.Std(); got != 30*time.Second {
		t.Errorf("got Session.GenerationTimeout %v, want 30s", got)
	}
	if cfg.Memory.Size != 6 {
		t.Errorf("got Memory.Size %d, want 6", cfg.Memory.Size)
	}
	if cfg.Store.Path != "/tmp/chats" {
		t.Errorf("got Store.Path %q, want %q", cfg.Store.Path, "/tmp/chats")
	}
	if cfg.Hub.Path != "/ws" {
		t.Errorf("got Hub.Path %q, want %q (default)", cfg.Hub.Path, "/ws")
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
hub:
  path: /chat
  rate_limit: 5
router:
  strategy: fallback
log_format: json
`

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := kernel.LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Hub.Path != "/chat" {
		t.Errorf("got Hub.Path %q, want %q", cfg.Hub.Path, "/chat")
	}
	if cfg.Hub.RateLimit != 5 {
		t.Errorf("got Hub.RateLimit %v, want 5", cfg.Hub.RateLimit)
	}
	if cfg.Router.Strategy != "fallback" {
		t.Errorf("got Router.Strategy %q, want %q", cfg.Router.Strategy, "fallback")
	}
	if cfg.LogFormat != kernel.LogJSON {
		t.Errorf("got LogFormat %q, want %q", cfg.LogFormat, kernel.LogJSON)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := kernel.LoadConfig("/nonexistent/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	if err := os.WriteFile(configPath, []byte("{invalid"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, err := kernel.LoadConfig(configPath)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"text info", "info", kernel.LogText, false},
		{"json debug", "debug", kernel.LogJSON, false},
		{"empty format", "warn", "", false},
		{"unknown level", "loud", kernel.LogText, true},
		{"unknown format", "info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := kernel.DefaultConfig()
			cfg.LogLevel = tt.level
			cfg.LogFormat = tt.format

			logger, err := kernel.NewLogger(&cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger failed: %v", err)
			}
			if logger == nil {
				t.Error("got nil logger")
			}
		})
	}
}
