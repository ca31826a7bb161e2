package config_test

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/chatstream/core/config"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "duration string", input: `"5s"`, want: 5 * time.Second},
		{name: "milliseconds", input: `"250ms"`, want: 250 * time.Millisecond},
		{name: "bare seconds", input: `300`, want: 300 * time.Second},
		{name: "null", input: `null`, want: 0},
		{name: "invalid string", input: `"soon"`, wantErr: true},
		{name: "invalid type", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d config.Duration
			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Std() != tt.want {
				t.Errorf("got %v, want %v", d.Std(), tt.want)
			}
		})
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(config.Duration(90 * time.Second))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"1m30s"` {
		t.Errorf("got %s, want %q", data, "1m30s")
	}
}

func TestDuration_YAML(t *testing.T) {
	var cfg struct {
		Timeout config.Duration `yaml:"timeout"`
		Idle    config.Duration `yaml:"idle"`
	}

	input := "timeout: 5s\nidle: 300\n"
	if err := yaml.Unmarshal([]byte(input), &cfg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if cfg.Timeout.Std() != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", cfg.Timeout.Std())
	}
	if cfg.Idle.Std() != 300*time.Second {
		t.Errorf("idle = %v, want 300s", cfg.Idle.Std())
	}
}
