package protocol_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

func TestFrames_WireShape(t *testing.T) {
	tests := []struct {
		name  string
		frame protocol.Frame
		want  string
	}{
		{
			name:  "ai_chunk",
			frame: protocol.NewChunk("s1", 0, "Hi", false),
			want:  `{"type":"ai_chunk","session_id":"s1","content":"Hi","chunk_index":0,"is_complete":false}`,
		},
		{
			name:  "terminal ai_chunk",
			frame: protocol.NewChunk("s1", 2, "", true),
			want:  `{"type":"ai_chunk","session_id":"s1","content":"","chunk_index":2,"is_complete":true}`,
		},
		{
			name:  "ai_complete",
			frame: protocol.NewComplete("s1", "m1", "Hi there!", 2),
			want:  `{"type":"ai_complete","session_id":"s1","message_id":"m1","full_response":"Hi there!","token_count":2}`,
		},
		{
			name:  "error",
			frame: protocol.NewError(protocol.CodeBusy, "generation in progress", ""),
			want:  `{"type":"error","error_code":"BUSY","message":"generation in progress","details":""}`,
		},
		{
			name:  "system",
			frame: protocol.NewSystem("s1", protocol.ActionConnected, ""),
			want:  `{"type":"system","session_id":"s1","action":"connected"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.frame)
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("got %s, want %s", data, tt.want)
			}
		})
	}
}

func TestFrames_FrameType(t *testing.T) {
	tests := []struct {
		frame protocol.Frame
		want  protocol.FrameType
	}{
		{protocol.UserMessage{}, protocol.TypeUserMessage},
		{protocol.ChunkFrame{}, protocol.TypeChunk},
		{protocol.CompleteFrame{}, protocol.TypeComplete},
		{protocol.ErrorFrame{}, protocol.TypeError},
		{protocol.SystemFrame{}, protocol.TypeSystem},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			if got := tt.frame.FrameType(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserMessage_Decode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "rfc3339 timestamp",
			input: `{"type":"user_message","session_id":"s1","message":"hello","timestamp":"2025-01-02T03:04:05Z"}`,
			want:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			name:  "naive iso timestamp",
			input: `{"type":"user_message","session_id":"s1","message":"hello","timestamp":"2025-01-02T03:04:05.5"}`,
			want:  time.Date(2025, 1, 2, 3, 4, 5, 500000000, time.UTC),
		},
		{
			name:  "epoch milliseconds",
			input: `{"type":"user_message","session_id":"s1","message":"hello","timestamp":1735787045000}`,
			want:  time.UnixMilli(1735787045000),
		},
		{
			name:  "missing timestamp",
			input: `{"type":"user_message","session_id":"s1","message":"hello"}`,
		},
		{
			name:    "garbage timestamp",
			input:   `{"type":"user_message","session_id":"s1","message":"hello","timestamp":"yesterday"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg protocol.UserMessage
			err := json.Unmarshal([]byte(tt.input), &msg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if msg.SessionID != "s1" || msg.Message != "hello" {
				t.Errorf("got session %q message %q", msg.SessionID, msg.Message)
			}
			if !msg.Timestamp.Time.Equal(tt.want) {
				t.Errorf("got timestamp %v, want %v", msg.Timestamp.Time, tt.want)
			}
		})
	}
}

func TestUserMessage_RoundTripPreservesTimestamp(t *testing.T) {
	input := `{"type":"user_message","session_id":"s1","message":"hello","timestamp":1735787045000}`

	var msg protocol.UserMessage
	if err := json.Unmarshal([]byte(input), &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != input {
		t.Errorf("got %s, want %s", data, input)
	}
}

func TestTurn_Clone(t *testing.T) {
	original := protocol.NewTurn(protocol.RoleUser, "hello", map[string]any{"route": "DIRECT"})

	clone := original.Clone()
	clone.Metadata["route"] = "tampered"

	if original.Metadata["route"] != "DIRECT" {
		t.Errorf("original metadata mutated: got %v", original.Metadata["route"])
	}
}

func TestRole_Valid(t *testing.T) {
	tests := []struct {
		role protocol.Role
		want bool
	}{
		{protocol.RoleUser, true},
		{protocol.RoleAssistant, true},
		{protocol.RoleSystem, true},
		{"tool", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.want {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}
