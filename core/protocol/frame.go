package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FrameType is the value of the "type" field that every wire frame carries.
type FrameType string

const (
	TypeUserMessage FrameType = "user_message"
	TypeChunk       FrameType = "ai_chunk"
	TypeComplete    FrameType = "ai_complete"
	TypeError       FrameType = "error"
	TypeSystem      FrameType = "system"
)

// System frame actions. Inbound: stop, close, ping. Outbound: connected,
// stopped, closing, pong.
const (
	ActionStop      = "stop"
	ActionClose     = "close"
	ActionPing      = "ping"
	ActionConnected = "connected"
	ActionStopped   = "stopped"
	ActionClosing   = "closing"
	ActionPong      = "pong"
)

// Wire error codes carried by ErrorFrame.ErrorCode.
const (
	CodeInvalidFrame     = "INVALID_FRAME"
	CodeUnknownType      = "UNKNOWN_TYPE"
	CodeSessionMismatch  = "SESSION_MISMATCH"
	CodeEmptyMessage     = "EMPTY_MESSAGE"
	CodeRateLimited      = "RATE_LIMITED"
	CodeSessionExpired   = "SESSION_EXPIRED"
	CodeBusy             = "BUSY"
	CodeGenerationFailed = "GENERATION_FAILED"
	CodePersistence      = "PERSISTENCE_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeProcessing       = "PROCESSING_ERROR"
)

// Frame is any message that can be written to a client connection.
type Frame interface {
	FrameType() FrameType
}

// UserMessage is the inbound frame carrying a user's turn.
type UserMessage struct {
	Type      FrameType `json:"type"`
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Timestamp Timestamp `json:"timestamp"`
}

func (UserMessage) FrameType() FrameType { return TypeUserMessage }

// ChunkFrame carries one ordered fragment of a streamed answer.
type ChunkFrame struct {
	Type       FrameType `json:"type"`
	SessionID  string    `json:"session_id"`
	Content    string    `json:"content"`
	ChunkIndex int       `json:"chunk_index"`
	IsComplete bool      `json:"is_complete"`
}

func (ChunkFrame) FrameType() FrameType { return TypeChunk }

// NewChunk creates an ai_chunk frame.
func NewChunk(sessionID string, index int, content string, complete bool) ChunkFrame {
	return ChunkFrame{
		Type:       TypeChunk,
		SessionID:  sessionID,
		Content:    content,
		ChunkIndex: index,
		IsComplete: complete,
	}
}

// CompleteFrame announces a persisted assistant turn.
type CompleteFrame struct {
	Type         FrameType `json:"type"`
	SessionID    string    `json:"session_id"`
	MessageID    string    `json:"message_id"`
	FullResponse string    `json:"full_response"`
	TokenCount   int       `json:"token_count"`
}

func (CompleteFrame) FrameType() FrameType { return TypeComplete }

// NewComplete creates an ai_complete frame.
func NewComplete(sessionID, messageID, full string, tokens int) CompleteFrame {
	return CompleteFrame{
		Type:         TypeComplete,
		SessionID:    sessionID,
		MessageID:    messageID,
		FullResponse: full,
		TokenCount:   tokens,
	}
}

// ErrorFrame reports a rejected frame or a failed operation.
type ErrorFrame struct {
	Type      FrameType `json:"type"`
	ErrorCode string    `json:"error_code"`
	Message   string    `json:"message"`
	Details   string    `json:"details"`
}

func (ErrorFrame) FrameType() FrameType { return TypeError }

// NewError creates an error frame.
func NewError(code, message, details string) ErrorFrame {
	return ErrorFrame{
		Type:      TypeError,
		ErrorCode: code,
		Message:   message,
		Details:   details,
	}
}

// SystemFrame carries connection control in both directions.
type SystemFrame struct {
	Type      FrameType `json:"type"`
	SessionID string    `json:"session_id"`
	Action    string    `json:"action"`
	Message   string    `json:"message,omitempty"`
}

func (SystemFrame) FrameType() FrameType { return TypeSystem }

// NewSystem creates a system frame.
func NewSystem(sessionID, action, message string) SystemFrame {
	return SystemFrame{
		Type:      TypeSystem,
		SessionID: sessionID,
		Action:    action,
		Message:   message,
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Timestamp accepts either an RFC 3339 string or a Unix epoch number in
// milliseconds. It is written back in the form it was read.
type Timestamp struct {
	Time time.Time
	raw  json.RawMessage
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if len(t.raw) > 0 {
		return t.raw, nil
	}
	if t.Time.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.raw = append(t.raw[:0], data...)

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed
				return nil
			}
		}
		return fmt.Errorf("invalid timestamp %q", s)
	}

	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}

	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s", data)
	}
	t.Time = time.UnixMilli(int64(ms))
	return nil
}
