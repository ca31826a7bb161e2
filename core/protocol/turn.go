// Package protocol defines the conversation vocabulary shared by every
// subsystem: turns, roles, and the JSON frames exchanged with clients.
package protocol

import (
	"maps"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn is one append-only message in a session. ID, SessionID, Seq and
// CreatedAt are assigned by the store when the turn is persisted.
type Turn struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Seq       int64          `json:"seq"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewTurn creates an unpersisted turn with the given role and content.
//
//	turn := protocol.NewTurn(protocol.RoleUser, "hello", nil)
func NewTurn(role Role, content string, metadata map[string]any) Turn {
	return Turn{Role: role, Content: content, Metadata: metadata}
}

// Clone returns a copy of t whose metadata map is independent of the original.
func (t Turn) Clone() Turn {
	t.Metadata = maps.Clone(t.Metadata)
	return t
}
