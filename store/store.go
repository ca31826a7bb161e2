// Package store defines the persistence contract for sessions, turns and the
// lookup audit log, together with memory, file, SQL (gorm) and Redis
// implementations.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

// Session is the persisted record of one conversation thread.
type Session struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner,omitempty"`
	Title     string    `json:"title"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Query status values recorded in the audit log.
const (
	QuerySuccess = "success"
	QueryFailed  = "failed"
	QueryBlocked = "blocked"
)

// QueryRecord is one audited data lookup.
type QueryRecord struct {
	ID          string        `json:"id"`
	SessionID   string        `json:"session_id"`
	Source      string        `json:"source"`
	Question    string        `json:"question"`
	Statement   string        `json:"statement,omitempty"`
	Status      string        `json:"status"`
	ResultCount int           `json:"result_count"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Store persists sessions and their append-only turns. Implementations must
// be safe for concurrent use by any number of sessions.
type Store interface {
	// CreateOrGetSession returns the session with id, creating it when absent.
	// The title is only used on creation; empty selects DefaultTitle(id).
	CreateOrGetSession(ctx context.Context, id, title string) (*Session, error)
	// GetSession returns ErrNotFound when the session does not exist.
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListSessions returns sessions, most recently updated first. A limit of
	// zero or less returns all of them.
	ListSessions(ctx context.Context, limit int) ([]Session, error)
	// DeleteSession removes a session with its turns and audit records.
	DeleteSession(ctx context.Context, id string) error

	// AppendTurn persists turn as the next entry of the session, assigning
	// ID, SessionID, Seq and CreatedAt. It fails with ErrNotFound when the
	// session does not exist.
	AppendTurn(ctx context.Context, sessionID string, turn protocol.Turn) (protocol.Turn, error)
	// ListRecentTurns returns at most limit of the newest turns, oldest first.
	ListRecentTurns(ctx context.Context, sessionID string, limit int) ([]protocol.Turn, error)
	// ListTurns returns turns oldest first, skipping offset and returning at
	// most limit (zero or less for no limit).
	ListTurns(ctx context.Context, sessionID string, offset, limit int) ([]protocol.Turn, error)

	// RecordQuery appends rec to the audit log, assigning ID and CreatedAt.
	RecordQuery(ctx context.Context, rec QueryRecord) (QueryRecord, error)
	// ListQueries returns audit records for a session, newest first.
	ListQueries(ctx context.Context, sessionID string, limit int) ([]QueryRecord, error)

	Close() error
}

// DefaultTitle is the title given to sessions created without one.
func DefaultTitle(id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return "Chat - " + short
}

// NewID mints a time-ordered identifier for sessions, turns and queries.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func newSession(id, title string, now time.Time) Session {
	if title == "" {
		title = DefaultTitle(id)
	}
	return Session{
		ID:        id,
		Title:     title,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func stampTurn(sessionID string, seq int64, turn protocol.Turn, now time.Time) protocol.Turn {
	turn = turn.Clone()
	if turn.ID == "" {
		turn.ID = NewID()
	}
	turn.SessionID = sessionID
	turn.Seq = seq
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}
	return turn
}

func stampQuery(rec QueryRecord, now time.Time) QueryRecord {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	return rec
}

func cloneTurns(turns []protocol.Turn) []protocol.Turn {
	out := make([]protocol.Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}

// page returns the bounds of items[offset:offset+limit] clamped to n.
func page(n, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}

func now() time.Time {
	return time.Now().UTC()
}
