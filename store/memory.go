package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

type memoryStore struct {
	sessions map[string]*Session
	turns    map[string][]protocol.Turn
	queries  map[string][]QueryRecord
	mu       sync.RWMutex
}

// NewMemory creates a Store held entirely in process memory. Contents are
// lost when the process exits.
func NewMemory() Store {
	return &memoryStore{
		sessions: make(map[string]*Session),
		turns:    make(map[string][]protocol.Turn),
		queries:  make(map[string][]QueryRecord),
	}
}

func (s *memoryStore) CreateOrGetSession(_ context.Context, id, title string) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		copied := *sess
		return &copied, nil
	}

	sess := newSession(id, title, now())
	s.sessions[id] = &sess
	copied := sess
	return &copied, nil
}

func (s *memoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	copied := *sess
	return &copied, nil
}

func (s *memoryStore) ListSessions(_ context.Context, limit int) ([]Session, error) {
	s.mu.RLock()
	sessions := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, *sess)
	}
	s.mu.RUnlock()

	slices.SortFunc(sessions, func(a, b Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	_, end := page(len(sessions), 0, limit)
	return sessions[:end], nil
}

func (s *memoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	delete(s.sessions, id)
	delete(s.turns, id)
	delete(s.queries, id)
	return nil
}

func (s *memoryStore) AppendTurn(_ context.Context, sessionID string, turn protocol.Turn) (protocol.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return protocol.Turn{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	ts := now()
	stored := stampTurn(sessionID, int64(len(s.turns[sessionID])+1), turn, ts)
	s.turns[sessionID] = append(s.turns[sessionID], stored)
	sess.UpdatedAt = ts

	return stored.Clone(), nil
}

func (s *memoryStore) ListRecentTurns(_ context.Context, sessionID string, limit int) ([]protocol.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return cloneTurns(turns), nil
}

func (s *memoryStore) ListTurns(_ context.Context, sessionID string, offset, limit int) ([]protocol.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[sessionID]
	start, end := page(len(turns), offset, limit)
	return cloneTurns(turns[start:end]), nil
}

func (s *memoryStore) RecordQuery(_ context.Context, rec QueryRecord) (QueryRecord, error) {
	rec = stampQuery(rec, now())

	s.mu.Lock()
	s.queries[rec.SessionID] = append(s.queries[rec.SessionID], rec)
	s.mu.Unlock()

	return rec, nil
}

func (s *memoryStore) ListQueries(_ context.Context, sessionID string, limit int) ([]QueryRecord, error) {
	s.mu.RLock()
	records := slices.Clone(s.queries[sessionID])
	s.mu.RUnlock()

	slices.Reverse(records)
	_, end := page(len(records), 0, limit)
	return records[:end], nil
}

func (s *memoryStore) Close() error { return nil }
