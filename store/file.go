package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

// entry is one keyed file under the store root.
type entry struct {
	Key   string
	Value []byte
}

// fileStore lays records out as one JSON document per key:
//
//	sessions/<id>.json
//	turns/<id>/<seq>.json
//	queries/<id>/<n>.json
//
// Writes go through a temp file and rename so a crash never leaves a torn
// record behind.
type fileStore struct {
	root string
	mu   sync.Mutex
}

// NewFile creates a Store backed by the filesystem under root.
func NewFile(root string) Store {
	return &fileStore{root: root}
}

func sessionKey(id string) string    { return path.Join("sessions", id+".json") }
func turnsPrefix(id string) string   { return path.Join("turns", id) }
func queriesPrefix(id string) string { return path.Join("queries", id) }
func seqKey(prefix string, seq int64) string {
	return path.Join(prefix, fmt.Sprintf("%012d.json", seq))
}

func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (s *fileStore) CreateOrGetSession(ctx context.Context, id, title string) (*Session, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, err := s.readSession(id); err == nil {
		return sess, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	sess := newSession(id, title, now())
	if err := s.writeJSON(sessionKey(id), sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *fileStore) GetSession(_ context.Context, id string) (*Session, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.readSession(id)
}

func (s *fileStore) ListSessions(_ context.Context, limit int) ([]Session, error) {
	keys, err := s.list("sessions")
	if err != nil {
		return nil, err
	}

	entries, err := s.load(keys...)
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(entries))
	for _, e := range entries {
		var sess Session
		if err := json.Unmarshal(e.Value, &sess); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, e.Key, err)
		}
		sessions = append(sessions, sess)
	}

	slices.SortFunc(sessions, func(a, b Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	_, end := page(len(sessions), 0, limit)
	return sessions[:end], nil
}

func (s *fileStore) DeleteSession(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readSession(id); err != nil {
		return err
	}

	turnKeys, err := s.list(turnsPrefix(id))
	if err != nil {
		return err
	}
	queryKeys, err := s.list(queriesPrefix(id))
	if err != nil {
		return err
	}

	keys := append(append(turnKeys, queryKeys...), sessionKey(id))
	return s.remove(keys...)
}

func (s *fileStore) AppendTurn(_ context.Context, sessionID string, turn protocol.Turn) (protocol.Turn, error) {
	if err := checkID(sessionID); err != nil {
		return protocol.Turn{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.readSession(sessionID)
	if err != nil {
		return protocol.Turn{}, err
	}

	keys, err := s.list(turnsPrefix(sessionID))
	if err != nil {
		return protocol.Turn{}, err
	}

	ts := now()
	stored := stampTurn(sessionID, int64(len(keys)+1), turn, ts)
	if err := s.writeJSON(seqKey(turnsPrefix(sessionID), stored.Seq), stored); err != nil {
		return protocol.Turn{}, err
	}

	sess.UpdatedAt = ts
	if err := s.writeJSON(sessionKey(sessionID), sess); err != nil {
		return protocol.Turn{}, err
	}

	return stored, nil
}

func (s *fileStore) ListRecentTurns(_ context.Context, sessionID string, limit int) ([]protocol.Turn, error) {
	if err := checkID(sessionID); err != nil {
		return nil, err
	}

	keys, err := s.list(turnsPrefix(sessionID))
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}
	return s.loadTurns(keys)
}

func (s *fileStore) ListTurns(_ context.Context, sessionID string, offset, limit int) ([]protocol.Turn, error) {
	if err := checkID(sessionID); err != nil {
		return nil, err
	}

	keys, err := s.list(turnsPrefix(sessionID))
	if err != nil {
		return nil, err
	}
	start, end := page(len(keys), offset, limit)
	return s.loadTurns(keys[start:end])
}

func (s *fileStore) RecordQuery(_ context.Context, rec QueryRecord) (QueryRecord, error) {
	if err := checkID(rec.SessionID); err != nil {
		return QueryRecord{}, err
	}
	rec = stampQuery(rec, now())

	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.list(queriesPrefix(rec.SessionID))
	if err != nil {
		return QueryRecord{}, err
	}
	if err := s.writeJSON(seqKey(queriesPrefix(rec.SessionID), int64(len(keys)+1)), rec); err != nil {
		return QueryRecord{}, err
	}
	return rec, nil
}

func (s *fileStore) ListQueries(_ context.Context, sessionID string, limit int) ([]QueryRecord, error) {
	if err := checkID(sessionID); err != nil {
		return nil, err
	}

	keys, err := s.list(queriesPrefix(sessionID))
	if err != nil {
		return nil, err
	}
	slices.Reverse(keys)
	_, end := page(len(keys), 0, limit)

	entries, err := s.load(keys[:end]...)
	if err != nil {
		return nil, err
	}

	records := make([]QueryRecord, 0, len(entries))
	for _, e := range entries {
		var rec QueryRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, e.Key, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) readSession(id string) (*Session, error) {
	entries, err := s.load(sessionKey(id))
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(entries[0].Value, &sess); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, entries[0].Key, err)
	}
	return &sess, nil
}

func (s *fileStore) loadTurns(keys []string) ([]protocol.Turn, error) {
	entries, err := s.load(keys...)
	if err != nil {
		return nil, err
	}

	turns := make([]protocol.Turn, 0, len(entries))
	for _, e := range entries {
		var turn protocol.Turn
		if err := json.Unmarshal(e.Value, &turn); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, e.Key, err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *fileStore) writeJSON(key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, key, err)
	}
	return s.save(entry{Key: key, Value: data})
}

// list returns the keys under prefix in lexical order. A missing prefix
// yields no keys.
func (s *fileStore) list(prefix string) ([]string, error) {
	base := filepath.Join(s.root, filepath.FromSlash(prefix))
	var keys []string

	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == base {
				return fs.SkipAll
			}
			return err
		}

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	return keys, nil
}

func (s *fileStore) load(keys ...string) ([]entry, error) {
	entries := make([]entry, 0, len(keys))

	for _, key := range keys {
		p := filepath.Join(s.root, filepath.FromSlash(key))
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, key, err)
		}
		entries = append(entries, entry{Key: key, Value: data})
	}

	return entries, nil
}

func (s *fileStore) save(entries ...entry) error {
	for _, e := range entries {
		p := filepath.Join(s.root, filepath.FromSlash(e.Key))

		dir := filepath.Dir(p)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, e.Key, err)
		}

		tmp, err := os.CreateTemp(dir, ".tmp-*")
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, e.Key, err)
		}
		tmpName := tmp.Name()

		if _, err := tmp.Write(e.Value); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, e.Key, err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, e.Key, err)
		}

		if err := os.Rename(tmpName, p); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, e.Key, err)
		}
	}

	return nil
}

// remove deletes keys and prunes directories left empty.
func (s *fileStore) remove(keys ...string) error {
	for _, key := range keys {
		p := filepath.Join(s.root, filepath.FromSlash(key))
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: delete %s: %v", ErrSaveFailed, key, err)
		}

		dir := filepath.Dir(p)
		for dir != s.root {
			if err := os.Remove(dir); err != nil {
				break
			}
			dir = filepath.Dir(dir)
		}
	}

	return nil
}
