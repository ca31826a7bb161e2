package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

// redisStore keeps each session as a JSON document with its turns and audit
// records in lists:
//
//	<prefix>session:<id>   JSON Session
//	<prefix>turns:<id>     list of JSON turns, oldest first
//	<prefix>queries:<id>   list of JSON query records, newest first
//	<prefix>idx            sorted set of ids scored by last update
//
// A positive ttl expires all keys of a session that long after its last
// write.
const maxTxAttempts = 64

type redisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Store on an existing Redis client.
func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) Store {
	if prefix == "" {
		prefix = "chatstream:"
	}
	return &redisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *redisStore) idxKey() string              { return s.prefix + "idx" }
func (s *redisStore) sessKey(id string) string    { return s.prefix + "session:" + id }
func (s *redisStore) turnsKey(id string) string   { return s.prefix + "turns:" + id }
func (s *redisStore) queriesKey(id string) string { return s.prefix + "queries:" + id }

func (s *redisStore) CreateOrGetSession(ctx context.Context, id, title string) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	sess := newSession(id, title, now())
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrSaveFailed, id, err)
	}

	created, err := s.rdb.SetNX(ctx, s.sessKey(id), data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrSaveFailed, id, err)
	}
	if !created {
		return s.GetSession(ctx, id)
	}

	if err := s.rdb.ZAdd(ctx, s.idxKey(), &redis.Z{
		Score:  float64(sess.UpdatedAt.UnixNano()),
		Member: id,
	}).Err(); err != nil {
		return nil, fmt.Errorf("%w: index %s: %v", ErrSaveFailed, id, err)
	}
	return &sess, nil
}

func (s *redisStore) GetSession(ctx context.Context, id string) (*Session, error) {
	data, err := s.rdb.Get(ctx, s.sessKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrLoadFailed, id, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrLoadFailed, id, err)
	}
	return &sess, nil
}

func (s *redisStore) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.rdb.ZRevRange(ctx, s.idxKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: sessions: %v", ErrLoadFailed, err)
	}

	sessions := make([]Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// expired; drop the stale index entry
			s.rdb.ZRem(ctx, s.idxKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}

func (s *redisStore) DeleteSession(ctx context.Context, id string) error {
	removed, err := s.rdb.Del(ctx, s.sessKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: delete session %s: %v", ErrSaveFailed, id, err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.turnsKey(id), s.queriesKey(id))
		pipe.ZRem(ctx, s.idxKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: delete session %s: %v", ErrSaveFailed, id, err)
	}
	return nil
}

func (s *redisStore) AppendTurn(ctx context.Context, sessionID string, turn protocol.Turn) (protocol.Turn, error) {
	var stored protocol.Turn

	// Optimistic transaction on the turn list keeps list position and Seq in
	// agreement under concurrent writers.
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, s.sessKey(sessionID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		if err != nil {
			return err
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return err
		}

		n, err := tx.LLen(ctx, s.turnsKey(sessionID)).Result()
		if err != nil {
			return err
		}

		ts := now()
		stored = stampTurn(sessionID, n+1, turn, ts)
		turnData, err := json.Marshal(stored)
		if err != nil {
			return err
		}

		sess.UpdatedAt = ts
		sessData, err := json.Marshal(sess)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, s.turnsKey(sessionID), turnData)
			pipe.Set(ctx, s.sessKey(sessionID), sessData, s.ttl)
			pipe.ZAdd(ctx, s.idxKey(), &redis.Z{Score: float64(ts.UnixNano()), Member: sessionID})
			if s.ttl > 0 {
				pipe.Expire(ctx, s.turnsKey(sessionID), s.ttl)
			}
			return nil
		})
		return err
	}

	for range maxTxAttempts {
		err := s.rdb.Watch(ctx, txn, s.sessKey(sessionID), s.turnsKey(sessionID))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			return protocol.Turn{}, err
		}
		if err != nil {
			return protocol.Turn{}, fmt.Errorf("%w: turn %s: %v", ErrSaveFailed, sessionID, err)
		}
		return stored, nil
	}
	return protocol.Turn{}, fmt.Errorf("%w: turn %s: too much contention", ErrSaveFailed, sessionID)
}

func (s *redisStore) ListRecentTurns(ctx context.Context, sessionID string, limit int) ([]protocol.Turn, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	return s.rangeTurns(ctx, sessionID, start, -1)
}

func (s *redisStore) ListTurns(ctx context.Context, sessionID string, offset, limit int) ([]protocol.Turn, error) {
	if offset < 0 {
		offset = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}
	return s.rangeTurns(ctx, sessionID, int64(offset), stop)
}

func (s *redisStore) rangeTurns(ctx context.Context, sessionID string, start, stop int64) ([]protocol.Turn, error) {
	items, err := s.rdb.LRange(ctx, s.turnsKey(sessionID), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: turns %s: %v", ErrLoadFailed, sessionID, err)
	}

	turns := make([]protocol.Turn, len(items))
	for i, item := range items {
		if err := json.Unmarshal([]byte(item), &turns[i]); err != nil {
			return nil, fmt.Errorf("%w: turns %s: %v", ErrLoadFailed, sessionID, err)
		}
	}
	return turns, nil
}

func (s *redisStore) RecordQuery(ctx context.Context, rec QueryRecord) (QueryRecord, error) {
	rec = stampQuery(rec, now())
	data, err := json.Marshal(rec)
	if err != nil {
		return QueryRecord{}, fmt.Errorf("%w: query %s: %v", ErrSaveFailed, rec.SessionID, err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.queriesKey(rec.SessionID), data)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.queriesKey(rec.SessionID), s.ttl)
		}
		return nil
	})
	if err != nil {
		return QueryRecord{}, fmt.Errorf("%w: query %s: %v", ErrSaveFailed, rec.SessionID, err)
	}
	return rec, nil
}

func (s *redisStore) ListQueries(ctx context.Context, sessionID string, limit int) ([]QueryRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	items, err := s.rdb.LRange(ctx, s.queriesKey(sessionID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: queries %s: %v", ErrLoadFailed, sessionID, err)
	}

	records := make([]QueryRecord, len(items))
	for i, item := range items {
		if err := json.Unmarshal([]byte(item), &records[i]); err != nil {
			return nil, fmt.Errorf("%w: queries %s: %v", ErrLoadFailed, sessionID, err)
		}
	}
	return records, nil
}

func (s *redisStore) Close() error {
	return s.rdb.Close()
}
