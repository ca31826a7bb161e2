package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

type sessionModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Owner     string `gorm:"size:128"`
	Title     string `gorm:"size:255"`
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

func (sessionModel) TableName() string { return "chat_sessions" }

type turnModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	SessionID string `gorm:"size:64;uniqueIndex:idx_turn_session_seq"`
	Seq       int64  `gorm:"uniqueIndex:idx_turn_session_seq"`
	Role      string `gorm:"size:16"`
	Content   string `gorm:"type:text"`
	Metadata  string `gorm:"type:text"`
	CreatedAt time.Time
}

func (turnModel) TableName() string { return "chat_turns" }

type queryModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	SessionID   string `gorm:"size:64;index"`
	Source      string `gorm:"size:64"`
	Question    string `gorm:"type:text"`
	Statement   string `gorm:"type:text"`
	Status      string `gorm:"size:16"`
	ResultCount int
	Error       string `gorm:"type:text"`
	DurationMS  int64
	CreatedAt   time.Time `gorm:"index"`
}

func (queryModel) TableName() string { return "query_history" }

type gormStore struct {
	db *gorm.DB
}

// Dialector resolves a gorm dialector for one of the sqlite, postgres or
// mysql drivers.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// OpenDB opens a gorm connection with logging silenced; callers that want
// SQL traces attach their own logger.
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return db, nil
}

// NewGorm creates a Store on an open gorm connection and migrates its tables.
func NewGorm(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&sessionModel{}, &turnModel{}, &queryModel{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) CreateOrGetSession(ctx context.Context, id, title string) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	seed := newSession(id, title, now())
	model := sessionModel{
		ID:        seed.ID,
		Title:     seed.Title,
		Active:    seed.Active,
		CreatedAt: seed.CreatedAt,
		UpdatedAt: seed.UpdatedAt,
	}

	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrSaveFailed, id, err)
	}

	var stored sessionModel
	if err := db.First(&stored, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrLoadFailed, id, err)
	}
	return stored.toSession(), nil
}

func (s *gormStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var stored sessionModel
	err := s.db.WithContext(ctx).First(&stored, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrLoadFailed, id, err)
	}
	return stored.toSession(), nil
}

func (s *gormStore) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	q := s.db.WithContext(ctx).Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []sessionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: sessions: %v", ErrLoadFailed, err)
	}

	sessions := make([]Session, len(models))
	for i, m := range models {
		sessions[i] = *m.toSession()
	}
	return sessions, nil
}

func (s *gormStore) DeleteSession(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&sessionModel{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("%w: delete session %s: %v", ErrSaveFailed, id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: session %s", ErrNotFound, id)
		}
		if err := tx.Delete(&turnModel{}, "session_id = ?", id).Error; err != nil {
			return fmt.Errorf("%w: delete turns %s: %v", ErrSaveFailed, id, err)
		}
		if err := tx.Delete(&queryModel{}, "session_id = ?", id).Error; err != nil {
			return fmt.Errorf("%w: delete queries %s: %v", ErrSaveFailed, id, err)
		}
		return nil
	})
}

func (s *gormStore) AppendTurn(ctx context.Context, sessionID string, turn protocol.Turn) (protocol.Turn, error) {
	var stored protocol.Turn

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sess sessionModel
		if err := tx.First(&sess, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
			}
			return fmt.Errorf("%w: session %s: %v", ErrLoadFailed, sessionID, err)
		}

		var last int64
		if err := tx.Model(&turnModel{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return fmt.Errorf("%w: seq %s: %v", ErrLoadFailed, sessionID, err)
		}

		ts := now()
		stored = stampTurn(sessionID, last+1, turn, ts)

		model, err := toTurnModel(stored)
		if err != nil {
			return err
		}
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("%w: turn %s: %v", ErrSaveFailed, sessionID, err)
		}

		if err := tx.Model(&sessionModel{}).
			Where("id = ?", sessionID).
			Update("updated_at", ts).Error; err != nil {
			return fmt.Errorf("%w: session %s: %v", ErrSaveFailed, sessionID, err)
		}
		return nil
	})
	if err != nil {
		return protocol.Turn{}, err
	}
	return stored, nil
}

func (s *gormStore) ListRecentTurns(ctx context.Context, sessionID string, limit int) ([]protocol.Turn, error) {
	q := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []turnModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: turns %s: %v", ErrLoadFailed, sessionID, err)
	}

	turns := make([]protocol.Turn, len(models))
	for i, m := range models {
		turn, err := m.toTurn()
		if err != nil {
			return nil, err
		}
		turns[len(models)-1-i] = turn
	}
	return turns, nil
}

func (s *gormStore) ListTurns(ctx context.Context, sessionID string, offset, limit int) ([]protocol.Turn, error) {
	q := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []turnModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: turns %s: %v", ErrLoadFailed, sessionID, err)
	}

	turns := make([]protocol.Turn, len(models))
	for i, m := range models {
		turn, err := m.toTurn()
		if err != nil {
			return nil, err
		}
		turns[i] = turn
	}
	return turns, nil
}

func (s *gormStore) RecordQuery(ctx context.Context, rec QueryRecord) (QueryRecord, error) {
	rec = stampQuery(rec, now())
	model := queryModel{
		ID:          rec.ID,
		SessionID:   rec.SessionID,
		Source:      rec.Source,
		Question:    rec.Question,
		Statement:   rec.Statement,
		Status:      rec.Status,
		ResultCount: rec.ResultCount,
		Error:       rec.Error,
		DurationMS:  rec.Duration.Milliseconds(),
		CreatedAt:   rec.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return QueryRecord{}, fmt.Errorf("%w: query %s: %v", ErrSaveFailed, rec.SessionID, err)
	}
	return rec, nil
}

func (s *gormStore) ListQueries(ctx context.Context, sessionID string, limit int) ([]QueryRecord, error) {
	q := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []queryModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: queries %s: %v", ErrLoadFailed, sessionID, err)
	}

	records := make([]QueryRecord, len(models))
	for i, m := range models {
		records[i] = QueryRecord{
			ID:          m.ID,
			SessionID:   m.SessionID,
			Source:      m.Source,
			Question:    m.Question,
			Statement:   m.Statement,
			Status:      m.Status,
			ResultCount: m.ResultCount,
			Error:       m.Error,
			Duration:    time.Duration(m.DurationMS) * time.Millisecond,
			CreatedAt:   m.CreatedAt,
		}
	}
	return records, nil
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (m sessionModel) toSession() *Session {
	return &Session{
		ID:        m.ID,
		Owner:     m.Owner,
		Title:     m.Title,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toTurnModel(t protocol.Turn) (turnModel, error) {
	m := turnModel{
		ID:        t.ID,
		SessionID: t.SessionID,
		Seq:       t.Seq,
		Role:      string(t.Role),
		Content:   t.Content,
		CreatedAt: t.CreatedAt,
	}
	if len(t.Metadata) > 0 {
		data, err := json.Marshal(t.Metadata)
		if err != nil {
			return turnModel{}, fmt.Errorf("%w: metadata: %v", ErrSaveFailed, err)
		}
		m.Metadata = string(data)
	}
	return m, nil
}

func (m turnModel) toTurn() (protocol.Turn, error) {
	t := protocol.Turn{
		ID:        m.ID,
		SessionID: m.SessionID,
		Seq:       m.Seq,
		Role:      protocol.Role(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &t.Metadata); err != nil {
			return protocol.Turn{}, fmt.Errorf("%w: metadata %s: %v", ErrLoadFailed, m.ID, err)
		}
	}
	return t, nil
}
