package lookup

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"
)

const sqlSystemPrompt = `You translate questions into a single read-only SQL SELECT statement.
Reply with the statement only, no explanation.`

// SQL answers lookups by running read-only statements through gorm. Natural
// language questions are translated to SQL when a translator is configured.
type SQL struct {
	db         *gorm.DB
	translator Completer
	maxRows    int
	schema     string
	schemaOnce sync.Once
}

// SQLOption configures a SQL source.
type SQLOption func(*SQL)

// WithTranslator enables text-to-SQL translation.
func WithTranslator(c Completer) SQLOption {
	return func(s *SQL) {
		s.translator = c
	}
}

// WithMaxRows sets how many rows are rendered into the result text.
func WithMaxRows(n int) SQLOption {
	return func(s *SQL) {
		if n > 0 {
			s.maxRows = n
		}
	}
}

// WithSchema describes the schema to the translator. When unset the table
// names are discovered on first use.
func WithSchema(description string) SQLOption {
	return func(s *SQL) {
		s.schema = description
	}
}

// NewSQL creates a SQL source on db.
func NewSQL(db *gorm.DB, opts ...SQLOption) *SQL {
	s := &SQL{db: db, maxRows: DefaultMaxRows}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQL) Query(ctx context.Context, query string) (*Result, error) {
	statement := StripFences(query)

	if !strings.HasPrefix(strings.ToUpper(statement), "SELECT") && s.translator != nil {
		translated, err := s.translate(ctx, query)
		if err != nil {
			return nil, err
		}
		statement = translated
	}

	if err := Validate(statement); err != nil {
		return nil, err
	}
	statement = strings.TrimSuffix(strings.TrimSpace(statement), ";")

	rows, err := s.db.WithContext(ctx).Raw(statement).Rows()
	if err != nil {
		return nil, &StatementError{Statement: statement, Err: err}
	}
	defer rows.Close()

	data, err := scanRows(rows)
	if err != nil {
		return nil, &StatementError{Statement: statement, Err: err}
	}

	return &Result{
		Query:     query,
		Statement: statement,
		Text:      FormatRows(data, s.maxRows),
		Rows:      len(data),
	}, nil
}

// Tables lists the tables visible to the connection.
func (s *SQL) Tables(ctx context.Context) ([]string, error) {
	return s.db.WithContext(ctx).Migrator().GetTables()
}

func (s *SQL) translate(ctx context.Context, question string) (string, error) {
	s.schemaOnce.Do(func() {
		if s.schema != "" {
			return
		}
		if tables, err := s.Tables(ctx); err == nil && len(tables) > 0 {
			s.schema = "Tables: " + strings.Join(tables, ", ")
		}
	})

	prompt := question
	if s.schema != "" {
		prompt = s.schema + "\n\nQuestion: " + question
	}

	reply, err := s.translator.Complete(ctx, sqlSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return StripFences(reply), nil
}

func scanRows(rows *sql.Rows) ([][]string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var data [][]string
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make([]string, len(cols))
		for i, v := range values {
			switch t := v.(type) {
			case nil:
				row[i] = "NULL"
			case []byte:
				row[i] = string(t)
			default:
				row[i] = fmt.Sprint(t)
			}
		}
		data = append(data, row)
	}
	return data, rows.Err()
}
