package lookup

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Column describes one table column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Table describes one table visible to a source.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Schema is the structure of a source, with the description given to the
// text-to-SQL translator.
type Schema struct {
	Source      string  `json:"source"`
	Tables      []Table `json:"tables"`
	Description string  `json:"description"`
}

// Insights are quick row counts per table.
type Insights struct {
	Source string           `json:"source"`
	Totals map[string]int64 `json:"totals"`
}

// Introspector is implemented by sources that can describe their schema.
type Introspector interface {
	Schema(ctx context.Context) (*Schema, error)
	Insights(ctx context.Context) (*Insights, error)
}

// Introspect returns the named source as an Introspector. An empty name
// selects the first such source in name order.
func (r *Registry) Introspect(name string) (string, Introspector, error) {
	if name != "" {
		c, ok := r.Get(name)
		if !ok {
			return "", nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
		}
		in, ok := c.(Introspector)
		if !ok {
			return "", nil, fmt.Errorf("%w: %s", ErrNoSchema, name)
		}
		return name, in, nil
	}

	for _, n := range r.Names() {
		c, _ := r.Get(n)
		if in, ok := c.(Introspector); ok {
			return n, in, nil
		}
	}
	return "", nil, ErrNoSchema
}

// Schema lists the tables and their columns.
func (s *SQL) Schema(ctx context.Context) (*Schema, error) {
	names, err := s.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	slices.Sort(names)

	m := s.db.WithContext(ctx).Migrator()
	tables := make([]Table, 0, len(names))
	for _, name := range names {
		types, err := m.ColumnTypes(name)
		if err != nil {
			return nil, fmt.Errorf("columns of %s: %w", name, err)
		}
		t := Table{Name: name, Columns: make([]Column, 0, len(types))}
		for _, ct := range types {
			nullable, _ := ct.Nullable()
			t.Columns = append(t.Columns, Column{
				Name:     ct.Name(),
				Type:     ct.DatabaseTypeName(),
				Nullable: nullable,
			})
		}
		tables = append(tables, t)
	}

	desc := s.schema
	if desc == "" {
		desc = DescribeTables(tables)
	}
	return &Schema{Tables: tables, Description: desc}, nil
}

// Insights counts the rows of every table.
func (s *SQL) Insights(ctx context.Context) (*Insights, error) {
	names, err := s.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	totals := make(map[string]int64, len(names))
	for _, name := range names {
		var n int64
		if err := s.db.WithContext(ctx).Table(name).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		totals[name] = n
	}
	return &Insights{Totals: totals}, nil
}

// DescribeTables renders tables one per line as "name(col type, ...)".
func DescribeTables(tables []Table) string {
	lines := make([]string, 0, len(tables))
	for _, t := range tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, strings.TrimSpace(c.Name+" "+strings.ToLower(c.Type)))
		}
		lines = append(lines, t.Name+"("+strings.Join(cols, ", ")+")")
	}
	return strings.Join(lines, "\n")
}
