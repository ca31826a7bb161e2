package lookup_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/tailored-agentic-units/chatstream/lookup"
)

func echoSource(prefix string) lookup.Capability {
	return lookup.Func(func(_ context.Context, query string) (*lookup.Result, error) {
		return &lookup.Result{Query: query, Text: prefix + query, Rows: 1}, nil
	})
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr error
	}{
		{name: "valid source", source: "sql"},
		{name: "empty name", source: "", wantErr: lookup.ErrEmptyName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := lookup.NewRegistry()
			err := reg.Register(tt.source, echoSource(""))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("Register() unexpected error: %v", err)
			}
		})
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := lookup.NewRegistry()
	if err := reg.Register("sql", echoSource("")); err != nil {
		t.Fatalf("first Register() failed: %v", err)
	}

	if err := reg.Register("sql", echoSource("")); !errors.Is(err, lookup.ErrAlreadyExists) {
		t.Errorf("Register() error = %v, want %v", err, lookup.ErrAlreadyExists)
	}
}

func TestRegistry_Replace(t *testing.T) {
	reg := lookup.NewRegistry()

	if err := reg.Replace("sql", echoSource("")); !errors.Is(err, lookup.ErrUnknownSource) {
		t.Errorf("Replace() on missing source error = %v, want %v", err, lookup.ErrUnknownSource)
	}

	_ = reg.Register("sql", echoSource("old:"))
	if err := reg.Replace("sql", echoSource("new:")); err != nil {
		t.Fatalf("Replace() failed: %v", err)
	}

	res, err := reg.Query(context.Background(), "sql", "q")
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if res.Text != "new:q" {
		t.Errorf("got %q, want %q", res.Text, "new:q")
	}
	if res.Source != "sql" {
		t.Errorf("got source %q, want %q", res.Source, "sql")
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := lookup.NewRegistry()
	_ = reg.Register("warehouse", echoSource(""))
	_ = reg.Register("crm", echoSource(""))

	if got := reg.Names(); !slices.Equal(got, []string{"crm", "warehouse"}) {
		t.Errorf("got %v, want [crm warehouse]", got)
	}
}

func TestRegistry_QueryUnknown(t *testing.T) {
	reg := lookup.NewRegistry()

	if _, err := reg.Query(context.Background(), "missing", "q"); !errors.Is(err, lookup.ErrUnknownSource) {
		t.Errorf("Query() error = %v, want %v", err, lookup.ErrUnknownSource)
	}
}
