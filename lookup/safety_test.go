package lookup_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/chatstream/lookup"
)

func TestCheckSafe(t *testing.T) {
	tests := []struct {
		name      string
		statement string
		want      bool
		message   string
	}{
		{name: "simple select", statement: "SELECT * FROM reports", want: true},
		{name: "lower case", statement: "select count(*) from reports;", want: true},
		{name: "column containing keyword", statement: "SELECT created_at, updated_by FROM reports", want: true},
		{name: "fenced", statement: "```sql\nSELECT 1\n```", want: true},
		{name: "empty", statement: "   ", want: false, message: "empty"},
		{name: "insert", statement: "INSERT INTO reports VALUES (1)", want: false, message: "only SELECT"},
		{name: "stacked", statement: "SELECT 1; DROP TABLE reports", want: false, message: "multiple"},
		{name: "embedded delete", statement: "SELECT * FROM (DELETE FROM reports)", want: false, message: "DELETE"},
		{name: "exec", statement: "SELECT 1 WHERE EXEC('x')", want: false, message: "EXEC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, msg := lookup.CheckSafe(tt.statement)
			if ok != tt.want {
				t.Errorf("CheckSafe(%q) = %v (%s), want %v", tt.statement, ok, msg, tt.want)
			}
			if tt.message != "" && !strings.Contains(msg, tt.message) {
				t.Errorf("got message %q, want it to contain %q", msg, tt.message)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"```sql\nSELECT 1\n```", "SELECT 1"},
		{"```\nSELECT 2\n```", "SELECT 2"},
		{"```sql SELECT 3```", "SELECT 3"},
	}

	for _, tt := range tests {
		if got := lookup.StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	err := lookup.Validate("DROP TABLE reports")
	if !errors.Is(err, lookup.ErrUnsafeStatement) {
		t.Fatalf("got %v, want ErrUnsafeStatement", err)
	}

	var se *lookup.StatementError
	if !errors.As(err, &se) || se.Statement != "DROP TABLE reports" {
		t.Errorf("got %#v, want StatementError carrying the statement", err)
	}

	if err := lookup.Validate("SELECT 1"); err != nil {
		t.Errorf("got %v, want nil", err)
	}
}

func TestFormatRows(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if got := lookup.FormatRows(nil, 10); got != lookup.NoResults {
			t.Errorf("got %q, want %q", got, lookup.NoResults)
		}
	})

	t.Run("single value", func(t *testing.T) {
		if got := lookup.FormatRows([][]string{{"42"}}, 10); got != "42" {
			t.Errorf("got %q, want %q", got, "42")
		}
	})

	t.Run("truncated", func(t *testing.T) {
		rows := make([][]string, 12)
		for i := range rows {
			rows[i] = []string{"r", "x"}
		}
		got := lookup.FormatRows(rows, 10)

		if !strings.HasPrefix(got, "Query results (12 rows):\n 1. r | x") {
			t.Errorf("unexpected header: %q", got)
		}
		if !strings.HasSuffix(got, "... 2 more rows") {
			t.Errorf("unexpected footer: %q", got)
		}
		if strings.Contains(got, "11.") {
			t.Errorf("rendered more than 10 rows: %q", got)
		}
	})
}
