package lookup

import (
	"fmt"
	"strings"
)

// DefaultMaxRows is how many rows are shown to the model.
const DefaultMaxRows = 10

// NoResults is the text folded into context for an empty result set.
const NoResults = "The query completed but found no matching data."

// FormatRows renders rows as a numbered list for prompt context. At most
// maxRows rows are shown and the remainder is summarized.
func FormatRows(rows [][]string, maxRows int) string {
	if len(rows) == 0 {
		return NoResults
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	if len(rows) == 1 && len(rows[0]) == 1 {
		return rows[0][0]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query results (%d rows):\n", len(rows))
	for i, row := range rows[:min(len(rows), maxRows)] {
		fmt.Fprintf(&b, "%2d. %s\n", i+1, strings.Join(row, " | "))
	}
	if len(rows) > maxRows {
		fmt.Fprintf(&b, "\n... %d more rows", len(rows)-maxRows)
	}
	return strings.TrimRight(b.String(), "\n")
}
