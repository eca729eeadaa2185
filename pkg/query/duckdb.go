package query

import (
	"fmt"
	"strings"
)

// duckdbSQL renders parameterized DuckDB statements. Member lists are LIST
// columns; gene effects live in a side table.
type duckdbSQL struct{}

func (duckdbSQL) dialect() Dialect { return DuckDB }

func (duckdbSQL) placeholders() bool { return true }

func (duckdbSQL) table(meta *TableMetadata, name string) string {
	if meta.Database == "" {
		return quoteIdent(name)
	}
	return quoteIdent(meta.Database) + "." + quoteIdent(name)
}

func (duckdbSQL) bitTest(col string, mask int64) string {
	return fmt.Sprintf("(%s & %d) != 0", col, mask)
}

func (duckdbSQL) containsAny(w *sqlWriter, col string, values []string) string {
	params := make([]string, len(values))
	for i, v := range values {
		params[i] = w.value(v)
	}
	return fmt.Sprintf("list_has_any(%s, [%s])", col, strings.Join(params, ", "))
}

func (d duckdbSQL) effectJoin(meta *TableMetadata) (string, error) {
	return sideTableJoin(d, meta)
}
