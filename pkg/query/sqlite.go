package query

import (
	"fmt"
)

// sqliteSQL renders parameterized SQLite statements. Member lists are JSON
// arrays; gene effects live in a side table.
type sqliteSQL struct{}

func (sqliteSQL) dialect() Dialect { return SQLite }

func (sqliteSQL) placeholders() bool { return true }

func (sqliteSQL) table(meta *TableMetadata, name string) string {
	if meta.Database == "" {
		return quoteIdent(name)
	}
	return quoteIdent(meta.Database) + "." + quoteIdent(name)
}

func (sqliteSQL) bitTest(col string, mask int64) string {
	return fmt.Sprintf("(%s & %d) != 0", col, mask)
}

func (sqliteSQL) containsAny(w *sqlWriter, col string, values []string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE json_each.value IN (%s))", col, w.values(stringValues(values)))
}

func (d sqliteSQL) effectJoin(meta *TableMetadata) (string, error) {
	return sideTableJoin(d, meta)
}
