package query

import (
	"fmt"
)

// bigquerySQL renders GoogleSQL text. Gene effects are a repeated record on
// the summary table.
type bigquerySQL struct{}

func (bigquerySQL) dialect() Dialect { return BigQuery }

func (bigquerySQL) placeholders() bool { return false }

func (bigquerySQL) table(meta *TableMetadata, name string) string {
	if meta.Database == "" {
		return "`" + name + "`"
	}
	return "`" + meta.Database + "." + name + "`"
}

func (bigquerySQL) bitTest(col string, mask int64) string {
	return fmt.Sprintf("(%s & %d) != 0", col, mask)
}

func (bigquerySQL) containsAny(w *sqlWriter, col string, values []string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM UNNEST(%s) AS m WHERE m IN (%s))", col, w.values(stringValues(values)))
}

func (bigquerySQL) effectJoin(*TableMetadata) (string, error) {
	return fmt.Sprintf("CROSS JOIN UNNEST(%s) AS %s", sa(colEffectGene), aliasEffect), nil
}
