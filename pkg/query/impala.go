package query

import (
	"fmt"
)

// impalaSQL renders Hive/Impala text. Gene effects are a nested array on the
// summary table.
type impalaSQL struct{}

func (impalaSQL) dialect() Dialect { return Impala }

func (impalaSQL) placeholders() bool { return false }

func (impalaSQL) table(meta *TableMetadata, name string) string {
	if meta.Database == "" {
		return "`" + name + "`"
	}
	return "`" + meta.Database + "`.`" + name + "`"
}

func (impalaSQL) bitTest(col string, mask int64) string {
	return fmt.Sprintf("BITAND(%s, %d) != 0", col, mask)
}

func (impalaSQL) containsAny(w *sqlWriter, col string, values []string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS m WHERE m.item IN (%s))", col, w.values(stringValues(values)))
}

func (impalaSQL) effectJoin(*TableMetadata) (string, error) {
	return fmt.Sprintf("JOIN %s AS %s", sa(colEffectGene), aliasEffect), nil
}
