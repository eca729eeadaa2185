package db

import (
	"fmt"

	"github.com/yumyai/varquery/pkg/model"
	"github.com/yumyai/varquery/pkg/query"
	"github.com/yumyai/varquery/pkg/runner"
)

// DeserializerFor returns the row converter of a dialect. Engines with
// native arrays hand the genotype over as nested lists; the others store it
// as JSON text, which model.VariantFromRecord decodes itself.
func DeserializerFor(d query.Dialect, attrs []string) runner.Deserializer[model.Record] {
	switch d {
	case query.DuckDB, query.BigQuery:
		return func(rec model.Record) (*model.Variant, error) {
			if err := nestedGenotype(rec); err != nil {
				return nil, err
			}
			return model.VariantFromRecord(rec, attrs)
		}
	default:
		return func(rec model.Record) (*model.Variant, error) {
			return model.VariantFromRecord(rec, attrs)
		}
	}
}

// nestedGenotype rewrites a [][]any genotype column in place.
func nestedGenotype(rec model.Record) error {
	rows, ok := rec[model.ColGenotype].([]any)
	if !ok {
		return nil
	}
	gt := make([][]int8, len(rows))
	for i, row := range rows {
		cells, ok := row.([]any)
		if !ok {
			return fmt.Errorf("genotype: row %d: unexpected type %T", i, row)
		}
		gt[i] = make([]int8, len(cells))
		for j, cell := range cells {
			n, ok, err := model.Record{"gt": cell}.Int("gt")
			if err != nil {
				return fmt.Errorf("genotype: %w", err)
			}
			if !ok {
				n = -1
			}
			gt[i][j] = int8(n)
		}
	}
	rec[model.ColGenotype] = gt
	return nil
}
