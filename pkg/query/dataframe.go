package query

import (
	"fmt"
	"strings"

	"github.com/yumyai/varquery/pkg/model"
)

// dataframeBuilder compiles to a predicate evaluated in process over the
// records of embedded partition files. Records are already joined, so the
// from and join stages only decide which partitions are read.
type dataframeBuilder struct {
	plan      *Plan
	columns   []string
	sources   string
	predicate Expr
	groupBy   []string
	limit     int
}

func (b *dataframeBuilder) Reset(plan *Plan) {
	*b = dataframeBuilder{plan: plan}
}

func (b *dataframeBuilder) BuildSelect() error {
	for _, c := range b.plan.Columns {
		b.columns = append(b.columns, c.Name)
	}
	return nil
}

func (b *dataframeBuilder) BuildFrom() error {
	switch {
	case len(b.plan.Meta.Partitions) == 0:
		b.sources = b.plan.Meta.SummaryTable
	case len(b.plan.Targets) == 0:
		b.sources = "(no partitions)"
	default:
		keys := make([]string, len(b.plan.Targets))
		for i, k := range b.plan.Targets {
			keys[i] = k.String()
		}
		b.sources = strings.Join(keys, ", ")
	}
	return nil
}

func (b *dataframeBuilder) BuildJoin() error {
	return nil
}

func (b *dataframeBuilder) BuildWhere() error {
	pred, err := b.plan.Predicate(false)
	if err != nil {
		return err
	}
	b.predicate = pred
	return nil
}

// BuildGroupBy de-duplicates alleles for summary queries, since the
// embedded files hold one row per family allele.
func (b *dataframeBuilder) BuildGroupBy() error {
	if b.plan.Shape == ShapeSummary {
		b.groupBy = []string{model.ColChromosome, model.ColSummaryIndex, model.ColAlleleIndex}
	}
	return nil
}

func (b *dataframeBuilder) BuildLimit() error {
	b.limit = b.plan.Limit
	return nil
}

func (b *dataframeBuilder) Product() (*CompiledQuery, error) {
	w := &sqlWriter{d: dataframeText{}}
	text := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(b.columns, ", "), b.sources, w.expr(b.predicate))
	if len(b.groupBy) > 0 {
		text += " GROUP BY " + strings.Join(b.groupBy, ", ")
	}
	if b.limit > 0 {
		text += fmt.Sprintf(" LIMIT %d", b.limit)
	}
	return &CompiledQuery{
		dialect:   Dataframe,
		study:     b.plan.Meta.Study,
		shape:     b.plan.Shape,
		text:      text,
		predicate: b.predicate,
		columns:   b.columns,
		groupBy:   b.groupBy,
		bins:      b.plan.Bins,
		targets:   b.plan.Targets,
		limit:     b.limit,
	}, nil
}

// dataframeText renders the in-process predicate for explain output.
type dataframeText struct{}

func (dataframeText) dialect() Dialect { return Dataframe }

func (dataframeText) placeholders() bool { return false }

func (dataframeText) table(_ *TableMetadata, name string) string { return name }

func (dataframeText) bitTest(col string, mask int64) string {
	return fmt.Sprintf("(%s & %d) != 0", col, mask)
}

func (dataframeText) containsAny(w *sqlWriter, col string, values []string) string {
	return fmt.Sprintf("list_has_any(%s, [%s])", col, w.values(stringValues(values)))
}

func (dataframeText) effectJoin(*TableMetadata) (string, error) {
	return "", nil
}
