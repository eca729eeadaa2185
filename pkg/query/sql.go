package query

import (
	"fmt"
	"strconv"
	"strings"
)

// sqlDialect is what differs between the SQL speaking backends. The clause
// layout and the predicate walk are shared.
type sqlDialect interface {
	dialect() Dialect
	// placeholders selects "?" parameters over inline literals.
	placeholders() bool
	table(meta *TableMetadata, name string) string
	bitTest(col string, mask int64) string
	containsAny(w *sqlWriter, col string, values []string) string
	effectJoin(meta *TableMetadata) (string, error)
}

// sqlWriter renders predicate trees, collecting parameters on the way.
type sqlWriter struct {
	d    sqlDialect
	args []any
}

func (w *sqlWriter) value(v any) string {
	if w.d.placeholders() {
		w.args = append(w.args, v)
		return "?"
	}
	return inlineLiteral(v)
}

func (w *sqlWriter) values(vs []any) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = w.value(v)
	}
	return strings.Join(parts, ", ")
}

func (w *sqlWriter) expr(e Expr) string {
	switch v := e.(type) {
	case Const:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case And:
		return w.join(" AND ", v)
	case Or:
		return w.join(" OR ", v)
	case Not:
		return "NOT " + w.wrap(v.X)
	case Cmp:
		return fmt.Sprintf("%s %s %s", v.Col, v.Op, w.value(v.Value))
	case IsNull:
		if v.Negate {
			return v.Col.String() + " IS NOT NULL"
		}
		return v.Col.String() + " IS NULL"
	case In:
		return fmt.Sprintf("%s IN (%s)", v.Col, w.values(v.Values))
	case BitTest:
		return w.d.bitTest(v.Col.String(), v.Mask)
	case ContainsAny:
		return w.d.containsAny(w, v.Col.String(), v.Values)
	case Overlap:
		return fmt.Sprintf("(%s = %s AND NOT (COALESCE(%s, %s) < %s OR %s > %s))",
			v.Chrom, w.value(v.Region.Chrom),
			v.End, v.Pos, w.value(int64(v.Region.Start)),
			v.Pos, w.value(int64(v.Region.Stop)))
	}
	panic(fmt.Sprintf("query: unexpected expression %T", e))
}

func (w *sqlWriter) join(sep string, terms []Expr) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = w.wrap(t)
	}
	return strings.Join(parts, sep)
}

func (w *sqlWriter) wrap(e Expr) string {
	switch e.(type) {
	case And, Or:
		return "(" + w.expr(e) + ")"
	}
	return w.expr(e)
}

// inlineLiteral renders a value for dialects that take the query as text.
func inlineLiteral(v any) string {
	switch x := v.(type) {
	case string:
		r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
		return "'" + r.Replace(x) + "'"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	}
	return literalText(v)
}

func literalText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

// sqlBuilder assembles SELECT statements clause by clause.
type sqlBuilder struct {
	d       sqlDialect
	plan    *Plan
	w       *sqlWriter
	clauses []string
}

func newSQLBuilder(d sqlDialect) *sqlBuilder {
	return &sqlBuilder{d: d}
}

func (b *sqlBuilder) Reset(plan *Plan) {
	b.plan = plan
	b.w = &sqlWriter{d: b.d}
	b.clauses = nil
}

func (b *sqlBuilder) columnList() string {
	cols := make([]string, len(b.plan.Columns))
	for i, c := range b.plan.Columns {
		cols[i] = c.String()
	}
	return strings.Join(cols, ", ")
}

func (b *sqlBuilder) BuildSelect() error {
	distinct := ""
	if b.plan.Shape == ShapeFamily && b.plan.EffectJoin {
		distinct = "DISTINCT "
	}
	b.clauses = append(b.clauses, "SELECT "+distinct+b.columnList())
	return nil
}

func (b *sqlBuilder) BuildFrom() error {
	meta := b.plan.Meta
	from := fmt.Sprintf("FROM %s AS %s", b.d.table(meta, meta.SummaryTable), aliasSummary)
	if b.plan.Shape == ShapeFamily {
		key := meta.joinKey()
		from += fmt.Sprintf("\nJOIN %s AS %s ON %s = %s",
			b.d.table(meta, meta.FamilyTable), aliasFamily, sa(key), fa(key))
	}
	b.clauses = append(b.clauses, from)
	return nil
}

func (b *sqlBuilder) BuildJoin() error {
	if !b.plan.EffectJoin {
		return nil
	}
	join, err := b.d.effectJoin(b.plan.Meta)
	if err != nil {
		return err
	}
	b.clauses = append(b.clauses, join)
	return nil
}

func (b *sqlBuilder) BuildWhere() error {
	pred, err := b.plan.Predicate(true)
	if err != nil {
		return err
	}
	if c, ok := pred.(Const); ok && bool(c) {
		return nil
	}
	b.clauses = append(b.clauses, "WHERE "+b.w.expr(pred))
	return nil
}

func (b *sqlBuilder) BuildGroupBy() error {
	if b.plan.Shape != ShapeSummary {
		return nil
	}
	b.clauses = append(b.clauses, "GROUP BY "+b.columnList())
	return nil
}

func (b *sqlBuilder) BuildLimit() error {
	if b.plan.Limit > 0 {
		b.clauses = append(b.clauses, "LIMIT "+strconv.Itoa(b.plan.Limit))
	}
	return nil
}

func (b *sqlBuilder) Product() (*CompiledQuery, error) {
	cols := make([]string, len(b.plan.Columns))
	for i, c := range b.plan.Columns {
		cols[i] = c.Name
	}
	return &CompiledQuery{
		dialect: b.d.dialect(),
		study:   b.plan.Meta.Study,
		shape:   b.plan.Shape,
		text:    strings.Join(b.clauses, "\n"),
		args:    b.w.args,
		columns: cols,
		bins:    b.plan.Bins,
		targets: b.plan.Targets,
		limit:   b.plan.Limit,
	}, nil
}

// sideTableJoin joins a flat gene/effect table for engines without nested
// columns.
func sideTableJoin(d sqlDialect, meta *TableMetadata) (string, error) {
	if meta.EffectGeneTable == "" {
		return "", compileErr("effect_gene_table", ErrUnsupported,
			"%s study %q needs an effect gene table for gene or effect filters", d.dialect(), meta.Study)
	}
	key := meta.joinKey()
	return fmt.Sprintf("JOIN %s AS %s ON %s = %s",
		d.table(meta, meta.EffectGeneTable), aliasEffect, sa(key), eg(key)), nil
}

func stringValues(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
