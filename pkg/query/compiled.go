package query

import (
	"strings"

	"github.com/yumyai/varquery/pkg/model"
	"github.com/yumyai/varquery/pkg/partition"
)

// CompiledQuery is the executable form of a filter for one dialect. It is
// immutable: accessors hand out copies.
type CompiledQuery struct {
	dialect   Dialect
	study     string
	shape     Shape
	text      string
	args      []any
	predicate Expr
	columns   []string
	groupBy   []string
	bins      partition.Bins
	targets   []partition.Key
	limit     int
}

func (q *CompiledQuery) Dialect() Dialect { return q.dialect }

func (q *CompiledQuery) Study() string { return q.study }

func (q *CompiledQuery) Shape() Shape { return q.shape }

// Text is the SQL text, or a readable rendering of the predicate for the
// dataframe dialect.
func (q *CompiledQuery) Text() string { return q.text }

// Args are the positional parameters of Text.
func (q *CompiledQuery) Args() []any {
	return append([]any(nil), q.args...)
}

// Columns are the unqualified names of the selected columns.
func (q *CompiledQuery) Columns() []string {
	return append([]string(nil), q.columns...)
}

func (q *CompiledQuery) Bins() partition.Bins { return q.bins }

// Targets are the physical partitions the query was compiled against. Nil
// when the backend prunes by itself.
func (q *CompiledQuery) Targets() []partition.Key {
	return append([]partition.Key(nil), q.targets...)
}

// Limit is the row cap, 0 for none.
func (q *CompiledQuery) Limit() int { return q.limit }

// Match evaluates the predicate of an in-process query against a record.
func (q *CompiledQuery) Match(rec model.Record) bool {
	if q.predicate == nil {
		return true
	}
	return Eval(q.predicate, rec)
}

// GroupKey identifies the record for de-duplication, or "" when the query
// does not group.
func (q *CompiledQuery) GroupKey(rec model.Record) string {
	if len(q.groupBy) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, col := range q.groupBy {
		if i > 0 {
			sb.WriteByte(0)
		}
		v, _ := rec.Text(col)
		sb.WriteString(v)
	}
	return sb.String()
}

func (q *CompiledQuery) String() string {
	return q.dialect.String() + ": " + q.text
}
