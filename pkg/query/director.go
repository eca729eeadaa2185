package query

import (
	"github.com/yumyai/varquery/pkg/filter"
)

// Builder is one dialect's way of assembling a query. The Director calls
// the stages in a fixed order: later stages may refer to aliases the earlier
// ones introduced.
type Builder interface {
	Reset(plan *Plan)
	BuildSelect() error
	BuildFrom() error
	BuildJoin() error
	BuildWhere() error
	BuildGroupBy() error
	BuildLimit() error
	Product() (*CompiledQuery, error)
}

// Director drives a fresh Builder per compilation, so one Director may be
// shared by concurrent callers.
type Director struct {
	dialect    Dialect
	newBuilder func() Builder
}

func NewDirector(d Dialect, newBuilder func() Builder) *Director {
	return &Director{dialect: d, newBuilder: newBuilder}
}

func (d *Director) Dialect() Dialect {
	return d.dialect
}

// Compile plans f against meta and runs every builder stage.
func (d *Director) Compile(f *filter.Filter, meta *TableMetadata) (*CompiledQuery, error) {
	plan, err := NewPlan(f, meta)
	if err != nil {
		return nil, err
	}
	b := d.newBuilder()
	b.Reset(plan)
	for _, stage := range []func() error{
		b.BuildSelect,
		b.BuildFrom,
		b.BuildJoin,
		b.BuildWhere,
		b.BuildGroupBy,
		b.BuildLimit,
	} {
		if err := stage(); err != nil {
			return nil, err
		}
	}
	return b.Product()
}
