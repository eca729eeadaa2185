package db

import (
	"sort"

	"github.com/yumyai/varquery/pkg/filter"
	"github.com/yumyai/varquery/pkg/model"
	"github.com/yumyai/varquery/pkg/query"
	"github.com/yumyai/varquery/pkg/runner"
)

// Backend is one study's connection to the engine holding its variants.
type Backend interface {
	Study() string
	Dialect() query.Dialect
	Metadata() *query.TableMetadata
	// Compile turns a filter into this backend's query.
	Compile(f *filter.Filter) (*query.CompiledQuery, error)
	// Runners creates the unstarted workers that execute q into queue.
	Runners(q *query.CompiledQuery, queue runner.Queue, opts runner.Options) ([]runner.Worker, error)
	Close() error
}

// base carries what every backend shares: its metadata and compiler.
type base struct {
	meta     *query.TableMetadata
	compiler query.Compiler
}

func newBase(d query.Dialect, meta *query.TableMetadata) (base, error) {
	compiler, err := query.NewCompiler(d)
	if err != nil {
		return base{}, err
	}
	return base{meta: meta, compiler: compiler}, nil
}

func (b base) Study() string { return b.meta.Study }

func (b base) Dialect() query.Dialect { return b.compiler.Dialect() }

func (b base) Metadata() *query.TableMetadata { return b.meta }

func (b base) Compile(f *filter.Filter) (*query.CompiledQuery, error) {
	return b.compiler.Compile(f, b.meta)
}

// attributeColumns are the numeric columns a variant carries along.
func (b base) attributeColumns() []string {
	names := []string{query.ColAlleleCount, query.ColAlleleFreq}
	for name := range b.meta.Attributes {
		if name != query.ColAlleleCount && name != query.ColAlleleFreq {
			names = append(names, name)
		}
	}
	sort.Strings(names[2:])
	return names
}

func (b base) deserializer() runner.Deserializer[model.Record] {
	return DeserializerFor(b.Dialect(), b.attributeColumns())
}
