package query

import (
	"fmt"
	"strings"

	"github.com/yumyai/varquery/pkg/filter"
)

// Dialect selects how a query is expressed for a backend.
type Dialect int

const (
	// Dataframe evaluates the predicate in process over embedded columnar
	// partitions.
	Dataframe Dialect = iota
	Impala
	DuckDB
	BigQuery
	SQLite
)

var dialectNames = map[Dialect]string{
	Dataframe: "dataframe",
	Impala:    "impala",
	DuckDB:    "duckdb",
	BigQuery:  "bigquery",
	SQLite:    "sqlite",
}

func (d Dialect) String() string {
	if name, ok := dialectNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dialect(%d)", int(d))
}

// ParseDialect resolves a configured backend name.
func ParseDialect(name string) (Dialect, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "parquet":
		return Dataframe, nil
	case "sqlite3":
		return SQLite, nil
	}
	for d, n := range dialectNames {
		if n == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown dialect %q", name)
}

func (d Dialect) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Dialect) UnmarshalText(text []byte) error {
	parsed, err := ParseDialect(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// builders is the dialect keyed factory every compiler is created from.
var builders = map[Dialect]func() Builder{
	Dataframe: func() Builder { return &dataframeBuilder{} },
	Impala:    func() Builder { return newSQLBuilder(impalaSQL{}) },
	DuckDB:    func() Builder { return newSQLBuilder(duckdbSQL{}) },
	BigQuery:  func() Builder { return newSQLBuilder(bigquerySQL{}) },
	SQLite:    func() Builder { return newSQLBuilder(sqliteSQL{}) },
}

// Compiler turns filters into executable queries for one dialect.
type Compiler interface {
	Dialect() Dialect
	Compile(f *filter.Filter, meta *TableMetadata) (*CompiledQuery, error)
}

// NewCompiler returns the compiler of a dialect.
func NewCompiler(d Dialect) (Compiler, error) {
	factory, ok := builders[d]
	if !ok {
		return nil, fmt.Errorf("no compiler for %s", d)
	}
	return NewDirector(d, factory), nil
}
