package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	_ "github.com/bippio/go-impala"
	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"

	"github.com/yumyai/varquery/pkg/model"
	"github.com/yumyai/varquery/pkg/query"
	"github.com/yumyai/varquery/pkg/runner"
)

// driverNames maps the SQL dialects to their database/sql drivers.
var driverNames = map[query.Dialect]string{
	query.SQLite: "sqlite",
	query.DuckDB: "duckdb",
	query.Impala: "impala",
}

// SQLStore serves a study from a database/sql engine. Every runner checks
// out its own connection from the pool.
type SQLStore struct {
	base
	db *sql.DB
}

// OpenSQL opens the pool of a sqlite, duckdb or impala study.
func OpenSQL(d query.Dialect, dsn string, maxConns int, meta *query.TableMetadata) (*SQLStore, error) {
	driver, ok := driverNames[d]
	if !ok {
		return nil, fmt.Errorf("%s is not a database/sql dialect", d)
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if maxConns > 0 {
		conn.SetMaxOpenConns(maxConns)
	}
	store, err := NewSQLStore(d, conn, meta)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open pool. The store owns it from then on.
func NewSQLStore(d query.Dialect, conn *sql.DB, meta *query.TableMetadata) (*SQLStore, error) {
	b, err := newBase(d, meta)
	if err != nil {
		return nil, err
	}
	return &SQLStore{base: b, db: conn}, nil
}

func (s *SQLStore) Runners(q *query.CompiledQuery, queue runner.Queue, opts runner.Options) ([]runner.Worker, error) {
	return []runner.Worker{
		runner.New[model.Record](s.Study(), s, q, s.deserializer(), queue, opts),
	}, nil
}

// Open runs the query on a dedicated connection.
func (s *SQLStore) Open(ctx context.Context, q *query.CompiledQuery) (runner.Cursor[model.Record], error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, q.Text(), q.Args()...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	names, err := rows.Columns()
	if err != nil {
		rows.Close()
		conn.Close()
		return nil, err
	}
	// engines differ in how they name qualified columns
	if cols := q.Columns(); len(cols) == len(names) {
		names = cols
	}
	return &sqlCursor{conn: conn, rows: rows, names: names}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlCursor struct {
	conn  *sql.Conn
	rows  *sql.Rows
	names []string
}

func (c *sqlCursor) Next(ctx context.Context) (model.Record, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	values := make([]any, len(c.names))
	ptrs := make([]any, len(c.names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	rec := make(model.Record, len(c.names))
	for i, name := range c.names {
		rec[name] = values[i]
	}
	return rec, nil
}

func (c *sqlCursor) Close() error {
	return errors.Join(c.rows.Close(), c.conn.Close())
}
