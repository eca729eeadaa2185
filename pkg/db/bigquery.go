package db

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/bigquery"
	"golang.org/x/sync/semaphore"
	"google.golang.org/api/iterator"

	"github.com/yumyai/varquery/pkg/model"
	"github.com/yumyai/varquery/pkg/query"
	"github.com/yumyai/varquery/pkg/runner"
)

const defaultBigQueryJobs = 8

// BigQueryStore serves a study from BigQuery. A semaphore bounds the jobs
// running at once.
type BigQueryStore struct {
	base
	client *bigquery.Client
	jobs   *semaphore.Weighted
}

func OpenBigQuery(ctx context.Context, project string, maxJobs int, meta *query.TableMetadata) (*BigQueryStore, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, err
	}
	b, err := newBase(query.BigQuery, meta)
	if err != nil {
		client.Close()
		return nil, err
	}
	if maxJobs <= 0 {
		maxJobs = defaultBigQueryJobs
	}
	return &BigQueryStore{base: b, client: client, jobs: semaphore.NewWeighted(int64(maxJobs))}, nil
}

func (s *BigQueryStore) Runners(q *query.CompiledQuery, queue runner.Queue, opts runner.Options) ([]runner.Worker, error) {
	return []runner.Worker{
		runner.New[model.Record](s.Study(), s, q, s.deserializer(), queue, opts),
	}, nil
}

// Open submits the query as a job and holds a job slot until the cursor is
// closed.
func (s *BigQueryStore) Open(ctx context.Context, q *query.CompiledQuery) (runner.Cursor[model.Record], error) {
	if err := s.jobs.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	it, err := s.client.Query(q.Text()).Read(ctx)
	if err != nil {
		s.jobs.Release(1)
		return nil, err
	}
	return &bigQueryCursor{it: it, release: func() { s.jobs.Release(1) }}, nil
}

func (s *BigQueryStore) Close() error {
	return s.client.Close()
}

type bigQueryCursor struct {
	it      *bigquery.RowIterator
	release func()
	closed  bool
}

func (c *bigQueryCursor) Next(ctx context.Context) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var row map[string]bigquery.Value
	err := c.it.Next(&row)
	if errors.Is(err, iterator.Done) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	rec := make(model.Record, len(row))
	for name, v := range row {
		rec[name] = plainValue(v)
	}
	return rec, nil
}

func (c *bigQueryCursor) Close() error {
	if !c.closed {
		c.closed = true
		c.release()
	}
	return nil
}

// plainValue unwraps repeated fields so records only hold built-in types.
func plainValue(v bigquery.Value) any {
	list, ok := v.([]bigquery.Value)
	if !ok {
		return v
	}
	out := make([]any, len(list))
	for i, item := range list {
		out[i] = plainValue(item)
	}
	return out
}
