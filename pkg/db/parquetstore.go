package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/yumyai/varquery/internal/util"
	"github.com/yumyai/varquery/logger"
	"github.com/yumyai/varquery/pkg/model"
	"github.com/yumyai/varquery/pkg/partition"
	"github.com/yumyai/varquery/pkg/query"
	"github.com/yumyai/varquery/pkg/runner"
)

const (
	defaultOpenFiles = 16
	parquetBatch     = 128
)

// ParquetStore serves a study from a directory of parquet files laid out as
// hive style partitions (region_bin=chr1_0/frequency_bin=1/...). Each file
// holds denormalized rows: one row per family allele with its summary and
// effect columns. Queries are evaluated in process.
type ParquetStore struct {
	base
	root  string
	files map[partition.Key][]string
	// handles bounds the files open at once across all runners.
	handles *semaphore.Weighted
}

// OpenParquet indexes the files under root. Meta.Partitions is filled from
// the directory layout.
func OpenParquet(root string, maxOpen int, meta *query.TableMetadata) (*ParquetStore, error) {
	if !util.DirExists(root) {
		return nil, fmt.Errorf("%w: dataset directory %s", os.ErrNotExist, root)
	}
	files, err := scanPartitions(root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no parquet files under %s", os.ErrNotExist, root)
	}
	if _, ok := files[unpartitioned]; ok && len(files) > 1 {
		return nil, fmt.Errorf("%s mixes partition directories with unpartitioned parquet files", root)
	}
	// rows are denormalized, so the family columns live in the same files
	if meta.FamilyTable == "" {
		meta.FamilyTable = meta.SummaryTable
	}
	meta.Partitions = nil
	for k := range files {
		if k != unpartitioned {
			meta.Partitions = append(meta.Partitions, k)
		}
	}
	sort.Slice(meta.Partitions, func(i, j int) bool {
		return meta.Partitions[i].String() < meta.Partitions[j].String()
	})

	b, err := newBase(query.Dataframe, meta)
	if err != nil {
		return nil, err
	}
	if maxOpen <= 0 {
		maxOpen = defaultOpenFiles
	}
	logger.Debug("indexed parquet study",
		zap.String("study", meta.Study), zap.Int("partitions", len(files)))
	return &ParquetStore{
		base:    b,
		root:    root,
		files:   files,
		handles: semaphore.NewWeighted(int64(maxOpen)),
	}, nil
}

var unpartitioned = partition.Key{
	RegionBin:    partition.NoRegionBin,
	FrequencyBin: partition.NoBin,
	CodingBin:    partition.NoBin,
	FamilyBin:    partition.NoBin,
}

func scanPartitions(root string) (map[partition.Key][]string, error) {
	files := map[partition.Key][]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".parquet") {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		key, err := partition.ParseKey(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		files[key] = append(files[key], path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, paths := range files {
		sort.Strings(paths)
	}
	return files, nil
}

// Runners starts one runner per partition group. Summary queries group the
// family bins of a partition together so de-duplication sees every copy of
// an allele.
func (s *ParquetStore) Runners(q *query.CompiledQuery, queue runner.Queue, opts runner.Options) ([]runner.Worker, error) {
	var groups [][]string
	if len(s.meta.Partitions) == 0 {
		var all []string
		for _, paths := range s.files {
			all = append(all, paths...)
		}
		sort.Strings(all)
		groups = append(groups, all)
	} else {
		byGroup := map[partition.Key][]string{}
		var order []partition.Key
		for _, k := range q.Targets() {
			g := k
			if q.Shape() == query.ShapeSummary {
				g.FamilyBin = partition.NoBin
			}
			if _, ok := byGroup[g]; !ok {
				order = append(order, g)
			}
			byGroup[g] = append(byGroup[g], s.files[k]...)
		}
		for _, g := range order {
			groups = append(groups, byGroup[g])
		}
	}

	workers := make([]runner.Worker, 0, len(groups))
	for _, paths := range groups {
		src := &parquetGroup{store: s, paths: paths}
		workers = append(workers, runner.New[model.Record](s.Study(), src, q, s.deserializer(), queue, opts))
	}
	return workers, nil
}

func (s *ParquetStore) Close() error {
	return nil
}

// parquetGroup is the source of one runner: the files of its partitions.
type parquetGroup struct {
	store *ParquetStore
	paths []string
}

func (g *parquetGroup) Open(ctx context.Context, q *query.CompiledQuery) (runner.Cursor[model.Record], error) {
	return &parquetCursor{
		store: g.store,
		q:     q,
		paths: g.paths,
		seen:  map[string]struct{}{},
		buf:   make([]parquet.Row, parquetBatch),
	}, nil
}

// parquetCursor walks files, row groups and row batches in order, yielding
// the records that match the predicate.
type parquetCursor struct {
	store *ParquetStore
	q     *query.CompiledQuery
	paths []string

	file    *os.File
	pf      *parquet.File
	columns []leafColumn
	groups  []parquet.RowGroup
	rows    parquet.Rows

	buf     []parquet.Row
	pending []parquet.Row

	seen    map[string]struct{}
	emitted int
}

type leafColumn struct {
	name     string
	repeated bool
}

func (c *parquetCursor) Next(ctx context.Context) (model.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if limit := c.q.Limit(); limit > 0 && c.emitted >= limit {
			return nil, io.EOF
		}
		if len(c.pending) == 0 {
			if err := c.fill(ctx); err != nil {
				return nil, err
			}
			continue
		}
		row := c.pending[0]
		c.pending = c.pending[1:]

		rec := c.record(row)
		if !c.q.Match(rec) {
			continue
		}
		if key := c.q.GroupKey(rec); key != "" {
			if _, dup := c.seen[key]; dup {
				continue
			}
			c.seen[key] = struct{}{}
		}
		c.emitted++
		return rec, nil
	}
}

// fill reads the next batch, moving on to the next row group or file as
// each runs out. It returns io.EOF after the last file.
func (c *parquetCursor) fill(ctx context.Context) error {
	for {
		if c.rows != nil {
			n, err := c.rows.ReadRows(c.buf)
			if n > 0 {
				c.pending = c.buf[:n]
				return nil
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			c.rows.Close()
			c.rows = nil
		}
		if len(c.groups) > 0 {
			c.rows = c.groups[0].Rows()
			c.groups = c.groups[1:]
			continue
		}
		if c.file != nil {
			c.closeFile()
		}
		if len(c.paths) == 0 {
			return io.EOF
		}
		path := c.paths[0]
		c.paths = c.paths[1:]
		if err := c.openFile(ctx, path); err != nil {
			return err
		}
	}
}

func (c *parquetCursor) openFile(ctx context.Context, path string) error {
	if err := c.store.handles.Acquire(ctx, 1); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		c.store.handles.Release(1)
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		c.store.handles.Release(1)
		return err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		f.Close()
		c.store.handles.Release(1)
		return fmt.Errorf("%s: %w", path, err)
	}
	c.file, c.pf = f, pf
	c.groups = pf.RowGroups()

	schema := pf.Schema()
	c.columns = c.columns[:0]
	for _, path := range schema.Columns() {
		leaf, _ := schema.Lookup(path...)
		c.columns = append(c.columns, leafColumn{name: path[0], repeated: leaf.MaxRepetitionLevel > 0})
	}
	return nil
}

func (c *parquetCursor) closeFile() {
	if c.file == nil {
		return
	}
	c.file.Close()
	c.store.handles.Release(1)
	c.file, c.pf = nil, nil
	c.groups = nil
}

// record converts a row. Repeated leaves become lists; a list whose only
// value is an undefined null is NULL.
func (c *parquetCursor) record(row parquet.Row) model.Record {
	rec := make(model.Record, len(c.columns))
	for _, v := range row {
		col := c.columns[v.Column()]
		if !col.repeated {
			rec[col.name] = plainParquet(v)
			continue
		}
		list, _ := rec[col.name].([]any)
		if v.IsNull() {
			if list == nil && v.DefinitionLevel() > 0 {
				rec[col.name] = []any{}
			}
			continue
		}
		rec[col.name] = append(list, plainParquet(v))
	}
	return rec
}

func plainParquet(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}

func (c *parquetCursor) Close() error {
	var err error
	if c.rows != nil {
		err = c.rows.Close()
		c.rows = nil
	}
	c.closeFile()
	c.pending = nil
	return err
}
