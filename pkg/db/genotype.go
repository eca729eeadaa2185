package db

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yumyai/varquery/logger"
	"github.com/yumyai/varquery/pkg/config"
	"github.com/yumyai/varquery/pkg/filter"
	"github.com/yumyai/varquery/pkg/model"
	"github.com/yumyai/varquery/pkg/query"
	"github.com/yumyai/varquery/pkg/runner"
)

var ErrUnknownStudy = errors.New("unknown study")

// GenotypeDB fans a filter out over the backends of many studies.
type GenotypeDB struct {
	backends   map[string]Backend
	references map[string]*ReferenceGenome
	queueSize  int
	opts       runner.Options
}

func NewGenotypeDB(queueSize int, opts runner.Options, backends ...Backend) *GenotypeDB {
	g := &GenotypeDB{
		backends:   make(map[string]Backend, len(backends)),
		references: map[string]*ReferenceGenome{},
		queueSize:  queueSize,
		opts:       opts,
	}
	for _, b := range backends {
		g.backends[b.Study()] = b
	}
	return g
}

// OpenGenotypeDB connects every configured study through the registry.
func OpenGenotypeDB(ctx context.Context, cfg *config.Config, registry *Registry) (*GenotypeDB, error) {
	g := NewGenotypeDB(cfg.QueueSize, runner.Options{
		PutTimeout:    cfg.PutTimeout,
		MaxNoInterest: cfg.MaxNoInterest,
	})
	for _, study := range cfg.Studies {
		backend, err := registry.Open(ctx, study)
		if err != nil {
			g.Close()
			return nil, err
		}
		g.backends[study.ID] = backend
		if study.Reference != "" {
			ref, err := NewReferenceGenome(study.Reference)
			if err != nil {
				g.Close()
				return nil, fmt.Errorf("study %s: %w", study.ID, err)
			}
			g.references[study.ID] = ref
		}
	}
	return g, nil
}

// Studies lists the study ids in order.
func (g *GenotypeDB) Studies() []string {
	ids := make([]string, 0, len(g.backends))
	for id := range g.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g *GenotypeDB) Backend(study string) (Backend, bool) {
	b, ok := g.backends[study]
	return b, ok
}

func (g *GenotypeDB) Reference(study string) (*ReferenceGenome, bool) {
	ref, ok := g.references[study]
	return ref, ok
}

func (g *GenotypeDB) selectBackends(studyIDs []string) ([]Backend, error) {
	if len(studyIDs) == 0 {
		studyIDs = g.Studies()
	}
	backends := make([]Backend, 0, len(studyIDs))
	for _, id := range studyIDs {
		b, ok := g.backends[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStudy, id)
		}
		backends = append(backends, b)
	}
	return backends, nil
}

// Explain compiles the filter for every selected study without running it.
// No study ids means all of them.
func (g *GenotypeDB) Explain(ctx context.Context, studyIDs []string, f *filter.Filter) ([]*query.CompiledQuery, error) {
	backends, err := g.selectBackends(studyIDs)
	if err != nil {
		return nil, err
	}
	compiled := make([]*query.CompiledQuery, len(backends))
	eg, _ := errgroup.WithContext(ctx)
	for i, b := range backends {
		i, b := i, b
		eg.Go(func() error {
			q, err := b.Compile(f)
			if err != nil {
				return fmt.Errorf("study %s: %w", b.Study(), err)
			}
			compiled[i] = q
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return compiled, nil
}

// QueryVariants compiles the filter for every selected study and starts
// their runners behind one aggregator. The caller reads it and must Close
// it when giving up early.
func (g *GenotypeDB) QueryVariants(ctx context.Context, studyIDs []string, f *filter.Filter) (*runner.Aggregator, error) {
	compiled, err := g.Explain(ctx, studyIDs, f)
	if err != nil {
		return nil, err
	}

	queue := runner.NewQueue(g.queueSize)
	var workers []runner.Worker
	for _, q := range compiled {
		b := g.backends[q.Study()]
		ws, err := b.Runners(q, queue, g.opts)
		if err != nil {
			runner.NewAggregator(queue, workers...).Close()
			return nil, fmt.Errorf("study %s: %w", q.Study(), err)
		}
		workers = append(workers, ws...)
	}

	agg := runner.NewAggregator(queue, workers...)
	agg.SetLimit(f.Limit)
	if err := agg.Start(); err != nil {
		return nil, err
	}
	logger.Debug("query started", zap.Int("studies", len(compiled)), zap.Int("runners", len(workers)))
	return agg, nil
}

// Collect runs a query to completion.
func (g *GenotypeDB) Collect(ctx context.Context, studyIDs []string, f *filter.Filter) ([]*model.Variant, error) {
	agg, err := g.QueryVariants(ctx, studyIDs, f)
	if err != nil {
		return nil, err
	}
	defer agg.Close()
	return agg.Collect(ctx)
}

func (g *GenotypeDB) Close() error {
	var errs []error
	for id, b := range g.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("study %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
