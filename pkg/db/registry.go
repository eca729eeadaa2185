package db

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/yumyai/varquery/logger"
	"github.com/yumyai/varquery/pkg/config"
	"github.com/yumyai/varquery/pkg/partition"
	"github.com/yumyai/varquery/pkg/query"
)

// OpenFunc connects a configured study whose metadata is already built.
type OpenFunc func(ctx context.Context, study config.Study, meta *query.TableMetadata) (Backend, error)

// Registry maps backend names to the functions that open them.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]OpenFunc
}

func NewRegistry() *Registry {
	return &Registry{openers: map[string]OpenFunc{}}
}

func (r *Registry) Register(name string, open OpenFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[name] = open
}

// Names lists the registered backends.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.openers))
	for name := range r.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the study's metadata and connects its backend.
func (r *Registry) Open(ctx context.Context, study config.Study) (Backend, error) {
	r.mu.RLock()
	open, ok := r.openers[study.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("study %s: unknown backend %q", study.ID, study.Backend)
	}
	meta, err := Metadata(study)
	if err != nil {
		return nil, fmt.Errorf("study %s: %w", study.ID, err)
	}
	backend, err := open(ctx, study, meta)
	if err != nil {
		return nil, fmt.Errorf("study %s: %w", study.ID, err)
	}
	logger.Info("opened study", zap.String("study", study.ID), zap.String("backend", study.Backend))
	return backend, nil
}

// DefaultRegistry knows every built-in backend.
var DefaultRegistry = NewRegistry()

func init() {
	for _, d := range []query.Dialect{query.SQLite, query.DuckDB, query.Impala} {
		d := d
		DefaultRegistry.Register(d.String(), func(ctx context.Context, study config.Study, meta *query.TableMetadata) (Backend, error) {
			return OpenSQL(d, study.DSN, study.MaxConnections, meta)
		})
	}
	DefaultRegistry.Register(query.BigQuery.String(), func(ctx context.Context, study config.Study, meta *query.TableMetadata) (Backend, error) {
		return OpenBigQuery(ctx, study.Project, study.MaxConnections, meta)
	})
	DefaultRegistry.Register("parquet", func(ctx context.Context, study config.Study, meta *query.TableMetadata) (Backend, error) {
		return OpenParquet(study.Path, study.MaxConnections, meta)
	})
}

// Metadata derives the compiler's view of a study. Chromosome lengths come
// from the reference index and person to family ids from the pedigree.
func Metadata(study config.Study) (*query.TableMetadata, error) {
	meta := &query.TableMetadata{
		Study:           study.ID,
		Database:        study.Tables.Database,
		SummaryTable:    study.Tables.Summary,
		FamilyTable:     study.Tables.Family,
		EffectGeneTable: study.Tables.EffectGene,
		JoinKey:         study.Tables.JoinKey,
		ZygosityColumns: study.ZygosityColumns,
	}
	if meta.SummaryTable == "" && study.Backend == "parquet" {
		meta.SummaryTable = study.ID
	}
	if len(study.Attributes) > 0 {
		meta.Attributes = make(map[string]query.AttributeKind, len(study.Attributes))
		for name, kind := range study.Attributes {
			switch kind {
			case "score":
				meta.Attributes[name] = query.AttrScore
			case "frequency":
				meta.Attributes[name] = query.AttrFrequency
			default:
				return nil, fmt.Errorf("attribute %s: unknown kind %q", name, kind)
			}
		}
	}

	if study.Partition == nil {
		return meta, nil
	}
	ix := &partition.Index{Descriptor: study.Partition, Lookback: study.RegionLookback}
	if study.Reference != "" {
		ref, err := NewReferenceGenome(study.Reference)
		if err != nil {
			return nil, err
		}
		ix.ChromLengths = ref.ChromLengths
	}
	if study.Pedigree != "" {
		people, err := ReadPedigree(study.Pedigree)
		if err != nil {
			return nil, err
		}
		ix.PersonFamily = people
	}
	meta.Partition = ix
	return meta, nil
}
