// Package runner executes compiled queries on their own goroutines and fans
// their rows into one stream.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yumyai/varquery/logger"
	"github.com/yumyai/varquery/pkg/model"
	"github.com/yumyai/varquery/pkg/query"
)

// Item is a queue entry: a variant or the error that ended a runner.
type Item struct {
	Variant *model.Variant
	Err     error
}

// Queue is the bounded channel shared by the runners of one aggregator.
type Queue chan Item

func NewQueue(size int) Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return make(Queue, size)
}

// Cursor iterates the raw rows of one executing query. Next returns io.EOF
// after the last row. Close releases the backend connection.
type Cursor[R any] interface {
	Next(ctx context.Context) (R, error)
	Close() error
}

// Source opens cursors over one backend. Each Open checks out its own
// connection.
type Source[R any] interface {
	Open(ctx context.Context, q *query.CompiledQuery) (Cursor[R], error)
}

// Deserializer converts a raw backend row into a variant.
type Deserializer[R any] func(R) (*model.Variant, error)

// Worker is the lifecycle every runner exposes to the aggregator.
type Worker interface {
	ID() string
	Start() error
	Close()
	Started() bool
	Closed() bool
	Done() bool
	// Finished is closed once the worker goroutine has exited.
	Finished() <-chan struct{}
}

const (
	DefaultQueueSize     = 1000
	DefaultPutTimeout    = 100 * time.Millisecond
	DefaultMaxNoInterest = 5000
	DefaultWarnEvery     = 1000
)

// Options tune the enqueue loop. With the defaults a runner gives up after
// about eight minutes without a reader.
type Options struct {
	PutTimeout    time.Duration
	MaxNoInterest int
	WarnEvery     int
}

func (o Options) withDefaults() Options {
	if o.PutTimeout <= 0 {
		o.PutTimeout = DefaultPutTimeout
	}
	if o.MaxNoInterest <= 0 {
		o.MaxNoInterest = DefaultMaxNoInterest
	}
	if o.WarnEvery <= 0 {
		o.WarnEvery = DefaultWarnEvery
	}
	return o
}

// QueryRunner runs one compiled query against one connection.
type QueryRunner[R any] struct {
	id          string
	study       string
	source      Source[R]
	compiled    *query.CompiledQuery
	deserialize Deserializer[R]
	queue       Queue
	opts        Options
	log         *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	finished chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	done    bool
}

func New[R any](study string, source Source[R], compiled *query.CompiledQuery, deserialize Deserializer[R], queue Queue, opts Options) *QueryRunner[R] {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &QueryRunner[R]{
		id:          id,
		study:       study,
		source:      source,
		compiled:    compiled,
		deserialize: deserialize,
		queue:       queue,
		opts:        opts.withDefaults(),
		log:         logger.Named("runner").With(zap.String("runner", id), zap.String("study", study)),
		ctx:         ctx,
		cancel:      cancel,
		finished:    make(chan struct{}),
	}
}

func (r *QueryRunner[R]) ID() string { return r.id }

func (r *QueryRunner[R]) Study() string { return r.study }

func (r *QueryRunner[R]) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *QueryRunner[R]) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Done is true once the worker goroutine has exited.
func (r *QueryRunner[R]) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *QueryRunner[R]) Finished() <-chan struct{} {
	return r.finished
}

// Start spawns the worker. A runner closed before Start still spawns it;
// the worker exits without touching the backend.
func (r *QueryRunner[R]) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	runnersStarted.WithLabelValues(r.dialect()).Inc()
	go r.run()
	return nil
}

// Close asks the worker to stop. It never blocks and may be called any
// number of times from any goroutine.
func (r *QueryRunner[R]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.cancel()
}

func (r *QueryRunner[R]) dialect() string {
	if r.compiled == nil {
		return ""
	}
	return r.compiled.Dialect().String()
}

func (r *QueryRunner[R]) run() {
	begin := time.Now()
	rows := 0
	r.log.Debug("runner started")
	defer func() {
		if p := recover(); p != nil {
			r.fail(fmt.Errorf("panic: %v", p))
		}
		runnerDuration.WithLabelValues(r.dialect()).Observe(time.Since(begin).Seconds())
		r.log.Debug("runner stopped", zap.Int("rows", rows), zap.Duration("elapsed", time.Since(begin)))
		r.mu.Lock()
		r.done = true
		r.mu.Unlock()
		close(r.finished)
	}()

	if r.Closed() {
		return
	}
	cursor, err := r.source.Open(r.ctx, r.compiled)
	if err != nil {
		if !r.Closed() {
			r.fail(err)
		}
		return
	}
	defer func() {
		if err := cursor.Close(); err != nil {
			r.log.Warn("release connection", zap.Error(err))
		}
	}()

	for !r.Closed() {
		row, err := cursor.Next(r.ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if !r.Closed() {
				r.fail(err)
			}
			return
		}
		v, err := r.deserialize(row)
		if err != nil {
			r.fail(fmt.Errorf("deserialize: %w", err))
			return
		}
		if v.Study == "" {
			v.Study = r.study
		}
		if !r.put(Item{Variant: v}) {
			return
		}
		rows++
		runnerRows.WithLabelValues(r.dialect()).Inc()
	}
}

func (r *QueryRunner[R]) fail(err error) {
	runnerErrors.WithLabelValues(r.dialect()).Inc()
	r.log.Error("runner failed", zap.Error(err))
	r.put(Item{Err: &ExecutionError{Runner: r.id, Study: r.study, Err: err}})
}

// put blocks until the item is queued, the runner is closed, or nobody has
// read from the queue for MaxNoInterest timeouts. In the last case the
// runner closes itself so it does not hold its connection forever.
func (r *QueryRunner[R]) put(item Item) bool {
	timer := time.NewTimer(r.opts.PutTimeout)
	defer timer.Stop()
	for noInterest := 0; ; {
		select {
		case r.queue <- item:
			return true
		case <-r.ctx.Done():
			return false
		case <-timer.C:
			noInterest++
			if noInterest%r.opts.WarnEvery == 0 {
				r.log.Warn("result queue full", zap.Int("attempts", noInterest))
			}
			if noInterest > r.opts.MaxNoInterest {
				r.log.Warn("nobody is reading results, closing runner", zap.Int("attempts", noInterest))
				runnerSelfClosed.WithLabelValues(r.dialect()).Inc()
				r.Close()
				return false
			}
			timer.Reset(r.opts.PutTimeout)
		}
	}
}
