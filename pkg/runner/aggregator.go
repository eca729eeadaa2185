package runner

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/yumyai/varquery/logger"
	"github.com/yumyai/varquery/pkg/model"
)

// Aggregator merges the queue shared by its workers into one stream. Rows of
// one worker keep their order; rows of different workers interleave in
// arrival order.
//
// Next is meant for a single consumer. Close may be called from anywhere.
type Aggregator struct {
	queue   Queue
	workers []Worker
	limit   int
	log     *zap.Logger

	mu      sync.Mutex
	started bool
	closed  bool

	watchOnce sync.Once
	closeOnce sync.Once
	closedCh  chan struct{}
	finished  chan struct{}

	// consumer state
	err   error
	count int
}

func NewAggregator(queue Queue, workers ...Worker) *Aggregator {
	return &Aggregator{
		queue:    queue,
		workers:  workers,
		log:      logger.Named("aggregator"),
		closedCh: make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// SetLimit stops the stream after n variants. Zero means no limit.
func (a *Aggregator) SetLimit(n int) {
	a.limit = n
}

func (a *Aggregator) Workers() []Worker {
	return append([]Worker(nil), a.workers...)
}

// Start starts every worker.
func (a *Aggregator) Start() error {
	a.mu.Lock()
	switch {
	case a.closed:
		a.mu.Unlock()
		return ErrClosed
	case a.started:
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	a.log.Debug("starting runners", zap.Int("runners", len(a.workers)))
	for _, w := range a.workers {
		if err := w.Start(); err != nil && !errors.Is(err, ErrAlreadyStarted) {
			a.Close()
			return err
		}
	}
	a.watch()
	return nil
}

// watch closes finished once every worker has exited.
func (a *Aggregator) watch() {
	a.watchOnce.Do(func() {
		go func() {
			for _, w := range a.workers {
				<-w.Finished()
			}
			close(a.finished)
		}()
	})
}

// Finished is closed once every worker has exited.
func (a *Aggregator) Finished() <-chan struct{} {
	return a.finished
}

// Next returns the next variant. It returns ErrDone when every worker is
// done and the queue is drained, or after Close. A backend failure is
// returned as an *ExecutionError and ends the stream: every later call
// returns the same error.
func (a *Aggregator) Next(ctx context.Context) (*model.Variant, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.mu.Lock()
	started, closed := a.started, a.closed
	a.mu.Unlock()
	if !started && !closed {
		return nil, ErrNotStarted
	}
	if a.limit > 0 && a.count >= a.limit {
		a.Close()
		return nil, ErrDone
	}
	select {
	case <-a.closedCh:
		return nil, ErrDone
	default:
	}

	select {
	case item := <-a.queue:
		return a.take(item)
	case <-a.finished:
		select {
		case item := <-a.queue:
			return a.take(item)
		default:
			return nil, ErrDone
		}
	case <-a.closedCh:
		return nil, ErrDone
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Aggregator) take(item Item) (*model.Variant, error) {
	if item.Err != nil {
		a.err = item.Err
		a.log.Warn("query failed", zap.Error(item.Err))
		a.Close()
		return nil, item.Err
	}
	a.count++
	return item.Variant, nil
}

// Collect drains the stream into a slice.
func (a *Aggregator) Collect(ctx context.Context) ([]*model.Variant, error) {
	var out []*model.Variant
	for {
		v, err := a.Next(ctx)
		if errors.Is(err, ErrDone) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// Close closes every worker once and wakes a blocked consumer. Workers that
// were never started are started closed, so they exit at once and report
// done.
func (a *Aggregator) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		wasStarted := a.started
		a.mu.Unlock()

		close(a.closedCh)
		for _, w := range a.workers {
			w.Close()
		}
		if !wasStarted {
			for _, w := range a.workers {
				if !w.Started() {
					_ = w.Start()
				}
			}
		}
		a.watch()
		a.log.Debug("aggregator closed")
	})
}
