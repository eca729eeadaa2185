package runner

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted = errors.New("runner already started")
	ErrNotStarted     = errors.New("aggregator not started")
	ErrClosed         = errors.New("aggregator closed")
	// ErrDone ends iteration, like io.EOF.
	ErrDone = errors.New("no more results")
)

// ExecutionError is a backend failure captured by a runner and delivered
// through the queue at the point it happened.
type ExecutionError struct {
	Runner string
	Study  string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("runner %s (study %s): %v", e.Runner, e.Study, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
