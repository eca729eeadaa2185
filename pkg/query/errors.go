package query

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrInvalidRange     = errors.New("invalid range")
	ErrUnsupported      = errors.New("not supported by this table layout")
	ErrInvalidFilter    = errors.New("invalid filter")
)

// CompileError reports a filter that cannot be compiled against a table.
// It is returned before any backend work starts.
type CompileError struct {
	Field  string
	Reason string
	Err    error
}

func (e *CompileError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("compile query: %s", e.Reason)
	}
	return fmt.Sprintf("compile query: %s: %s", e.Field, e.Reason)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func compileErr(field string, err error, format string, args ...any) *CompileError {
	return &CompileError{Field: field, Reason: fmt.Sprintf(format, args...), Err: err}
}
