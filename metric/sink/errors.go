// Package sink holds what the sink implementations in its sub-packages have
// in common: the errors a reporter run can end with.
package sink

import (
	"errors"
	"fmt"

	"github.com/Hitta/metrics/metric"
)

// Sentinels matched with errors.Is by the typed errors below.
var (
	ErrUnavailable = errors.New("sink unavailable")
	ErrWrite       = errors.New("sink write failed")
	ErrFileCreate  = errors.New("sink file create failed")
	ErrFormatter   = errors.New("formatter failed")
)

// UnavailableError is returned when a network sink cannot be reached or the
// connection breaks during a run. The next run dials again.
type UnavailableError struct {
	Addr string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("sink %s unavailable: %v", e.Addr, e.Err)
}

func (e *UnavailableError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }

// WriteError is returned when writing a report to a stream or file failed.
// It aborts the current run only.
type WriteError struct {
	Target string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to %s: %v", e.Target, e.Err)
}

func (e *WriteError) Unwrap() []error { return []error{ErrWrite, e.Err} }

// FileCreateError is returned when a per-metric file could not be created.
// Only that metric's row is lost for the run.
type FileCreateError struct {
	Path string
	Err  error
}

func (e *FileCreateError) Error() string {
	return fmt.Sprintf("create %s: %v", e.Path, e.Err)
}

func (e *FileCreateError) Unwrap() []error { return []error{ErrFileCreate, e.Err} }

// FormatterError is returned when formatting a single metric failed,
// including when a user supplied formatter panicked.
type FormatterError struct {
	Kind metric.Kind
	Name string
	Err  error
}

func (e *FormatterError) Error() string {
	return fmt.Sprintf("format %s %s: %v", e.Kind, e.Name, e.Err)
}

func (e *FormatterError) Unwrap() []error { return []error{ErrFormatter, e.Err} }
