package metric

import (
	"errors"
	"fmt"
)

var (
	// ErrKindMismatch is matched (with errors.Is) by every *KindMismatchError.
	ErrKindMismatch = errors.New("metric kind mismatch")

	// ErrGaugePanic wraps the value recovered from a panicking gauge callback.
	ErrGaugePanic = errors.New("gauge callback panicked")

	// ErrAlreadyStarted is returned when starting a running Poller.
	ErrAlreadyStarted = errors.New("poller already started")
	// ErrStopped is returned when starting a Poller which has been shut down.
	ErrStopped = errors.New("poller stopped")
	// ErrShutdownTimeout is returned by Shutdown when the in-flight run
	// did not finish in time. Cleanup still happens when the run returns.
	ErrShutdownTimeout = errors.New("poller shutdown timed out")
)

// KindMismatchError is returned by the Registry when a name is already taken
// by a metric of another kind.
type KindMismatchError struct {
	Name     Name
	Existing Kind
	Wanted   Kind
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("metric %q is a %s, not a %s", e.Name.Path(), e.Existing, e.Wanted)
}

func (e *KindMismatchError) Unwrap() error { return ErrKindMismatch }
