package metric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"
)

// A Poller is the background loop of a reporter. It calls its RunFunc with a
// fixed delay: the next run is scheduled period after the previous one
// finished, so a slow sink never causes overlapping runs.
//
// Errors and panics from a run are logged and the schedule continues. When
// the loop exits (after Stop or Shutdown) the closer is called exactly once
// to release the sink's files or connections.
type Poller struct {
	name   string
	run    RunFunc
	closer func() error
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	started bool
	// Tell the loop to exit
	stopChan chan struct{}
	// closed when the loop has exited and released the sink
	done   chan struct{}
	cancel context.CancelFunc

	// serializes runs with each other and with releasing the sink
	runMu    sync.Mutex
	released bool

	closeOnce sync.Once
	closeErr  error
}

// RunFunc is one reporter run.
type RunFunc func(ctx context.Context) error

// State is the scheduling state of a Poller.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithCloser sets the function releasing sink resources when the poller
// stops.
func WithCloser(f func() error) PollerOption {
	return func(p *Poller) {
		p.closer = f
	}
}

// WithLogger sets where run failures are logged.
func WithLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPoller creates an idle poller. name identifies it in logs.
func NewPoller(name string, run RunFunc, opts ...PollerOption) *Poller {
	p := &Poller{
		name:     name,
		run:      run,
		logger:   slog.Default(),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With("reporter", name)
	return p
}

// Name returns the name given to NewPoller.
func (p *Poller) Name() string { return p.name }

// State returns the current scheduling state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	if p.state != StateStopped {
		p.state = s
	}
	p.mu.Unlock()
}

// Start schedules the first run period from now.
func (p *Poller) Start(period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("poller %s: period must be positive, got %s", p.name, period)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.state == StateStopped:
		return ErrStopped
	case p.started:
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.started = true
	p.state = StateScheduled
	go p.loop(ctx, period)
	return nil
}

func (p *Poller) loop(ctx context.Context, period time.Duration) {
	defer close(p.done)
	defer p.release()

	timer := time.NewTimer(period)
	defer timer.Stop()
	for {
		select {
		case <-p.stopChan:
			return
		case <-timer.C:
			select {
			case <-p.stopChan:
				return
			default:
			}
			p.setState(StateRunning)
			if err := p.runOnce(ctx); err != nil {
				p.logger.Error("report failed", "err", err)
			}
			p.setState(StateScheduled)
			timer.Reset(period)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) (err error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.released {
		return ErrStopped
	}

	var pc panics.Catcher
	pc.Try(func() {
		err = p.run(ctx)
	})
	if r := pc.Recovered(); r != nil {
		return r.AsError()
	}
	return err
}

// RunNow runs the reporter once, synchronously, and returns its error. It
// waits for a scheduled run in progress to finish first.
func (p *Poller) RunNow(ctx context.Context) error {
	return p.runOnce(ctx)
}

func (p *Poller) release() {
	p.closeOnce.Do(func() {
		p.runMu.Lock()
		defer p.runMu.Unlock()
		p.released = true
		if p.closer != nil {
			p.closeErr = p.closer()
		}
	})
}

// stop marks the poller stopped and tells the loop to exit. It reports
// whether a loop was started.
func (p *Poller) stop() (started bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateStopped {
		p.state = StateStopped
		close(p.stopChan)
	}
	return p.started
}

// Stop cancels future runs without waiting for a run in progress. The sink
// is released when that run returns.
func (p *Poller) Stop() {
	if !p.stop() {
		p.release()
	}
}

// Shutdown cancels future runs and waits up to timeout for a run in progress
// to finish. It returns ErrShutdownTimeout if it gave up waiting; the run's
// context is then cancelled and the sink is still released once it returns.
func (p *Poller) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.ShutdownContext(ctx)
}

// ShutdownContext is Shutdown bounded by a context instead of a timeout.
func (p *Poller) ShutdownContext(ctx context.Context) error {
	if !p.stop() {
		p.release()
		return p.closeErr
	}
	select {
	case <-p.done:
		return p.closeErr
	case <-ctx.Done():
		p.mu.Lock()
		cancel := p.cancel
		p.mu.Unlock()
		cancel()
		return fmt.Errorf("poller %s: %w", p.name, ErrShutdownTimeout)
	}
}

// Reporter is what every sink reporter exposes through its embedded Poller.
type Reporter interface {
	Name() string
	Start(period time.Duration) error
	RunNow(ctx context.Context) error
	Stop()
	Shutdown(timeout time.Duration) error
}

var _ Reporter = (*Poller)(nil)

// Reporters operates on several reporters at once. Each reporter is started
// on its own, with its own period.
type Reporters []Reporter

// Shutdown shuts all reporters down concurrently, each bounded by timeout,
// and joins their errors.
func (rs Reporters) Shutdown(timeout time.Duration) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, r := range rs {
		r := r
		g.Go(func() error {
			if err := r.Shutdown(timeout); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// RunNow runs every reporter once, concurrently, and joins their errors.
func (rs Reporters) RunNow(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, r := range rs {
		r := r
		g.Go(func() error {
			if err := r.RunNow(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
