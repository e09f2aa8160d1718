// Package daemon runs generations of services. A generation is what the
// ConfigureFunc returns; reloading configures a new generation and replaces
// the running one with it, so a bad configuration never stops a running
// daemon.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Service is one long running part of a generation, like a reporter or an
// HTTP endpoint.
type Service interface {
	Name() string
	Start() error
	// Shutdown stops the service, waiting for work in progress until ctx
	// is done.
	Shutdown(ctx context.Context) error
}

// CleanupFunc is a function to call after all services of a generation are
// fully shut down. These can be used to - say - close files.
type CleanupFunc func() error

// ConfigureFunc returns the services of a new generation and the
// CleanupFuncs to call when they have completely shut down.
type ConfigureFunc func() ([]Service, []CleanupFunc, error)

// Daemon owns the running generation.
type Daemon struct {
	configure       ConfigureFunc
	logger          *slog.Logger
	shutdownTimeout time.Duration
	retryInterval   time.Duration

	reload chan struct{}
	exit   chan struct{}

	mu       sync.Mutex
	revision int
	current  generation
}

type generation struct {
	services []Service
	cleanups []CleanupFunc
}

// Option changes the behaviour of a Daemon.
type Option func(*Daemon)

// Logger sets the logger. Default is slog.Default().
func Logger(l *slog.Logger) Option {
	return func(d *Daemon) {
		d.logger = l
	}
}

// ShutdownTimeout bounds how long a generation may take to shut down.
// Default is 5 seconds.
func ShutdownTimeout(t time.Duration) Option {
	return func(d *Daemon) {
		d.shutdownTimeout = t
	}
}

// RetryInterval sets how long to wait before configuring again when a
// reload left the daemon without services. Default is 10 seconds.
func RetryInterval(t time.Duration) Option {
	return func(d *Daemon) {
		d.retryInterval = t
	}
}

// New creates a Daemon configuring its generations with f.
func New(f ConfigureFunc, opts ...Option) *Daemon {
	d := &Daemon{
		configure:       f,
		logger:          slog.Default(),
		shutdownTimeout: 5 * time.Second,
		retryInterval:   10 * time.Second,
		// 1 to take pending into account
		reload: make(chan struct{}, 1),
		exit:   make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run configures and starts the first generation, then serves reloads until
// ctx is done or Exit is called. The last generation is shut down before Run
// returns. A first generation which cannot be configured or started is
// returned as an error. A later one which fails to start leaves the daemon
// without services, and it configures again every RetryInterval until a
// generation starts.
func (d *Daemon) Run(ctx context.Context) error {
	gen, err := d.newGeneration()
	if err != nil {
		return err
	}
	if err := d.start(gen); err != nil {
		return err
	}

	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return d.shutdownCurrent()
		case <-d.exit:
			return d.shutdownCurrent()
		case <-d.reload:
			retry = d.replace(retry != nil)
		case <-retry:
			retry = d.replace(true)
		}
	}
}

// replace swaps the running generation for a new one. It returns a retry
// timer when the daemon is left without services.
func (d *Daemon) replace(idle bool) <-chan time.Time {
	next, err := d.newGeneration()
	if err != nil {
		if idle {
			d.logger.Error("daemon reload failed, running without services", "err", err, "retry", d.retryInterval)
			return time.After(d.retryInterval)
		}
		d.logger.Error("daemon reload failed, keeping the running services", "err", err)
		return nil
	}
	if err := d.shutdownCurrent(); err != nil {
		d.logger.Warn("previous generation shut down with errors", "err", err)
	}
	if err := d.start(next); err != nil {
		// the old services are gone and cannot be started twice
		d.logger.Error("new generation failed to start, running without services", "err", err, "retry", d.retryInterval)
		return time.After(d.retryInterval)
	}
	return nil
}

func (d *Daemon) newGeneration() (generation, error) {
	services, cleanups, err := d.configure()
	if err != nil {
		return generation{}, fmt.Errorf("configure: %w", err)
	}
	if len(services) == 0 {
		return generation{}, errors.New("configure: no services")
	}
	return generation{services: services, cleanups: cleanups}, nil
}

// start starts every service. When one fails, the ones already started are
// shut down again and the cleanups run.
func (d *Daemon) start(gen generation) error {
	for i, s := range gen.services {
		if err := s.Start(); err != nil {
			started := generation{services: gen.services[:i], cleanups: gen.cleanups}
			d.shutdown(started, -1)
			return fmt.Errorf("start %s: %w", s.Name(), err)
		}
	}
	d.mu.Lock()
	d.revision++
	d.current = gen
	rev := d.revision
	d.mu.Unlock()
	d.logger.Info("services started", "rev", rev, "services", len(gen.services))
	return nil
}

func (d *Daemon) shutdownCurrent() error {
	d.mu.Lock()
	gen, rev := d.current, d.revision
	d.current = generation{}
	d.mu.Unlock()
	return d.shutdown(gen, rev)
}

// shutdown stops all services of gen concurrently, then runs the cleanups.
func (d *Daemon) shutdown(gen generation, rev int) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range gen.services {
		wg.Add(1)
		go func(s Service) {
			defer wg.Done()
			if err := s.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	// All services done - either voluntarily or the hard way.
	// Run cleanups
	for _, f := range gen.cleanups {
		if err := f(); err != nil {
			d.logger.Warn("cleanup failed", "err", err)
			errs = append(errs, err)
		}
	}
	if rev >= 0 {
		d.logger.Info("all services shut down", "rev", rev)
	}
	return errors.Join(errs...)
}

// Reload tells Run to configure a new generation and replace the running
// one with it.
func (d *Daemon) Reload() {
	// don't wait if a reload is in progress
	select {
	case d.reload <- struct{}{}:
	default:
		d.logger.Info("reload already pending")
	}
}

// Exit tells Run to shut down and return.
func (d *Daemon) Exit() {
	select {
	case d.exit <- struct{}{}:
	default:
	}
}

// Revision counts the generations started so far.
func (d *Daemon) Revision() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revision
}

// Services returns the services of the running generation.
func (d *Daemon) Services() []Service {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Service(nil), d.current.services...)
}
