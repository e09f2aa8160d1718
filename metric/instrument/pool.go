// Package instrument wraps common concurrency building blocks so that they
// register and update their own metrics.
package instrument

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"

	"github.com/Hitta/metrics/metric"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// ErrPoolExists is returned by NewWorkerPool when the name is taken.
var ErrPoolExists = errors.New("worker pool already registered")

// WorkerPool runs submitted tasks on at most size goroutines. It registers,
// under group "instrument", type "WorkerPool" and the pool's name as scope:
//
//	percent-idle    gauge, idle workers / size
//	active-workers  gauge
//	idle-workers    gauge
//	task-duration   timer
//	submitted       meter
type WorkerPool struct {
	size   int
	sem    chan struct{}
	active atomic.Int64

	mu     sync.RWMutex
	closed bool
	wg     conc.WaitGroup

	duration  *metric.Timer
	submitted *metric.Meter
}

// NewWorkerPool creates a pool and registers its metrics in reg. It fails if
// one of the names is registered with another kind, or with ErrPoolExists if
// a pool of that name is already registered. Nothing stays registered when it
// fails.
func NewWorkerPool(reg *metric.Registry, name string, size int) (*WorkerPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("worker pool %s: size must be positive, got %d", name, size)
	}
	p := &WorkerPool{size: size, sem: make(chan struct{}, size)}
	mname := func(n string) metric.Name {
		return metric.NewName("instrument", "WorkerPool", n).WithScope(name)
	}

	var added []metric.Name
	fail := func(err error) (*WorkerPool, error) {
		for _, n := range added {
			reg.Remove(n)
		}
		return nil, err
	}
	gauges := []struct {
		name string
		g    *metric.Gauge
	}{
		{"percent-idle", metric.GaugeFunc(p.PercentIdle)},
		{"active-workers", metric.GaugeFunc(p.Active)},
		{"idle-workers", metric.GaugeFunc(p.Idle)},
	}
	for _, e := range gauges {
		got, err := reg.Gauge(mname(e.name), e.g)
		if err != nil {
			return fail(err)
		}
		if got != e.g {
			return fail(fmt.Errorf("worker pool %s: %w", name, ErrPoolExists))
		}
		added = append(added, mname(e.name))
	}
	if _, ok := reg.Get(mname("task-duration")); !ok {
		added = append(added, mname("task-duration"))
	}
	var err error
	if p.duration, err = reg.Timer(mname("task-duration")); err != nil {
		return fail(err)
	}
	if p.submitted, err = reg.Meter(mname("submitted"), "tasks"); err != nil {
		return fail(err)
	}
	return p, nil
}

// Submit waits for a free worker and runs f on it. It returns ctx.Err() if
// ctx ends first.
func (p *WorkerPool) Submit(ctx context.Context, f func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.submitted.Mark(1)
	p.active.Add(1)
	p.wg.Go(func() {
		defer func() {
			p.active.Add(-1)
			<-p.sem
		}()
		p.duration.Time(f)
	})
	return nil
}

// Close stops accepting tasks and waits for the running ones. A task which
// panicked is reported as an error.
func (p *WorkerPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.closed = true
	p.mu.Unlock()

	if r := p.wg.WaitAndRecover(); r != nil {
		return r.AsError()
	}
	return nil
}

// Size is the maximum number of concurrent tasks.
func (p *WorkerPool) Size() int { return p.size }

// Active is the number of running tasks.
func (p *WorkerPool) Active() int64 { return p.active.Load() }

// Idle is the number of free workers.
func (p *WorkerPool) Idle() int64 { return int64(p.size) - p.active.Load() }

// PercentIdle is the fraction of free workers, in [0, 1].
func (p *WorkerPool) PercentIdle() float64 {
	return float64(p.Idle()) / float64(p.size)
}
