package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/Hitta/metrics/metric"
	"github.com/Hitta/metrics/metric/instrument"
	"github.com/Hitta/metrics/metric/procstats"
)

// registerRuntimeGauges exposes the process statistics to every sink, not
// only to graphite's runtime lines.
func registerRuntimeGauges(reg *metric.Registry) error {
	name := func(n string) metric.Name { return metric.NewName("metricsd", "Runtime", n) }
	read := func(f func(procstats.Stats) float64) *metric.Gauge {
		return metric.GaugeFuncErr(func() (float64, error) {
			s, err := procstats.Default.Read()
			return f(s), err
		})
	}
	gauges := map[string]*metric.Gauge{
		"heap-usage": read(func(s procstats.Stats) float64 { return s.HeapUsage }),
		"goroutines": read(func(s procstats.Stats) float64 { return float64(s.Goroutines) }),
		"uptime":     read(func(s procstats.Stats) float64 { return s.Uptime.Seconds() }),
	}
	for n, g := range gauges {
		if _, err := reg.Gauge(name(n), g); err != nil {
			return err
		}
	}
	return nil
}

// workload feeds every metric kind with synthetic traffic.
type workload struct {
	pool    *instrument.WorkerPool
	logger  *slog.Logger
	jobs    *metric.Counter
	sizes   *metric.Histogram
	latency *metric.Timer
	errs    *metric.Meter
}

func newWorkload(reg *metric.Registry, workers int, logger *slog.Logger) (*workload, error) {
	name := func(n string) metric.Name { return metric.NewName("metricsd", "Workload", n) }
	w := &workload{logger: logger}
	var err error
	if w.pool, err = instrument.NewWorkerPool(reg, "demo", workers); err != nil {
		return nil, err
	}
	if w.jobs, err = reg.Counter(name("in-flight")); err != nil {
		return nil, err
	}
	if w.sizes, err = reg.Histogram(name("payload-bytes")); err != nil {
		return nil, err
	}
	if w.latency, err = reg.Timer(name("latency")); err != nil {
		return nil, err
	}
	if w.errs, err = reg.Meter(name("failures"), "failures"); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *workload) run(ctx context.Context) {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for ctx.Err() == nil {
		size := rnd.Int63n(64 << 10)
		sleep := time.Duration(rnd.Int63n(int64(50 * time.Millisecond)))
		fail := rnd.Intn(20) == 0
		err := w.pool.Submit(ctx, func() {
			w.jobs.Inc(1)
			defer w.jobs.Dec(1)
			ctx := w.latency.Start()
			time.Sleep(sleep)
			ctx.Stop()
			w.sizes.Update(size)
			if fail {
				w.errs.Mark(1)
			}
		})
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, instrument.ErrPoolClosed):
			return
		default:
			w.logger.Warn("workload stopped", "err", err)
			return
		}
	}
}

func (w *workload) close() {
	if err := w.pool.Close(); err != nil {
		w.logger.Warn("closing workload", "err", err)
	}
}
