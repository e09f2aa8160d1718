package metric

import (
	"sync"
	"time"
)

// Timer measures durations into a histogram and the call rate into a meter.
// Durations are recorded in nanoseconds and reported in the duration unit.
type Timer struct {
	// Updates share the lock, Snapshot takes it exclusively, so a snapshot
	// never sees the histogram and the meter disagree about the count.
	mu    sync.RWMutex
	histo *Histogram
	meter *Meter

	durationUnit time.Duration
	now          func() time.Time
}

// NewTimer returns an unregistered Timer.
func NewTimer(opts ...MOption) *Timer {
	return newTimer(newMConfig(nil, opts...))
}

func newTimer(cfg *MConfig) *Timer {
	return &Timer{
		histo:        NewHistogram(cfg.reservoir(cfg)),
		meter:        newMeter("calls", cfg),
		durationUnit: cfg.durationUnit,
		now:          cfg.now,
	}
}

func (t *Timer) Kind() Kind { return KindTimer }

func (t *Timer) Render(r Renderer, ctx any) error { return r.RenderTimer(t, ctx) }

func (*Timer) metric() {}

// Update records one call taking d. Negative durations are ignored.
func (t *Timer) Update(d time.Duration) {
	if d < 0 {
		return
	}
	t.mu.RLock()
	t.histo.Update(int64(d))
	t.meter.Mark(1)
	t.mu.RUnlock()
}

// UpdateSince records the time elapsed since start.
func (t *Timer) UpdateSince(start time.Time) {
	t.Update(t.now().Sub(start))
}

// Time runs f and records how long it took, also when f panics.
func (t *Timer) Time(f func()) {
	defer t.Start().Stop()
	f()
}

// TimeErr runs f and records how long it took. The error is passed through.
func (t *Timer) TimeErr(f func() error) error {
	defer t.Start().Stop()
	return f()
}

// Start begins a measurement. Call Stop on the result, typically with defer.
func (t *Timer) Start() *TimerContext {
	return &TimerContext{timer: t, start: t.now()}
}

// TimerContext is one measurement in progress.
type TimerContext struct {
	timer *Timer
	start time.Time
	once  sync.Once
	d     time.Duration
}

// Stop records the elapsed time and returns it. Only the first call records.
func (c *TimerContext) Stop() time.Duration {
	c.once.Do(func() {
		c.d = c.timer.now().Sub(c.start)
		c.timer.Update(c.d)
	})
	return c.d
}

func (t *Timer) DurationUnit() time.Duration { return t.durationUnit }

func (t *Timer) unit() float64 { return float64(t.durationUnit) }

// Count is the number of calls recorded.
func (t *Timer) Count() int64 { return t.histo.Count() }

func (t *Timer) Min() float64 { return t.histo.Min() / t.unit() }

func (t *Timer) Max() float64 { return t.histo.Max() / t.unit() }

func (t *Timer) Mean() float64 { return t.histo.Mean() / t.unit() }

func (t *Timer) StdDev() float64 { return t.histo.StdDev() / t.unit() }

func (t *Timer) Sum() float64 { return t.histo.Sum() / t.unit() }

// Percentiles estimates quantiles of the durations, in the duration unit.
func (t *Timer) Percentiles(qs ...float64) []float64 {
	ps := t.histo.Percentiles(qs...)
	for i := range ps {
		ps[i] /= t.unit()
	}
	return ps
}

// Sample returns the sampled durations in nanoseconds.
func (t *Timer) Sample() Snapshot { return t.histo.Sample() }

func (t *Timer) EventType() string { return t.meter.EventType() }

func (t *Timer) RateUnit() time.Duration { return t.meter.RateUnit() }

func (t *Timer) MeanRate() float64 { return t.meter.MeanRate() }

func (t *Timer) OneMinuteRate() float64 { return t.meter.OneMinuteRate() }

func (t *Timer) FiveMinuteRate() float64 { return t.meter.FiveMinuteRate() }

func (t *Timer) FifteenMinuteRate() float64 { return t.meter.FifteenMinuteRate() }

// Snapshot reads the durations and the rates together.
func (t *Timer) Snapshot() TimerSnapshot {
	t.mu.Lock()
	h := t.histo.Snapshot()
	m := t.meter.Snapshot()
	t.mu.Unlock()
	return TimerSnapshot{
		Durations:    h.scaled(t.unit()),
		Rates:        m,
		DurationUnit: t.durationUnit,
	}
}

// TimerSnapshot is a point in time reading of a timer. Durations are in
// DurationUnit; Durations.Count always equals Rates.Count.
type TimerSnapshot struct {
	Durations    HistogramSnapshot
	Rates        MeterSnapshot
	DurationUnit time.Duration
}
