package metric

import (
	"math"
	"sync/atomic"
	"time"
)

// TickInterval is the period of one decay step of a RateEstimator.
const TickInterval = 5 * time.Second

var (
	alpha1  = windowAlpha(time.Minute)
	alpha5  = windowAlpha(5 * time.Minute)
	alpha15 = windowAlpha(15 * time.Minute)
)

func windowAlpha(window time.Duration) float64 {
	return 1 - math.Exp(-TickInterval.Seconds()/window.Seconds())
}

// RateEstimator tracks a total count and exponentially weighted moving
// averages of the event rate over 1, 5 and 15 minute windows, like the unix
// load average.
//
// Marks only touch two atomic counters. Decay happens on reads: the reader
// that observes one or more elapsed tick intervals wins a compare-and-swap on
// the last tick time and applies the missed ticks. The events marked since
// the previous tick are drained once per tick and fed to all three windows.
type RateEstimator struct {
	now       func() time.Time
	start     time.Time
	count     atomic.Int64
	uncounted atomic.Int64
	lastTick  atomic.Int64 // unix nanos

	m1, m5, m15 atomicFloat64
}

// NewRateEstimator returns an estimator starting now.
func NewRateEstimator(opts ...MOption) *RateEstimator {
	cfg := newMConfig(nil, opts...)
	return newRateEstimator(cfg.now)
}

func newRateEstimator(now func() time.Time) *RateEstimator {
	e := &RateEstimator{now: now, start: now()}
	e.lastTick.Store(e.start.UnixNano())
	return e
}

// Mark records n events.
func (e *RateEstimator) Mark(n int64) {
	e.count.Add(n)
	e.uncounted.Add(n)
}

// Count is the total number of events marked.
func (e *RateEstimator) Count() int64 {
	return e.count.Load()
}

func (e *RateEstimator) tickIfNecessary() {
	old := e.lastTick.Load()
	now := e.now().UnixNano()
	age := now - old
	if age < int64(TickInterval) {
		return
	}
	latest := now - age%int64(TickInterval)
	if !e.lastTick.CompareAndSwap(old, latest) {
		// another reader is ticking
		return
	}
	for i := age / int64(TickInterval); i > 0; i-- {
		e.tick()
	}
}

func (e *RateEstimator) tick() {
	instant := float64(e.uncounted.Swap(0)) / TickInterval.Seconds()
	decay(&e.m1, alpha1, instant)
	decay(&e.m5, alpha5, instant)
	decay(&e.m15, alpha15, instant)
}

func decay(rate *atomicFloat64, alpha, instant float64) {
	r := rate.load()
	rate.store(r + alpha*(instant-r))
}

// OneMinuteRate is the one minute moving average in events per second.
func (e *RateEstimator) OneMinuteRate() float64 {
	e.tickIfNecessary()
	return e.m1.load()
}

// FiveMinuteRate is the five minute moving average in events per second.
func (e *RateEstimator) FiveMinuteRate() float64 {
	e.tickIfNecessary()
	return e.m5.load()
}

// FifteenMinuteRate is the fifteen minute moving average in events per second.
func (e *RateEstimator) FifteenMinuteRate() float64 {
	e.tickIfNecessary()
	return e.m15.load()
}

// MeanRate is the total count divided by the seconds since creation.
func (e *RateEstimator) MeanRate() float64 {
	count := e.Count()
	if count == 0 {
		return 0
	}
	elapsed := e.now().Sub(e.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(count) / elapsed
}

// Rates returns all four rates after a single catch-up.
func (e *RateEstimator) Rates() (m1, m5, m15, mean float64) {
	e.tickIfNecessary()
	return e.m1.load(), e.m5.load(), e.m15.load(), e.MeanRate()
}
