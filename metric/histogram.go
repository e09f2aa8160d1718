package metric

import (
	"math"
	"sync"
	"sync/atomic"
)

// Histogram tracks the distribution of a stream of int64 values. Count, min,
// max, sum, mean and variance are exact over everything seen; percentiles
// come from the bounded sample in the Reservoir.
type Histogram struct {
	reservoir Reservoir

	count  atomic.Int64
	sum    atomic.Int64
	minmax atomicMinMax

	// Welford's running mean and sum of squared deviations.
	wmu  sync.Mutex
	n    int64
	mean float64
	m2   float64
}

// NewHistogram returns an unregistered Histogram sampling into r.
func NewHistogram(r Reservoir) *Histogram {
	if r == nil {
		r = NewExpDecayReservoir(DefaultSampleSize, DefaultAlpha)
	}
	h := &Histogram{reservoir: r}
	h.minmax.reset()
	return h
}

func (h *Histogram) Kind() Kind { return KindHistogram }

func (h *Histogram) Render(r Renderer, ctx any) error { return r.RenderHistogram(h, ctx) }

func (*Histogram) metric() {}

// Update records v.
func (h *Histogram) Update(v int64) {
	h.reservoir.Update(v)
	h.record(v)
}

// UpdateWeighted records v with a sampling weight when the reservoir
// supports weights, and like Update otherwise.
func (h *Histogram) UpdateWeighted(v int64, weight float64) error {
	if wr, ok := h.reservoir.(WeightedReservoir); ok {
		if err := wr.UpdateWeighted(v, weight); err != nil {
			return err
		}
	} else {
		h.reservoir.Update(v)
	}
	h.record(v)
	return nil
}

func (h *Histogram) record(v int64) {
	h.minmax.update(v)
	h.sum.Add(v)

	h.wmu.Lock()
	h.n++
	delta := float64(v) - h.mean
	h.mean += delta / float64(h.n)
	h.m2 += delta * (float64(v) - h.mean)
	h.wmu.Unlock()

	h.count.Add(1)
}

// Count is the number of values recorded.
func (h *Histogram) Count() int64 { return h.count.Load() }

// Min is the smallest value recorded, or 0 if there are none.
func (h *Histogram) Min() float64 {
	if h.Count() == 0 {
		return 0
	}
	return float64(h.minmax.min.Load())
}

// Max is the largest value recorded, or 0 if there are none.
func (h *Histogram) Max() float64 {
	if h.Count() == 0 {
		return 0
	}
	return float64(h.minmax.max.Load())
}

// Sum of all values recorded.
func (h *Histogram) Sum() float64 { return float64(h.sum.Load()) }

// Mean of all values recorded, or 0 if there are none.
func (h *Histogram) Mean() float64 {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	return h.mean
}

// Variance is the sample variance of all values recorded.
func (h *Histogram) Variance() float64 {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	return h.variance()
}

func (h *Histogram) variance() float64 {
	if h.n <= 1 {
		return 0
	}
	return h.m2 / float64(h.n-1)
}

// StdDev is the sample standard deviation of all values recorded.
func (h *Histogram) StdDev() float64 {
	return math.Sqrt(h.Variance())
}

// Percentiles estimates the given quantiles from the current sample.
func (h *Histogram) Percentiles(qs ...float64) []float64 {
	return h.reservoir.Snapshot().Quantiles(qs...)
}

// Sample returns a sorted copy of the current sample.
func (h *Histogram) Sample() Snapshot {
	return h.reservoir.Snapshot()
}

// Snapshot captures the aggregates and the sample.
func (h *Histogram) Snapshot() HistogramSnapshot {
	s := HistogramSnapshot{
		Count:  h.Count(),
		Min:    h.Min(),
		Max:    h.Max(),
		Sum:    h.Sum(),
		Sample: h.reservoir.Snapshot(),
	}
	h.wmu.Lock()
	s.Mean = h.mean
	s.StdDev = math.Sqrt(h.variance())
	h.wmu.Unlock()
	return s
}

// Clear resets the histogram and its reservoir.
func (h *Histogram) Clear() {
	h.wmu.Lock()
	h.n, h.mean, h.m2 = 0, 0, 0
	h.count.Store(0)
	h.sum.Store(0)
	h.minmax.reset()
	h.reservoir.Clear()
	h.wmu.Unlock()
}

// HistogramSnapshot is a point in time copy of a histogram's state.
type HistogramSnapshot struct {
	Count  int64
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	Sum    float64
	Sample Snapshot

	// divisor applied to sample quantiles, 0 meaning 1
	unit float64
}

// Percentiles estimates quantiles from the captured sample.
func (s HistogramSnapshot) Percentiles(qs ...float64) []float64 {
	ps := s.Sample.Quantiles(qs...)
	if s.unit != 0 {
		for i := range ps {
			ps[i] /= s.unit
		}
	}
	return ps
}

// scaled returns the snapshot with every statistic except the count divided
// by unit. Timers record nanoseconds and report in their duration unit.
func (s HistogramSnapshot) scaled(unit float64) HistogramSnapshot {
	s.Min /= unit
	s.Max /= unit
	s.Mean /= unit
	s.StdDev /= unit
	s.Sum /= unit
	s.unit = unit
	return s
}
