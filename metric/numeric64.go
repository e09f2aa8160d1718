package metric

import (
	"math"
	"sync/atomic"
)

// atomicFloat64 stores a float64 as its bit pattern so it can be read and
// written without locks. Used for decayed rates, which are written by the
// ticking goroutine and read by everybody else.
type atomicFloat64 struct {
	v atomic.Uint64
}

func (f *atomicFloat64) load() float64 { return math.Float64frombits(f.v.Load()) }

func (f *atomicFloat64) store(v float64) { f.v.Store(math.Float64bits(v)) }

// atomicMinMax keeps a running minimum and maximum with compare-and-swap
// loops. It must be reset before use so the bounds start at the extremes.
type atomicMinMax struct {
	min atomic.Int64
	max atomic.Int64
}

func (m *atomicMinMax) update(v int64) {
	for {
		cur := m.min.Load()
		if v >= cur || m.min.CompareAndSwap(cur, v) {
			break
		}
	}
	for {
		cur := m.max.Load()
		if v <= cur || m.max.CompareAndSwap(cur, v) {
			break
		}
	}
}

func (m *atomicMinMax) reset() {
	m.min.Store(math.MaxInt64)
	m.max.Store(math.MinInt64)
}
