package metric

import (
	"math/rand"
	"sync"
)

// DefaultSampleSize is the reservoir capacity used when none is configured.
// With the default alpha it gives 99.9% confidence of a 5% margin of error,
// assuming a normal distribution.
const DefaultSampleSize = 1028

// Reservoir is a bounded-memory sample of a stream of values.
type Reservoir interface {
	// Update offers a value to the sample.
	Update(v int64)
	// Count is the number of values offered since creation or Clear.
	Count() int64
	// Size is the number of values currently retained.
	Size() int
	// Snapshot returns a sorted copy of the retained values.
	Snapshot() Snapshot
	// Clear empties the reservoir.
	Clear()
}

// WeightedReservoir is implemented by reservoirs which can take an explicit
// weight per value.
type WeightedReservoir interface {
	Reservoir
	UpdateWeighted(v int64, weight float64) error
}

// UniformReservoir keeps a uniform random sample of everything it has been
// offered: after n updates each value is retained with probability size/n.
type UniformReservoir struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	count  int64
	values []int64
}

// NewUniformReservoir returns a uniform reservoir holding at most size values.
func NewUniformReservoir(size int, opts ...MOption) *UniformReservoir {
	if size <= 0 {
		size = DefaultSampleSize
	}
	cfg := newMConfig(nil, opts...)
	return &UniformReservoir{
		rnd:    cfg.rand(),
		values: make([]int64, 0, size),
	}
}

func (r *UniformReservoir) Update(v int64) {
	r.mu.Lock()
	r.count++
	if len(r.values) < cap(r.values) {
		r.values = append(r.values, v)
	} else if i := r.rnd.Int63n(r.count); i < int64(len(r.values)) {
		r.values[i] = v
	}
	r.mu.Unlock()
}

func (r *UniformReservoir) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *UniformReservoir) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

func (r *UniformReservoir) Snapshot() Snapshot {
	r.mu.Lock()
	values := append([]int64(nil), r.values...)
	r.mu.Unlock()
	return snapshotOf(values)
}

func (r *UniformReservoir) Clear() {
	r.mu.Lock()
	r.count = 0
	r.values = r.values[:0]
	r.mu.Unlock()
}
