package metric

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"
	"time"
)

// DefaultAlpha biases the decaying reservoir toward roughly the last five
// minutes of values.
const DefaultAlpha = 0.015

// DefaultRescaleThreshold is how often the decaying reservoir moves its
// landmark forward and rescales the retained priorities.
const DefaultRescaleThreshold = time.Hour

// ExpDecayReservoir keeps a sample biased toward recent values using forward
// decay priority sampling. Each value gets the priority
// exp(alpha*(t-t0)) / u, u uniform in (0,1], and only the size highest
// priorities are retained.
//
// http://dimacs.rutgers.edu/~graham/pubs/papers/fwddecay.pdf
type ExpDecayReservoir struct {
	mu          sync.Mutex
	alpha       float64
	size        int
	count       int64
	now         func() time.Time
	rnd         *rand.Rand
	t0          time.Time
	nextRescale time.Time
	threshold   time.Duration
	samples     decayHeap
}

// NewExpDecayReservoir returns a decaying reservoir holding at most size
// values, decaying with the given alpha.
func NewExpDecayReservoir(size int, alpha float64, opts ...MOption) *ExpDecayReservoir {
	if size <= 0 {
		size = DefaultSampleSize
	}
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	cfg := newMConfig(nil, opts...)
	r := &ExpDecayReservoir{
		alpha:     alpha,
		size:      size,
		now:       cfg.now,
		rnd:       cfg.rand(),
		threshold: DefaultRescaleThreshold,
		samples:   make(decayHeap, 0, size),
	}
	r.t0 = r.now()
	r.nextRescale = r.t0.Add(r.threshold)
	return r
}

// SetRescaleThreshold changes how often priorities are rescaled. It only
// affects the next landmark reset.
func (r *ExpDecayReservoir) SetRescaleThreshold(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.threshold = d
	r.nextRescale = r.t0.Add(d)
	r.mu.Unlock()
}

func (r *ExpDecayReservoir) Update(v int64) {
	r.update(r.now(), v)
}

func (r *ExpDecayReservoir) update(t time.Time, v int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !t.Before(r.nextRescale) {
		r.rescale(t)
	}
	r.count++

	w := math.Exp(r.alpha * t.Sub(r.t0).Seconds())
	// Float64 is in [0,1); flip it so the draw is never zero.
	u := 1 - r.rnd.Float64()
	s := decaySample{priority: w / u, weight: w, value: v}

	if len(r.samples) < r.size {
		heap.Push(&r.samples, s)
		return
	}
	if s.priority > r.samples[0].priority {
		r.samples[0] = s
		heap.Fix(&r.samples, 0)
	}
}

// rescale moves the landmark to t. Scaling every priority by the same factor
// keeps the heap order intact.
func (r *ExpDecayReservoir) rescale(t time.Time) {
	factor := math.Exp(-r.alpha * t.Sub(r.t0).Seconds())
	r.t0 = t
	r.nextRescale = t.Add(r.threshold)
	for i := range r.samples {
		r.samples[i].priority *= factor
		r.samples[i].weight *= factor
	}
}

func (r *ExpDecayReservoir) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *ExpDecayReservoir) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func (r *ExpDecayReservoir) Snapshot() Snapshot {
	r.mu.Lock()
	values := make([]int64, len(r.samples))
	for i, s := range r.samples {
		values[i] = s.value
	}
	r.mu.Unlock()
	return snapshotOf(values)
}

// Weights returns the retained values and their current decay weights,
// relative to the latest landmark.
func (r *ExpDecayReservoir) Weights() (values []int64, weights []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	values = make([]int64, len(r.samples))
	weights = make([]float64, len(r.samples))
	for i, s := range r.samples {
		values[i] = s.value
		weights[i] = s.weight
	}
	return values, weights
}

func (r *ExpDecayReservoir) Clear() {
	r.mu.Lock()
	r.count = 0
	r.samples = r.samples[:0]
	r.t0 = r.now()
	r.nextRescale = r.t0.Add(r.threshold)
	r.mu.Unlock()
}

type decaySample struct {
	priority float64
	weight   float64
	value    int64
}

// decayHeap is a min-heap on priority.
type decayHeap []decaySample

func (h decayHeap) Len() int           { return len(h) }
func (h decayHeap) Less(i, j int) bool { return h[i].priority < h[j].priority }
func (h decayHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *decayHeap) Push(x any) { *h = append(*h, x.(decaySample)) }

func (h *decayHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	*h = old[:n-1]
	return s
}
