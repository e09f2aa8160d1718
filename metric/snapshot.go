package metric

import (
	"math"
	"slices"
)

// Snapshot is an immutable, sorted copy of the values held by a Reservoir.
type Snapshot struct {
	values []int64
}

// NewSnapshot copies and sorts values.
func NewSnapshot(values []int64) Snapshot {
	s := slices.Clone(values)
	slices.Sort(s)
	return Snapshot{values: s}
}

// snapshotOf sorts values in place and takes ownership of them.
func snapshotOf(values []int64) Snapshot {
	slices.Sort(values)
	return Snapshot{values: values}
}

// Size is the number of values in the snapshot.
func (s Snapshot) Size() int { return len(s.values) }

// Values returns a copy of the sorted values.
func (s Snapshot) Values() []int64 { return slices.Clone(s.values) }

// Quantile returns the value at quantile q, interpolating linearly between
// the two closest order statistics around index q*(N-1). An empty snapshot
// yields 0. q is clamped to [0,1].
func (s Snapshot) Quantile(q float64) float64 {
	n := len(s.values)
	if n == 0 {
		return 0
	}
	if math.IsNaN(q) {
		return math.NaN()
	}
	q = math.Max(0, math.Min(1, q))
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return float64(s.values[lo])
	}
	frac := pos - float64(lo)
	a, b := float64(s.values[lo]), float64(s.values[hi])
	return a + frac*(b-a)
}

// Quantiles returns Quantile for each of qs.
func (s Snapshot) Quantiles(qs ...float64) []float64 {
	out := make([]float64, len(qs))
	for i, q := range qs {
		out[i] = s.Quantile(q)
	}
	return out
}

// Median is Quantile(0.5).
func (s Snapshot) Median() float64 { return s.Quantile(0.5) }
