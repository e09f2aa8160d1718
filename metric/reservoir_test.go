package metric_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hitta/metrics/metric"
)

func TestUniformReservoirKeepsEverythingBelowCapacity(t *testing.T) {
	r := metric.NewUniformReservoir(100)
	for i := int64(0); i < 50; i++ {
		r.Update(i)
	}
	assert.Equal(t, 50, r.Size())
	assert.Equal(t, int64(50), r.Count())
	assert.Equal(t, int64(0), r.Snapshot().Values()[0])

	r.Clear()
	assert.Equal(t, 0, r.Size())
	assert.Equal(t, int64(0), r.Count())
}

// Every one of N values should be retained with probability C/N, whatever
// its position in the stream.
func TestUniformReservoirRetentionIsUniform(t *testing.T) {
	const (
		capacity = 100
		n        = 1000
		trials   = 500
		buckets  = 10
	)
	var retained [buckets]int
	for trial := 0; trial < trials; trial++ {
		r := metric.NewUniformReservoir(capacity, metric.WithSeed(int64(trial)))
		for i := int64(0); i < n; i++ {
			r.Update(i)
		}
		require.Equal(t, capacity, r.Size())
		for _, v := range r.Snapshot().Values() {
			retained[v*buckets/n]++
		}
	}

	want := float64(capacity) / n
	for b, count := range retained {
		got := float64(count) / float64(trials*n/buckets)
		assert.InDelta(t, want, got, 0.01, "bucket %d", b)
	}
}

func TestExpDecayReservoirIsBounded(t *testing.T) {
	r := metric.NewExpDecayReservoir(100, 0.99)
	for i := int64(0); i < 1000; i++ {
		r.Update(i)
	}
	assert.Equal(t, 100, r.Size())
	assert.Equal(t, int64(1000), r.Count())
	for _, v := range r.Snapshot().Values() {
		assert.True(t, v >= 0 && v < 1000)
	}
}

func TestExpDecayReservoirFavoursRecentValues(t *testing.T) {
	clock := newFakeClock()
	r := metric.NewExpDecayReservoir(100, metric.DefaultAlpha, metric.WithClock(clock.Now), metric.WithSeed(1))

	for i := 0; i < 1000; i++ {
		r.Update(0)
	}
	clock.Add(10 * time.Minute)
	for i := 0; i < 1000; i++ {
		r.Update(1)
	}

	recent := 0
	for _, v := range r.Snapshot().Values() {
		recent += int(v)
	}
	assert.GreaterOrEqual(t, recent, 95)
}

func TestExpDecayReservoirRescales(t *testing.T) {
	clock := newFakeClock()
	r := metric.NewExpDecayReservoir(100, metric.DefaultAlpha, metric.WithClock(clock.Now), metric.WithSeed(1))

	for i := int64(0); i < 10; i++ {
		r.Update(i)
	}
	// 15 hours without a rescale would overflow exp(alpha*t)
	for h := 0; h < 15; h++ {
		clock.Add(time.Hour + time.Minute)
		r.Update(100 + int64(h))
	}

	values, weights := r.Weights()
	assert.Len(t, values, 25)
	for i, w := range weights {
		assert.False(t, math.IsInf(w, 0) || math.IsNaN(w), "weight %d is %v", i, w)
	}
	assert.Equal(t, int64(25), r.Count())
}

func TestVarOptReservoir(t *testing.T) {
	r := metric.NewVarOptReservoir(50, metric.WithSeed(3))
	for i := int64(0); i < 500; i++ {
		r.Update(i)
	}
	assert.Equal(t, 50, r.Size())
	assert.Equal(t, int64(500), r.Count())

	require.Error(t, r.UpdateWeighted(1, 0))
	require.Error(t, r.UpdateWeighted(1, math.Inf(1)))
	assert.Equal(t, int64(500), r.Count())

	require.NoError(t, r.UpdateWeighted(7, 10))
	r.Clear()
	assert.Equal(t, 0, r.Size())
}
