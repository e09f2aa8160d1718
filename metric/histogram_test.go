package metric_test

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hitta/metrics/metric"
)

func TestHistogramOneToHundred(t *testing.T) {
	h := metric.NewHistogram(metric.NewUniformReservoir(100))
	for i := int64(1); i <= 100; i++ {
		h.Update(i)
	}

	assert.Equal(t, int64(100), h.Count())
	assert.Equal(t, 1.0, h.Min())
	assert.Equal(t, 100.0, h.Max())
	assert.Equal(t, 5050.0, h.Sum())
	assert.InDelta(t, 50.5, h.Mean(), 1e-9)
	// sample variance of 1..100 is 101*100/12
	assert.InDelta(t, 841.6666667, h.Variance(), 1e-6)
	assert.InDelta(t, math.Sqrt(841.6666667), h.StdDev(), 1e-6)

	ps := h.Percentiles(0.5, 0.99)
	assert.InDelta(t, 50, ps[0], 1)
	assert.InDelta(t, 99, ps[1], 1)
}

func TestHistogramEmpty(t *testing.T) {
	h := metric.NewHistogram(metric.NewUniformReservoir(10))
	assert.Equal(t, int64(0), h.Count())
	assert.Equal(t, 0.0, h.Min())
	assert.Equal(t, 0.0, h.Max())
	assert.Equal(t, 0.0, h.Mean())
	assert.Equal(t, 0.0, h.StdDev())
	assert.Equal(t, []float64{0}, h.Percentiles(0.5))
}

func TestHistogramNegativeValues(t *testing.T) {
	h := metric.NewHistogram(metric.NewUniformReservoir(10))
	h.Update(-5)
	h.Update(3)
	assert.Equal(t, -5.0, h.Min())
	assert.Equal(t, 3.0, h.Max())
	assert.Equal(t, -1.0, h.Mean())
}

func TestHistogramAggregatesAreNotSampleLimited(t *testing.T) {
	h := metric.NewHistogram(metric.NewUniformReservoir(10))
	for i := int64(1); i <= 1000; i++ {
		h.Update(i)
	}
	assert.Equal(t, int64(1000), h.Count())
	assert.Equal(t, 1.0, h.Min())
	assert.Equal(t, 1000.0, h.Max())
	assert.InDelta(t, 500.5, h.Mean(), 1e-9)
	assert.Equal(t, 10, h.Sample().Size())
}

func TestHistogramConcurrentUpdates(t *testing.T) {
	h := metric.NewHistogram(metric.NewExpDecayReservoir(100, metric.DefaultAlpha))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				h.Update(int64(g*1000 + i))
			}
		}(g)
	}
	wg.Wait()

	s := h.Snapshot()
	assert.Equal(t, int64(8000), s.Count)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 7999.0, s.Max)
	assert.InDelta(t, 3999.5, s.Mean, 1e-6)
	assert.Equal(t, 100, s.Sample.Size())
}

func TestHistogramWeightedUpdate(t *testing.T) {
	h := metric.NewHistogram(metric.NewVarOptReservoir(10))
	require.NoError(t, h.UpdateWeighted(4, 2))
	require.Error(t, h.UpdateWeighted(5, -1))
	assert.Equal(t, int64(1), h.Count())

	// falls back to Update on unweighted reservoirs
	u := metric.NewHistogram(metric.NewUniformReservoir(10))
	require.NoError(t, u.UpdateWeighted(4, 2))
	assert.Equal(t, int64(1), u.Count())
}

func TestHistogramClear(t *testing.T) {
	h := metric.NewHistogram(metric.NewUniformReservoir(10))
	h.Update(10)
	h.Update(20)
	h.Clear()
	assert.Equal(t, int64(0), h.Count())
	assert.Equal(t, 0.0, h.Max())
	assert.Equal(t, 0, h.Sample().Size())

	h.Update(3)
	assert.Equal(t, 3.0, h.Min())
	assert.Equal(t, 3.0, h.Max())
}
