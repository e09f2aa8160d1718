package metric_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Hitta/metrics/metric"
)

func TestSnapshotQuantiles(t *testing.T) {
	values := make([]int64, 0, 100)
	for i := int64(100); i >= 1; i-- {
		values = append(values, i)
	}
	s := metric.NewSnapshot(values)

	assert.Equal(t, 100, s.Size())
	assert.Equal(t, int64(1), s.Values()[0])
	assert.InDelta(t, 50.5, s.Median(), 1e-9)
	assert.InDelta(t, 1.0, s.Quantile(0), 1e-9)
	assert.InDelta(t, 100.0, s.Quantile(1), 1e-9)
	// index 0.75*99 = 74.25, between 75 and 76
	assert.InDelta(t, 75.25, s.Quantile(0.75), 1e-9)
	assert.InDelta(t, 100.0, s.Quantile(2), 1e-9)
	assert.True(t, math.IsNaN(s.Quantile(math.NaN())))

	// the input is not modified
	assert.Equal(t, int64(100), values[0])
}

func TestSnapshotEdgeCases(t *testing.T) {
	empty := metric.NewSnapshot(nil)
	assert.Equal(t, []float64{0, 0}, empty.Quantiles(0.5, 0.99))

	one := metric.NewSnapshot([]int64{42})
	assert.Equal(t, []float64{42, 42, 42}, one.Quantiles(0, 0.5, 1))
}
