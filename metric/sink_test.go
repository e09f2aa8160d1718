package metric_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hitta/metrics/metric"
)

// kindRecorder remembers which render method was called with which context.
type kindRecorder struct {
	calls []string
	ctxs  []any
}

func (k *kindRecorder) record(kind string, ctx any) error {
	k.calls = append(k.calls, kind)
	k.ctxs = append(k.ctxs, ctx)
	return nil
}

func (k *kindRecorder) RenderCounter(_ *metric.Counter, ctx any) error {
	return k.record("counter", ctx)
}

func (k *kindRecorder) RenderGauge(_ *metric.Gauge, ctx any) error {
	return k.record("gauge", ctx)
}

func (k *kindRecorder) RenderHistogram(_ *metric.Histogram, ctx any) error {
	return k.record("histogram", ctx)
}

func (k *kindRecorder) RenderMeter(_ *metric.Meter, ctx any) error {
	return k.record("meter", ctx)
}

func (k *kindRecorder) RenderTimer(_ *metric.Timer, ctx any) error {
	return k.record("timer", ctx)
}

func TestRenderDispatchesByKind(t *testing.T) {
	metrics := []metric.Metric{
		metric.NewCounter(),
		metric.GaugeFunc(func() int { return 1 }),
		metric.NewHistogram(metric.NewUniformReservoir(4)),
		metric.NewMeter("events"),
		metric.NewTimer(),
	}

	var viaFunc, viaMethod kindRecorder
	for i, m := range metrics {
		require.NoError(t, metric.Render(m, &viaFunc, i))
		require.NoError(t, m.Render(&viaMethod, i))
	}

	want := []string{"counter", "gauge", "histogram", "meter", "timer"}
	assert.Equal(t, want, viaFunc.calls)
	assert.Equal(t, want, viaMethod.calls)
	assert.Equal(t, []any{0, 1, 2, 3, 4}, viaFunc.ctxs)

	for i, m := range metrics {
		assert.Equal(t, want[i], m.Kind().String())
	}
}

func TestRenderNil(t *testing.T) {
	assert.Error(t, metric.Render(nil, &kindRecorder{}, nil))
}
