package metric

import (
	"fmt"
)

// A Gauge has no state of its own. Every read invokes the callback it was
// created with, so the value is never stale. The callback should be cheap
// and free of side effects since reporters call it once per run.
type Gauge struct {
	fn func() (any, error)
}

// GaugeFunc creates a Gauge from a callback which cannot fail.
func GaugeFunc[T any](fn func() T) *Gauge {
	return &Gauge{fn: func() (any, error) {
		return fn(), nil
	}}
}

// GaugeFuncErr creates a Gauge from a callback which may fail. The error is
// returned from Value.
func GaugeFuncErr[T any](fn func() (T, error)) *Gauge {
	return &Gauge{fn: func() (any, error) {
		v, err := fn()
		if err != nil {
			return nil, err
		}
		return v, nil
	}}
}

func (g *Gauge) Kind() Kind { return KindGauge }

func (g *Gauge) Render(r Renderer, ctx any) error { return r.RenderGauge(g, ctx) }

func (*Gauge) metric() {}

// Value invokes the callback. A panic in the callback is returned as an
// error wrapping ErrGaugePanic.
func (g *Gauge) Value() (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			v = nil
			err = fmt.Errorf("%w: %v", ErrGaugePanic, p)
		}
	}()
	return g.fn()
}

// Float64 reads the gauge and converts numeric values to float64.
// ok is false for non-numeric values.
func (g *Gauge) Float64() (f float64, ok bool, err error) {
	v, err := g.Value()
	if err != nil {
		return 0, false, err
	}
	f, ok = toFloat64(v)
	return f, ok, nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case uint:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	case int16:
		return float64(n), true
	case uint16:
		return float64(n), true
	case int8:
		return float64(n), true
	case uint8:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
