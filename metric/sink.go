package metric

import "fmt"

// Renderer is implemented by sinks. Every reporter run walks the registry
// and calls Render for each metric, which ends up in exactly one of these
// methods. The ctx value is whatever the reporter passed to Render, typically
// a struct carrying the run's shared timestamp and the metric's name.
//
// Adding a metric kind adds a method here, so every sink stops compiling
// until it knows how to format the new kind.
type Renderer interface {
	RenderCounter(c *Counter, ctx any) error
	RenderGauge(g *Gauge, ctx any) error
	RenderHistogram(h *Histogram, ctx any) error
	RenderMeter(m *Meter, ctx any) error
	RenderTimer(t *Timer, ctx any) error
}

// Render dispatches m to the Renderer method of its kind.
func Render(m Metric, r Renderer, ctx any) error {
	switch v := m.(type) {
	case *Counter:
		return r.RenderCounter(v, ctx)
	case *Gauge:
		return r.RenderGauge(v, ctx)
	case *Histogram:
		return r.RenderHistogram(v, ctx)
	case *Meter:
		return r.RenderMeter(v, ctx)
	case *Timer:
		return r.RenderTimer(v, ctx)
	case nil:
		return fmt.Errorf("metric: render of nil metric")
	}
	// unreachable as long as Metric stays sealed
	panic(fmt.Sprintf("metric: unknown metric type %T", m))
}

// Predicate selects which metrics a reporter exports.
type Predicate func(name Name, m Metric) bool

// All is the Predicate accepting every metric.
func All(Name, Metric) bool { return true }

// ByKind returns a Predicate accepting only the given kinds.
func ByKind(kinds ...Kind) Predicate {
	return func(_ Name, m Metric) bool {
		for _, k := range kinds {
			if m.Kind() == k {
				return true
			}
		}
		return false
	}
}
