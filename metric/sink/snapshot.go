package sink

import (
	"github.com/Hitta/metrics/metric"
)

// Quantiles are the percentiles reported by the console and graphite sinks:
// median, 75%, 95%, 98%, 99% and 99.9%.
var Quantiles = []float64{0.5, 0.75, 0.95, 0.98, 0.99, 0.999}

// Distribution reads the distribution part of a histogram or timer. Timer
// values are in the timer's duration unit.
func Distribution(m metric.Metric) (metric.HistogramSnapshot, bool) {
	switch v := m.(type) {
	case *metric.Histogram:
		return v.Snapshot(), true
	case *metric.Timer:
		return v.Snapshot().Durations, true
	}
	return metric.HistogramSnapshot{}, false
}

// Rates reads the rate part of a meter or timer.
func Rates(m metric.Metric) (metric.MeterSnapshot, bool) {
	switch v := m.(type) {
	case *metric.Meter:
		return v.Snapshot(), true
	case *metric.Timer:
		return v.Snapshot().Rates, true
	}
	return metric.MeterSnapshot{}, false
}
