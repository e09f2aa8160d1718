// Package prometheus exposes a registry to Prometheus. Instead of pushing on
// a schedule like the other sinks, the Collector reads the registry whenever
// it is scraped.
package prometheus

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Hitta/metrics/metric"
	"github.com/Hitta/metrics/metric/sink"
)

// Collector is an unchecked prometheus.Collector over a registry: the set of
// metrics is only known at collection time.
type Collector struct {
	reg       *metric.Registry
	namespace string
	pred      metric.Predicate
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for the metrics of reg accepted by pred.
// A nil pred accepts all of them.
func NewCollector(reg *metric.Registry, namespace string, pred metric.Predicate) *Collector {
	if pred == nil {
		pred = metric.All
	}
	return &Collector{reg: reg, namespace: namespace, pred: pred}
}

// Describe sends nothing, which makes the collector unchecked.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect converts every metric.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, group := range c.reg.Select(c.pred) {
		for _, e := range group.Entries {
			name := prometheus.BuildFQName(c.namespace, "", SanitizeName(e.Name.Path()))
			help := fmt.Sprintf("%s %s", e.Metric.Kind(), e.Name.Path())
			// every method reports its failures as invalid metrics
			_ = metric.Render(e.Metric, collect{ch: ch}, target{name: name, help: help})
		}
	}
}

type target struct {
	name, help string
}

func (t target) desc(suffix string) *prometheus.Desc {
	return prometheus.NewDesc(t.name+suffix, t.help, nil, nil)
}

type collect struct {
	ch chan<- prometheus.Metric
}

func (c collect) gauge(t target, suffix string, v float64) {
	c.ch <- prometheus.MustNewConstMetric(t.desc(suffix), prometheus.GaugeValue, v)
}

func (c collect) RenderCounter(m *metric.Counter, ctx any) error {
	c.gauge(ctx.(target), "_count", float64(m.Count()))
	return nil
}

func (c collect) RenderGauge(g *metric.Gauge, ctx any) error {
	t := ctx.(target)
	v, ok, err := g.Float64()
	switch {
	case err != nil:
		c.ch <- prometheus.NewInvalidMetric(t.desc(""), err)
	case ok:
		c.gauge(t, "", v)
	}
	return nil
}

func (c collect) RenderHistogram(h *metric.Histogram, ctx any) error {
	c.summary(ctx.(target), "", h.Snapshot(), 1)
	return nil
}

func (c collect) RenderMeter(m *metric.Meter, ctx any) error {
	c.rates(ctx.(target), m.Snapshot())
	return nil
}

func (c collect) RenderTimer(tm *metric.Timer, ctx any) error {
	t := ctx.(target)
	s := tm.Snapshot()
	c.summary(t, "_seconds", s.Durations, s.DurationUnit.Seconds())
	c.rates(t, s.Rates)
	return nil
}

// summary sends a distribution, multiplying its values by scale.
func (c collect) summary(t target, suffix string, s metric.HistogramSnapshot, scale float64) {
	qs := make(map[float64]float64, len(sink.Quantiles))
	for i, v := range s.Percentiles(sink.Quantiles...) {
		qs[sink.Quantiles[i]] = v * scale
	}
	m, err := prometheus.NewConstSummary(t.desc(suffix), uint64(s.Count), s.Sum*scale, qs)
	if err != nil {
		m = prometheus.NewInvalidMetric(t.desc(suffix), err)
	}
	c.ch <- m
}

func (c collect) rates(t target, s metric.MeterSnapshot) {
	c.ch <- prometheus.MustNewConstMetric(t.desc("_total"), prometheus.CounterValue, float64(s.Count))
	c.gauge(t, "_rate1m", s.Rate1)
	c.gauge(t, "_rate5m", s.Rate5)
	c.gauge(t, "_rate15m", s.Rate15)
	c.gauge(t, "_rate_mean", s.RateMean)
}

// SanitizeName maps a dotted path to a valid Prometheus metric name.
func SanitizeName(path string) string {
	var b strings.Builder
	for i, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
