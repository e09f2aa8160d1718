package metric

import (
	"fmt"
	"time"
)

// Kind tags the variant of a Metric.
type Kind int

// The closed set of metric kinds.
const (
	KindCounter Kind = iota + 1
	KindGauge
	KindHistogram
	KindMeter
	KindTimer
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindHistogram:
		return "histogram"
	case KindMeter:
		return "meter"
	case KindTimer:
		return "timer"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Metric is implemented by *Counter, *Gauge, *Histogram, *Meter and *Timer
// only. The unexported method keeps the set closed, so a type switch over
// those five is exhaustive.
type Metric interface {
	Kind() Kind
	// Render calls the Renderer method matching the metric kind.
	Render(r Renderer, ctx any) error
	metric()
}

// Metered is the rate reading shared by meters and timers.
type Metered interface {
	Metric
	Count() int64
	EventType() string
	RateUnit() time.Duration
	MeanRate() float64
	OneMinuteRate() float64
	FiveMinuteRate() float64
	FifteenMinuteRate() float64
}

// Sampling is the distribution reading shared by histograms and timers.
// Timers report their values in their duration unit.
type Sampling interface {
	Metric
	Count() int64
	Min() float64
	Max() float64
	Mean() float64
	StdDev() float64
	Percentiles(qs ...float64) []float64
}

var (
	_ Metered  = (*Meter)(nil)
	_ Metered  = (*Timer)(nil)
	_ Sampling = (*Histogram)(nil)
	_ Sampling = (*Timer)(nil)
)

// UnitAbbrev is the short form of a time unit used by text reporters.
func UnitAbbrev(d time.Duration) string {
	switch d {
	case time.Nanosecond:
		return "ns"
	case time.Microsecond:
		return "us"
	case time.Millisecond:
		return "ms"
	case time.Second:
		return "s"
	case time.Minute:
		return "m"
	case time.Hour:
		return "h"
	case 24 * time.Hour:
		return "d"
	}
	return d.String()
}
