package metric

import (
	"time"
)

// Meter measures the rate of events: the mean rate since creation and the
// 1, 5 and 15 minute moving averages, reported per rate unit.
type Meter struct {
	rate      *RateEstimator
	eventType string
	rateUnit  time.Duration
}

// NewMeter returns an unregistered Meter. The event type is a label for what
// is counted, like "requests".
func NewMeter(eventType string, opts ...MOption) *Meter {
	return newMeter(eventType, newMConfig(nil, opts...))
}

func newMeter(eventType string, cfg *MConfig) *Meter {
	return &Meter{
		rate:      newRateEstimator(cfg.now),
		eventType: eventType,
		rateUnit:  cfg.rateUnit,
	}
}

func (m *Meter) Kind() Kind { return KindMeter }

func (m *Meter) Render(r Renderer, ctx any) error { return r.RenderMeter(m, ctx) }

func (*Meter) metric() {}

// Mark records n events.
func (m *Meter) Mark(n int64) { m.rate.Mark(n) }

func (m *Meter) Count() int64 { return m.rate.Count() }

func (m *Meter) EventType() string { return m.eventType }

func (m *Meter) RateUnit() time.Duration { return m.rateUnit }

func (m *Meter) MeanRate() float64 { return m.perUnit(m.rate.MeanRate()) }

func (m *Meter) OneMinuteRate() float64 { return m.perUnit(m.rate.OneMinuteRate()) }

func (m *Meter) FiveMinuteRate() float64 { return m.perUnit(m.rate.FiveMinuteRate()) }

func (m *Meter) FifteenMinuteRate() float64 { return m.perUnit(m.rate.FifteenMinuteRate()) }

func (m *Meter) perUnit(perSecond float64) float64 {
	return perSecond * m.rateUnit.Seconds()
}

// Snapshot reads the count and every rate.
func (m *Meter) Snapshot() MeterSnapshot {
	return meterSnapshot(m.rate, m.eventType, m.rateUnit)
}

func meterSnapshot(e *RateEstimator, eventType string, unit time.Duration) MeterSnapshot {
	count := e.Count()
	m1, m5, m15, mean := e.Rates()
	s := unit.Seconds()
	return MeterSnapshot{
		Count:     count,
		Rate1:     m1 * s,
		Rate5:     m5 * s,
		Rate15:    m15 * s,
		RateMean:  mean * s,
		EventType: eventType,
		RateUnit:  unit,
	}
}

// MeterSnapshot is a point in time reading of a meter, with rates per RateUnit.
type MeterSnapshot struct {
	Count     int64
	Rate1     float64
	Rate5     float64
	Rate15    float64
	RateMean  float64
	EventType string
	RateUnit  time.Duration
}
