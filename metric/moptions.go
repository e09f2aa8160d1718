package metric

import (
	"math/rand"
	"time"
)

// MConfig holds configuration state for metrics created by a Registry or by
// the New* constructors.
// This is an internal type.
type MConfig struct {
	now          func() time.Time
	reservoir    func(cfg *MConfig) Reservoir
	seed         *int64
	durationUnit time.Duration
	rateUnit     time.Duration
}

// MOption is a function manipulating configuration state for metrics.
// Options given to NewRegistry become defaults for every metric it creates;
// options given to a single Registry call are applied on top of those.
type MOption func(*MConfig)

func defaultMConfig() MConfig {
	return MConfig{
		now:          time.Now,
		reservoir:    func(cfg *MConfig) Reservoir { return NewExpDecayReservoir(DefaultSampleSize, DefaultAlpha, cfg.own()...) },
		durationUnit: time.Millisecond,
		rateUnit:     time.Second,
	}
}

func newMConfig(base *MConfig, opts ...MOption) *MConfig {
	var cfg MConfig
	if base != nil {
		cfg = *base
	} else {
		cfg = defaultMConfig()
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &cfg
}

// own returns the options reproducing the clock and seed of cfg, for
// handing down to reservoirs.
func (cfg *MConfig) own() []MOption {
	opts := []MOption{WithClock(cfg.now)}
	if cfg.seed != nil {
		opts = append(opts, WithSeed(*cfg.seed))
	}
	return opts
}

func (cfg *MConfig) rand() *rand.Rand {
	if cfg.seed != nil {
		return rand.New(rand.NewSource(*cfg.seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// WithClock replaces the wall clock used for rates, decay and elapsed time.
func WithClock(now func() time.Time) MOption {
	return MOption(func(m *MConfig) {
		if now != nil {
			m.now = now
		}
	})
}

// WithSeed makes the random choices of reservoirs reproducible. Every
// reservoir gets its own source seeded with the value.
func WithSeed(seed int64) MOption {
	return MOption(func(m *MConfig) {
		m.seed = &seed
	})
}

// WithReservoir sets the reservoir factory used by histograms and timers.
func WithReservoir(f func() Reservoir) MOption {
	return MOption(func(m *MConfig) {
		if f != nil {
			m.reservoir = func(*MConfig) Reservoir { return f() }
		}
	})
}

// Uniform makes histograms and timers use a uniform reservoir of the given size.
func Uniform(size int) MOption {
	return MOption(func(m *MConfig) {
		m.reservoir = func(cfg *MConfig) Reservoir { return NewUniformReservoir(size, cfg.own()...) }
	})
}

// ExpDecay makes histograms and timers use a forward decaying reservoir.
func ExpDecay(size int, alpha float64) MOption {
	return MOption(func(m *MConfig) {
		m.reservoir = func(cfg *MConfig) Reservoir { return NewExpDecayReservoir(size, alpha, cfg.own()...) }
	})
}

// VarOpt makes histograms and timers use a weighted variance optimal reservoir.
func VarOpt(size int) MOption {
	return MOption(func(m *MConfig) {
		m.reservoir = func(cfg *MConfig) Reservoir { return NewVarOptReservoir(size, cfg.own()...) }
	})
}

// DurationUnit sets the unit timers report durations in. Default is milliseconds.
func DurationUnit(d time.Duration) MOption {
	return MOption(func(m *MConfig) {
		if d > 0 {
			m.durationUnit = d
		}
	})
}

// RateUnit sets the unit meters and timers report rates in. Default is per second.
func RateUnit(d time.Duration) MOption {
	return MOption(func(m *MConfig) {
		if d > 0 {
			m.rateUnit = d
		}
	})
}
