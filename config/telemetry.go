package config

import (
	"errors"
	"fmt"
	"time"
)

// Telemetry is the configuration of the metricsd daemon.
type Telemetry struct {
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Console    Console    `mapstructure:"console"`
	CSV        CSV        `mapstructure:"csv"`
	Graphite   Graphite   `mapstructure:"graphite"`
	Statsd     Statsd     `mapstructure:"statsd"`
	Prometheus Prometheus `mapstructure:"prometheus"`
	Histogram  Histogram  `mapstructure:"histogram"`
}

type Console struct {
	Enabled bool          `mapstructure:"enabled"`
	Period  time.Duration `mapstructure:"period"`
	// "stdout" or "stderr"
	Output string `mapstructure:"output"`
}

type CSV struct {
	Enabled bool          `mapstructure:"enabled"`
	Period  time.Duration `mapstructure:"period"`
	Dir     string        `mapstructure:"dir"`
}

type Graphite struct {
	Enabled        bool          `mapstructure:"enabled"`
	Period         time.Duration `mapstructure:"period"`
	Addr           string        `mapstructure:"addr"`
	Prefix         string        `mapstructure:"prefix"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RuntimeMetrics bool          `mapstructure:"runtime_metrics"`
}

type Statsd struct {
	Enabled bool          `mapstructure:"enabled"`
	Period  time.Duration `mapstructure:"period"`
	Addr    string        `mapstructure:"addr"`
	Prefix  string        `mapstructure:"prefix"`
	Buffer  int           `mapstructure:"buffer"`
}

type Prometheus struct {
	Enabled   bool   `mapstructure:"enabled"`
	Listen    string `mapstructure:"listen"`
	Namespace string `mapstructure:"namespace"`
}

// Histogram selects the reservoir of histograms and timers.
type Histogram struct {
	// "exp_decay", "uniform" or "varopt"
	Reservoir string  `mapstructure:"reservoir"`
	Size      int     `mapstructure:"size"`
	Alpha     float64 `mapstructure:"alpha"`
}

// EnvPrefixDefault is the prefix of the environment variables read by
// BindTelemetryEnv.
const EnvPrefixDefault = "METRICSD"

var telemetryDefaults = map[string]interface{}{
	"log.level":                "info",
	"shutdown_timeout":         5 * time.Second,
	"console.enabled":          false,
	"console.period":           time.Minute,
	"console.output":           "stdout",
	"csv.enabled":              false,
	"csv.period":               time.Minute,
	"csv.dir":                  ".",
	"graphite.enabled":         false,
	"graphite.period":          time.Minute,
	"graphite.addr":            "localhost:2003",
	"graphite.prefix":          "",
	"graphite.timeout":         5 * time.Second,
	"graphite.runtime_metrics": true,
	"statsd.enabled":           false,
	"statsd.period":            10 * time.Second,
	"statsd.addr":              "localhost:8125",
	"statsd.prefix":            "",
	"statsd.buffer":            1432,
	"prometheus.enabled":       false,
	"prometheus.listen":        ":9102",
	"prometheus.namespace":     "",
	"histogram.reservoir":      "exp_decay",
	"histogram.size":           1028,
	"histogram.alpha":          0.015,
}

var telemetryUsage = map[string]string{
	"log.level":                "debug, info, notice, warn or error",
	"shutdown_timeout":         "how long reporters may take to flush on exit",
	"console.enabled":          "print reports on the console",
	"console.period":           "console report period",
	"console.output":           "stdout or stderr",
	"csv.enabled":              "append reports to one csv file per metric",
	"csv.period":               "csv report period",
	"csv.dir":                  "directory of the csv files",
	"graphite.enabled":         "send reports to graphite",
	"graphite.period":          "graphite report period",
	"graphite.addr":            "graphite plaintext address",
	"graphite.prefix":          "prefix of every graphite name",
	"graphite.timeout":         "graphite dial and write timeout",
	"graphite.runtime_metrics": "send Go runtime statistics to graphite",
	"statsd.enabled":           "send reports to statsd",
	"statsd.period":            "statsd report period",
	"statsd.addr":              "statsd UDP address",
	"statsd.prefix":            "prefix of every statsd name",
	"statsd.buffer":            "statsd datagram size",
	"prometheus.enabled":       "serve /metrics for prometheus",
	"prometheus.listen":        "listen address of /metrics",
	"prometheus.namespace":     "namespace of the prometheus names",
	"histogram.reservoir":      "exp_decay, uniform or varopt",
	"histogram.size":           "number of values a reservoir keeps",
	"histogram.alpha":          "decay factor of the exp_decay reservoir",
}

// TelemetryKeys returns every key of Telemetry.
func TelemetryKeys() []string {
	keys := make([]string, 0, len(telemetryDefaults))
	for k := range telemetryDefaults {
		keys = append(keys, k)
	}
	return keys
}

// SetTelemetryDefaults registers the defaults of every Telemetry key.
func SetTelemetryDefaults(l *Loader) {
	for k, v := range telemetryDefaults {
		l.SetDefault(k, v)
	}
}

// BindTelemetryEnv binds every Telemetry key to its environment variable,
// like METRICSD_GRAPHITE_ADDR for "graphite.addr" with the default prefix.
func BindTelemetryEnv(l *Loader) error {
	for k := range telemetryDefaults {
		if err := l.BindEnv(k); err != nil {
			return err
		}
	}
	return nil
}

// LoadTelemetry loads the sources of l and decodes them.
func LoadTelemetry(l *Loader) (Telemetry, error) {
	var t Telemetry
	if err := l.Load(); err != nil {
		return t, err
	}
	if err := l.Unmarshal(&t); err != nil {
		return t, err
	}
	return t, t.Validate()
}

// Validate checks the values decoding cannot.
func (t Telemetry) Validate() error {
	var errs []error
	period := func(name string, enabled bool, d time.Duration) {
		if enabled && d <= 0 {
			errs = append(errs, fmt.Errorf("%s.period must be positive, got %s", name, d))
		}
	}
	period("console", t.Console.Enabled, t.Console.Period)
	period("csv", t.CSV.Enabled, t.CSV.Period)
	period("graphite", t.Graphite.Enabled, t.Graphite.Period)
	period("statsd", t.Statsd.Enabled, t.Statsd.Period)

	switch t.Console.Output {
	case "stdout", "stderr":
	default:
		errs = append(errs, fmt.Errorf("console.output must be stdout or stderr, got %q", t.Console.Output))
	}
	switch t.Histogram.Reservoir {
	case "exp_decay", "uniform", "varopt":
	default:
		errs = append(errs, fmt.Errorf("unknown histogram.reservoir %q", t.Histogram.Reservoir))
	}
	if t.Histogram.Size <= 0 {
		errs = append(errs, fmt.Errorf("histogram.size must be positive, got %d", t.Histogram.Size))
	}
	if t.Histogram.Reservoir == "exp_decay" && t.Histogram.Alpha <= 0 {
		errs = append(errs, fmt.Errorf("histogram.alpha must be positive, got %g", t.Histogram.Alpha))
	}
	return errors.Join(errs...)
}
