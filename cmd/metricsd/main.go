// Command metricsd keeps a metric registry, reports it through the sinks
// enabled in its configuration and reloads that configuration on SIGHUP.
//
// Usage:
//
//	metricsd -c /etc/metricsd.yaml [--watch] [--demo-workers 4]
//
// Every configuration key can also be given as an environment variable with
// the METRICSD_ prefix (METRICSD_GRAPHITE_ADDR) or as a flag (--graphite.addr).
// Flags win over the environment, which wins over the files.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/Hitta/metrics/config"
	"github.com/Hitta/metrics/internal/daemon"
	"github.com/Hitta/metrics/internal/logging"
	"github.com/Hitta/metrics/metric"
	"github.com/Hitta/metrics/signals"
)

type options struct {
	configFiles []string
	envFile     string
	watch       bool
	demoWorkers int
}

func telemetryFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("telemetry", pflag.ContinueOnError)
	config.AddTelemetryFlags(fs)
	return fs
}

func main() {
	var opts options
	fs := pflag.NewFlagSet("metricsd", pflag.ContinueOnError)
	fs.StringSliceVarP(&opts.configFiles, "config", "c", nil, "configuration file (yaml, json or toml), later files win")
	fs.StringVar(&opts.envFile, "env-file", "", "dotenv file to read before the environment")
	fs.BoolVar(&opts.watch, "watch", false, "reload when a configuration file changes")
	fs.IntVar(&opts.demoWorkers, "demo-workers", 0, "run a synthetic workload on this many workers")
	tfs := telemetryFlags()
	fs.AddFlagSet(tfs)

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if err := run(opts, tfs); err != nil {
		fmt.Fprintln(os.Stderr, "metricsd:", err)
		os.Exit(1)
	}
}

func newLoader(opts options, tfs *pflag.FlagSet) (*config.Loader, error) {
	l := config.New(config.EnvPrefix(config.EnvPrefixDefault))
	for _, f := range opts.configFiles {
		l.AddConfigFile("", f)
	}
	config.SetTelemetryDefaults(l)
	if err := config.BindTelemetryEnv(l); err != nil {
		return nil, err
	}
	if err := config.BindTelemetryFlags(l, tfs); err != nil {
		return nil, err
	}
	if opts.envFile != "" {
		if err := l.LoadDotEnv(opts.envFile); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func run(opts options, tfs *pflag.FlagSet) error {
	loader, err := newLoader(opts, tfs)
	if err != nil {
		return err
	}
	tel, err := config.LoadTelemetry(loader)
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	if err := setLevel(level, tel.Log.Level); err != nil {
		return err
	}
	logger := logging.NewWithLevel(level, os.Stderr)
	slog.SetDefault(logger)

	// The registry outlives reloads; each generation resets its histogram
	// defaults, which only reach metrics created afterwards.
	reg := metric.NewRegistry()
	if err := registerRuntimeGauges(reg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &builder{reg: reg, logger: logger, level: level}
	first := true
	d := daemon.New(func() ([]daemon.Service, []daemon.CleanupFunc, error) {
		if !first {
			t, err := config.LoadTelemetry(loader)
			if err != nil {
				return nil, nil, err
			}
			tel = t
		}
		first = false
		return b.build(tel)
	}, daemon.Logger(logger), daemon.ShutdownTimeout(tel.ShutdownTimeout))

	go signals.Handle(ctx, signalMappings(ctx, cancel, d, logger))

	if opts.watch {
		go func() {
			err := loader.Watch(ctx, func(err error) {
				if err != nil {
					logger.Warn("configuration changed but cannot be read", "err", err)
					return
				}
				d.Reload()
			})
			if err != nil {
				logger.Error("not watching the configuration", "err", err)
			}
		}()
	}

	if opts.demoWorkers > 0 {
		w, err := newWorkload(reg, opts.demoWorkers, logger)
		if err != nil {
			return err
		}
		go w.run(ctx)
		defer func() {
			cancel()
			w.close()
		}()
	}

	logger.Info("metricsd started", "pid", os.Getpid(), "config", opts.configFiles)
	err = d.Run(ctx)
	logger.Info("metricsd exiting", "err", err)
	return err
}

func setLevel(v *slog.LevelVar, name string) error {
	lvl, err := logging.ParseLevel(name)
	if err != nil {
		return err
	}
	v.Set(lvl)
	return nil
}

func reservoir(h config.Histogram) metric.MOption {
	switch h.Reservoir {
	case "uniform":
		return metric.Uniform(h.Size)
	case "varopt":
		return metric.VarOpt(h.Size)
	default:
		return metric.ExpDecay(h.Size, h.Alpha)
	}
}

func reporters(services []daemon.Service) metric.Reporters {
	var rs metric.Reporters
	for _, s := range services {
		if r, ok := s.(*reporterService); ok {
			rs = append(rs, r.Reporter)
		}
	}
	return rs
}

// runNow reports every running reporter at once.
func runNow(ctx context.Context, d *daemon.Daemon) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return reporters(d.Services()).RunNow(ctx)
}
