package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Hitta/metrics/config"
	"github.com/Hitta/metrics/internal/daemon"
	"github.com/Hitta/metrics/metric"
	"github.com/Hitta/metrics/metric/procstats"
	"github.com/Hitta/metrics/metric/sink/console"
	"github.com/Hitta/metrics/metric/sink/csv"
	"github.com/Hitta/metrics/metric/sink/graphite"
	promsink "github.com/Hitta/metrics/metric/sink/prometheus"
	"github.com/Hitta/metrics/metric/sink/statsd"
)

// reporterService runs a reporter at a fixed period.
type reporterService struct {
	metric.Reporter
	period time.Duration
}

func (s *reporterService) Start() error {
	return s.Reporter.Start(s.period)
}

func (s *reporterService) Shutdown(ctx context.Context) error {
	timeout := time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	return s.Reporter.Shutdown(timeout)
}

// httpService serves the prometheus endpoint.
type httpService struct {
	name   string
	addr   string
	srv    *http.Server
	logger *slog.Logger
}

func (s *httpService) Name() string { return s.name }

// Start listens before returning so a busy port fails the generation.
func (s *httpService) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "service", s.name, "err", err)
		}
	}()
	s.logger.Info("serving", "service", s.name, "addr", ln.Addr().String())
	return nil
}

func (s *httpService) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// builder turns a Telemetry configuration into a generation of services.
type builder struct {
	reg    *metric.Registry
	logger *slog.Logger
	level  *slog.LevelVar
}

func (b *builder) build(tel config.Telemetry) (services []daemon.Service, cleanups []daemon.CleanupFunc, err error) {
	if err := setLevel(b.level, tel.Log.Level); err != nil {
		return nil, nil, err
	}
	// statsd dials while being built
	defer func() {
		if err != nil {
			for _, s := range services {
				if r, ok := s.(*reporterService); ok {
					_ = r.Reporter.Shutdown(time.Second)
				}
			}
			services = nil
		}
	}()

	if c := tel.Console; c.Enabled {
		var out io.Writer = os.Stdout
		if c.Output == "stderr" {
			out = os.Stderr
		}
		r := console.New(b.reg, out, console.Logger(b.logger))
		services = append(services, &reporterService{Reporter: r, period: c.Period})
	}

	if c := tel.CSV; c.Enabled {
		if err := os.MkdirAll(c.Dir, 0o755); err != nil {
			return services, nil, fmt.Errorf("csv: %w", err)
		}
		r := csv.New(b.reg, c.Dir, csv.Logger(b.logger))
		services = append(services, &reporterService{Reporter: r, period: c.Period})
	}

	if c := tel.Graphite; c.Enabled {
		opts := []graphite.Option{
			graphite.Prefix(c.Prefix),
			graphite.Timeout(c.Timeout),
			graphite.Logger(b.logger),
		}
		if c.RuntimeMetrics {
			opts = append(opts, graphite.RuntimeMetrics(procstats.Default))
		}
		r := graphite.New(b.reg, c.Addr, opts...)
		services = append(services, &reporterService{Reporter: r, period: c.Period})
	}

	if c := tel.Statsd; c.Enabled {
		opts := []statsd.Option{
			statsd.Peer(c.Addr),
			statsd.Buffer(c.Buffer),
			statsd.Logger(b.logger),
		}
		if c.Prefix != "" {
			opts = append(opts, statsd.Prefix(c.Prefix))
		}
		r, err := statsd.New(b.reg, opts...)
		if err != nil {
			return services, nil, fmt.Errorf("statsd: %w", err)
		}
		services = append(services, &reporterService{Reporter: r, period: c.Period})
	}

	if c := tel.Prometheus; c.Enabled {
		s, err := b.prometheus(c)
		if err != nil {
			return services, nil, fmt.Errorf("prometheus: %w", err)
		}
		services = append(services, s)
	}

	if len(services) == 0 {
		return nil, nil, errors.New("no sink enabled")
	}
	b.reg.SetDefaults(reservoir(tel.Histogram))
	return services, nil, nil
}

func (b *builder) prometheus(c config.Prometheus) (*httpService, error) {
	preg := prometheus.NewRegistry()
	if err := preg.Register(promsink.NewCollector(b.reg, c.Namespace, metric.All)); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(b.logger.Handler(), slog.LevelWarn),
		ErrorHandling: promhttp.ContinueOnError,
	}))
	return &httpService{
		name: "prometheus",
		addr: c.Listen,
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          slog.NewLogLogger(b.logger.Handler(), slog.LevelError),
		},
		logger: b.logger,
	}, nil
}
