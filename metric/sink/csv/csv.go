// Package csv implements a reporter appending one row per metric per run to
// a CSV file per metric.
package csv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Hitta/metrics/metric"
	"github.com/Hitta/metrics/metric/sink"
)

// Header rows by metric kind. Timers use the histogram columns, in their
// duration unit.
const (
	CounterHeader   = "# time,count"
	GaugeHeader     = "# time,value"
	HistogramHeader = "# time,min,max,mean,median,stddev,90%,95%,99%"
	MeterHeader     = "# time,count,1 min rate,mean rate,5 min rate,15 min rate"
)

// Reporter writes into dir. A file is created the first time its metric is
// reported and gets its header only if it is empty, so restarting a process
// keeps appending to the same files.
type Reporter struct {
	*metric.Poller

	reg    *metric.Registry
	dir    string
	pred   metric.Predicate
	now    func() time.Time
	logger *slog.Logger

	start atomic.Int64 // unix nanos

	mu    sync.Mutex
	files map[metric.Name]*os.File
	// dedupes concurrent creation of the same file
	create singleflight.Group
}

// Option configures a csv Reporter.
type Option func(*Reporter)

// Filter restricts the reported metrics.
func Filter(p metric.Predicate) Option {
	return Option(func(r *Reporter) {
		r.pred = p
	})
}

// Clock sets the time source for the time column. Default is the registry's.
func Clock(now func() time.Time) Option {
	return Option(func(r *Reporter) {
		r.now = now
	})
}

// Logger sets the logger of the background loop.
func Logger(l *slog.Logger) Option {
	return Option(func(r *Reporter) {
		r.logger = l
	})
}

// New creates a csv reporter writing into dir, which must exist.
func New(reg *metric.Registry, dir string, opts ...Option) *Reporter {
	r := &Reporter{
		reg:    reg,
		dir:    dir,
		pred:   metric.All,
		now:    reg.Now,
		logger: slog.Default(),
		files:  make(map[metric.Name]*os.File),
	}
	for _, o := range opts {
		o(r)
	}
	r.start.Store(r.now().UnixNano())
	r.Poller = metric.NewPoller("csv", r.Run,
		metric.WithLogger(r.logger),
		metric.WithCloser(r.Close))
	return r
}

// Start resets the time origin of the time column and starts reporting.
func (r *Reporter) Start(period time.Duration) error {
	r.start.Store(r.now().UnixNano())
	return r.Poller.Start(period)
}

// rowCtx is the render context: every row of a run shares one time value.
type rowCtx struct {
	name metric.Name
	time int64
}

// Run appends a row for every metric. A file which cannot be created only
// loses that metric's row; any other failure ends the run.
func (r *Reporter) Run(ctx context.Context) error {
	elapsed := int64(r.now().Sub(time.Unix(0, r.start.Load())) / time.Second)
	var createErrs []error
	for _, group := range r.reg.Select(r.pred) {
		for _, e := range group.Entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := metric.Render(e.Metric, r, rowCtx{name: e.Name, time: elapsed})
			switch {
			case err == nil:
			case errors.Is(err, sink.ErrFileCreate):
				r.logger.Warn("csv file not created", "metric", e.Name.Path(), "err", err)
				createErrs = append(createErrs, err)
			default:
				return err
			}
		}
	}
	return errors.Join(createErrs...)
}

// Path returns the file a metric is written to.
func (r *Reporter) Path(name metric.Name) string {
	base := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(name.Path())
	return filepath.Join(r.dir, base+".csv")
}

func (r *Reporter) file(name metric.Name, header string) (*os.File, error) {
	r.mu.Lock()
	f, ok := r.files[name]
	r.mu.Unlock()
	if ok {
		return f, nil
	}

	path := r.Path(name)
	v, err, _ := r.create.Do(path, func() (any, error) {
		r.mu.Lock()
		if f, ok := r.files[name]; ok {
			r.mu.Unlock()
			return f, nil
		}
		r.mu.Unlock()

		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, &sink.FileCreateError{Path: path, Err: err}
		}
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, &sink.FileCreateError{Path: path, Err: err}
		}
		if st.Size() == 0 {
			if _, err := io.WriteString(f, header+"\n"); err != nil {
				f.Close()
				return nil, &sink.WriteError{Target: path, Err: err}
			}
		}

		r.mu.Lock()
		r.files[name] = f
		r.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*os.File), nil
}

func (r *Reporter) write(ctx any, header string, fields ...string) error {
	rc, ok := ctx.(rowCtx)
	if !ok {
		return fmt.Errorf("csv: unexpected render context %T", ctx)
	}
	f, err := r.file(rc.name, header)
	if err != nil {
		return err
	}
	row := strconv.FormatInt(rc.time, 10) + "," + strings.Join(fields, ",") + "\n"
	if _, err := io.WriteString(f, row); err != nil {
		return &sink.WriteError{Target: f.Name(), Err: err}
	}
	return nil
}

func (r *Reporter) RenderCounter(c *metric.Counter, ctx any) error {
	return r.write(ctx, CounterHeader, strconv.FormatInt(c.Count(), 10))
}

func (r *Reporter) RenderGauge(g *metric.Gauge, ctx any) error {
	v, err := g.Value()
	if err != nil {
		return err
	}
	return r.write(ctx, GaugeHeader, fmt.Sprint(v))
}

func (r *Reporter) RenderHistogram(h *metric.Histogram, ctx any) error {
	return r.distribution(h.Snapshot(), ctx)
}

func (r *Reporter) RenderMeter(m *metric.Meter, ctx any) error {
	s := m.Snapshot()
	return r.write(ctx, MeterHeader,
		strconv.FormatInt(s.Count, 10),
		formatFloat(s.Rate1),
		formatFloat(s.RateMean),
		formatFloat(s.Rate5),
		formatFloat(s.Rate15))
}

func (r *Reporter) RenderTimer(t *metric.Timer, ctx any) error {
	return r.distribution(t.Snapshot().Durations, ctx)
}

func (r *Reporter) distribution(s metric.HistogramSnapshot, ctx any) error {
	p := s.Percentiles(0.5, 0.9, 0.95, 0.99)
	return r.write(ctx, HistogramHeader,
		formatFloat(s.Min),
		formatFloat(s.Max),
		formatFloat(s.Mean),
		formatFloat(p[0]),
		formatFloat(s.StdDev),
		formatFloat(p[1]),
		formatFloat(p[2]),
		formatFloat(p[3]))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Close closes every open file. Files are reopened if the reporter runs
// again.
func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, f := range r.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.files, name)
	}
	return errors.Join(errs...)
}
