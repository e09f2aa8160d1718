// Package graphite implements a reporter writing the registry to a Graphite
// server using the plaintext protocol, one "path value epoch" line per
// statistic.
package graphite

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Hitta/metrics/metric"
	"github.com/Hitta/metrics/metric/procstats"
	"github.com/Hitta/metrics/metric/sink"
)

// DefaultTimeout bounds dialing the server.
const DefaultTimeout = 5 * time.Second

// Attributes is what a Formatter needs besides the metric: its sanitized and
// prefixed name, and the epoch of the run.
type Attributes struct {
	Name  string
	Epoch int64
}

// A Formatter writes the lines for one metric. The formatter registered for
// meters is also called with timers, for their rate part.
type Formatter func(w io.Writer, m metric.Metric, a Attributes) error

// Dialer opens the connection for one run.
type Dialer func(ctx context.Context) (net.Conn, error)

// Reporter sends the registry to one Graphite server.
type Reporter struct {
	*metric.Poller

	reg     *metric.Registry
	addr    string
	prefix  string
	pred    metric.Predicate
	dial    Dialer
	timeout time.Duration
	runtime procstats.Source
	now     func() time.Time
	logger  *slog.Logger

	fmu        sync.RWMutex
	formatters map[metric.Kind]Formatter
}

// Option configures a graphite Reporter.
type Option func(*Reporter)

// Prefix is prepended to every name, followed by a dot.
func Prefix(p string) Option {
	return Option(func(r *Reporter) {
		if p != "" && !strings.HasSuffix(p, ".") {
			p += "."
		}
		r.prefix = p
	})
}

// Filter restricts the reported metrics.
func Filter(p metric.Predicate) Option {
	return Option(func(r *Reporter) {
		r.pred = p
	})
}

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return Option(func(r *Reporter) {
		r.dial = d
	})
}

// Timeout bounds dialing with the default dialer and every write to the
// connection. Zero disables the write bound.
func Timeout(d time.Duration) Option {
	return Option(func(r *Reporter) {
		r.timeout = d
	})
}

// RuntimeMetrics writes the statistics of src, under "go.", before the
// registry's metrics on every run.
func RuntimeMetrics(src procstats.Source) Option {
	return Option(func(r *Reporter) {
		r.runtime = src
	})
}

// Clock sets the time source of the epoch. Default is the registry's.
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

// New creates a reporter sending to addr ("host:port").
func New(reg *metric.Registry, addr string, opts ...Option) *Reporter {
	r := &Reporter{
		reg:     reg,
		addr:    addr,
		pred:    metric.All,
		timeout: DefaultTimeout,
		now:     reg.Now,
		logger:  slog.Default(),
		formatters: map[metric.Kind]Formatter{
			metric.KindCounter:   FormatCounter,
			metric.KindGauge:     FormatGauge,
			metric.KindHistogram: FormatDistribution,
			metric.KindMeter:     FormatRates,
			metric.KindTimer:     FormatDistribution,
		},
	}
	for _, o := range opts {
		o(r)
	}
	if r.dial == nil {
		r.dial = func(ctx context.Context) (net.Conn, error) {
			d := net.Dialer{Timeout: r.timeout}
			return d.DialContext(ctx, "tcp", r.addr)
		}
	}
	r.Poller = metric.NewPoller("graphite", r.Run, metric.WithLogger(r.logger))
	return r
}

// RegisterFormatter replaces the formatter for a kind. It is safe to call
// while the reporter runs.
func (r *Reporter) RegisterFormatter(kind metric.Kind, f Formatter) {
	r.fmu.Lock()
	r.formatters[kind] = f
	r.fmu.Unlock()
}

func (r *Reporter) formatter(kind metric.Kind) Formatter {
	r.fmu.RLock()
	defer r.fmu.RUnlock()
	return r.formatters[kind]
}

// Run reports with the current time as epoch.
func (r *Reporter) Run(ctx context.Context) error {
	return r.RunAt(ctx, r.now().Unix())
}

// RunAt reports with the given epoch over a fresh connection. Metrics whose
// formatter fails are left out and their errors returned after the rest has
// been sent.
func (r *Reporter) RunAt(ctx context.Context, epoch int64) error {
	conn, err := r.dial(ctx)
	if err != nil {
		return &sink.UnavailableError{Addr: r.addr, Err: err}
	}
	defer conn.Close()
	// unblocks a write to a collector which stopped reading
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	w := bufio.NewWriter(&deadlineWriter{ctx: ctx, conn: conn, timeout: r.timeout})
	if r.runtime != nil {
		r.writeRuntime(w, epoch)
	}

	var ferrs []error
	var buf bytes.Buffer
	for _, group := range r.reg.Select(r.pred) {
		for _, e := range group.Entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			buf.Reset()
			a := Attributes{Name: Sanitize(r.prefix + e.Name.Path()), Epoch: epoch}
			if err := r.format(&buf, e.Metric, a); err != nil {
				ferrs = append(ferrs, &sink.FormatterError{Kind: e.Metric.Kind(), Name: a.Name, Err: err})
				continue
			}
			if _, err := w.Write(buf.Bytes()); err != nil {
				return r.writeFailed(ctx, err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return r.writeFailed(ctx, err)
	}
	return errors.Join(ferrs...)
}

func (r *Reporter) writeFailed(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("graphite %s: %w", r.addr, cerr)
	}
	return &sink.UnavailableError{Addr: r.addr, Err: err}
}

// deadlineWriter gives every write to the connection timeout to complete.
type deadlineWriter struct {
	ctx     context.Context
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineWriter) Write(p []byte) (int, error) {
	if err := d.ctx.Err(); err != nil {
		return 0, err
	}
	if d.timeout > 0 {
		d.conn.SetWriteDeadline(time.Now().Add(d.timeout))
	}
	return d.conn.Write(p)
}

// format runs the formatters of one metric, turning a panic into an error.
func (r *Reporter) format(w io.Writer, m metric.Metric, a Attributes) (err error) {
	var pc panics.Catcher
	pc.Try(func() {
		err = metric.Render(m, formatRenderer{r: r, w: w}, a)
	})
	if rec := pc.Recovered(); rec != nil {
		return rec.AsError()
	}
	return err
}

// formatRenderer dispatches to the registered formatters.
type formatRenderer struct {
	r *Reporter
	w io.Writer
}

func (f formatRenderer) call(kind metric.Kind, m metric.Metric, ctx any) error {
	fn := f.r.formatter(kind)
	if fn == nil {
		return fmt.Errorf("no formatter for %s", kind)
	}
	return fn(f.w, m, ctx.(Attributes))
}

func (f formatRenderer) RenderCounter(c *metric.Counter, ctx any) error {
	return f.call(metric.KindCounter, c, ctx)
}

func (f formatRenderer) RenderGauge(g *metric.Gauge, ctx any) error {
	return f.call(metric.KindGauge, g, ctx)
}

func (f formatRenderer) RenderHistogram(h *metric.Histogram, ctx any) error {
	return f.call(metric.KindHistogram, h, ctx)
}

func (f formatRenderer) RenderMeter(m *metric.Meter, ctx any) error {
	return f.call(metric.KindMeter, m, ctx)
}

func (f formatRenderer) RenderTimer(t *metric.Timer, ctx any) error {
	if err := f.call(metric.KindMeter, t, ctx); err != nil {
		return err
	}
	return f.call(metric.KindTimer, t, ctx)
}

// Sanitize makes a name usable as a Graphite path.
func Sanitize(name string) string {
	return strings.ReplaceAll(name, " ", "-")
}

// WriteLine writes "name.field value epoch".
func WriteLine(w io.Writer, a Attributes, field, value string) error {
	_, err := fmt.Fprintf(w, "%s.%s %s %d\n", a.Name, field, value, a.Epoch)
	return err
}

// lines writes several lines of one metric, keeping the first error.
type lines struct {
	w   io.Writer
	a   Attributes
	err error
}

func (l *lines) int(field string, v int64) {
	l.str(field, strconv.FormatInt(v, 10))
}

func (l *lines) float(field string, v float64) {
	l.str(field, strconv.FormatFloat(v, 'f', 2, 64))
}

func (l *lines) str(field, v string) {
	if l.err == nil {
		l.err = WriteLine(l.w, l.a, field, v)
	}
}

// FormatCounter writes "count".
func FormatCounter(w io.Writer, m metric.Metric, a Attributes) error {
	c, ok := m.(*metric.Counter)
	if !ok {
		return fmt.Errorf("counter formatter got %s", m.Kind())
	}
	l := &lines{w: w, a: a}
	l.int("count", c.Count())
	return l.err
}

// FormatGauge writes "value". A failing gauge fails the formatter.
func FormatGauge(w io.Writer, m metric.Metric, a Attributes) error {
	g, ok := m.(*metric.Gauge)
	if !ok {
		return fmt.Errorf("gauge formatter got %s", m.Kind())
	}
	v, err := g.Value()
	if err != nil {
		return err
	}
	l := &lines{w: w, a: a}
	l.str("value", fmt.Sprint(v))
	return l.err
}

// FormatRates writes the count and rates of a meter or a timer.
func FormatRates(w io.Writer, m metric.Metric, a Attributes) error {
	s, ok := sink.Rates(m)
	if !ok {
		return fmt.Errorf("rates formatter got %s", m.Kind())
	}
	l := &lines{w: w, a: a}
	l.int("count", s.Count)
	l.float("meanRate", s.RateMean)
	l.float("1MinuteRate", s.Rate1)
	l.float("5MinuteRate", s.Rate5)
	l.float("15MinuteRate", s.Rate15)
	return l.err
}

// FormatDistribution writes the statistics of a histogram or a timer.
func FormatDistribution(w io.Writer, m metric.Metric, a Attributes) error {
	s, ok := sink.Distribution(m)
	if !ok {
		return fmt.Errorf("distribution formatter got %s", m.Kind())
	}
	p := s.Percentiles(sink.Quantiles...)
	l := &lines{w: w, a: a}
	l.float("min", s.Min)
	l.float("max", s.Max)
	l.float("mean", s.Mean)
	l.float("stddev", s.StdDev)
	l.float("median", p[0])
	l.float("75percentile", p[1])
	l.float("95percentile", p[2])
	l.float("98percentile", p[3])
	l.float("99percentile", p[4])
	l.float("999percentile", p[5])
	return l.err
}

// writeRuntime writes the runtime prelude. A failed reading is logged and
// whatever was read is still written.
func (r *Reporter) writeRuntime(w io.Writer, epoch int64) {
	s, err := r.runtime.Read()
	if err != nil {
		r.logger.Warn("runtime metrics incomplete", "reporter", r.Name(), "err", err)
	}
	l := &lines{w: w, a: Attributes{Name: r.prefix + "go", Epoch: epoch}}
	l.float("memory.heap_usage", s.HeapUsage)
	l.float("memory.non_heap_usage", s.NonHeapUsage)
	for _, pool := range sortedKeys(s.MemoryPools) {
		l.float("memory.memory_pool_usages."+Sanitize(pool), s.MemoryPools[pool])
	}
	l.int("goroutine_count", int64(s.Goroutines))
	l.int("thread_count", int64(s.Threads))
	l.int("uptime", int64(s.Uptime/time.Second))
	l.float("fd_usage", s.FDUsage)
	for _, c := range sortedKeys(s.Collectors) {
		gc := s.Collectors[c]
		l.int("gc."+Sanitize(c)+".time", gc.Time.Milliseconds())
		l.int("gc."+Sanitize(c)+".runs", gc.Runs)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
