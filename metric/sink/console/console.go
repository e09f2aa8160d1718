// Package console implements a reporter printing every metric to a text
// stream, grouped and labeled for humans.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Hitta/metrics/metric"
	"github.com/Hitta/metrics/metric/sink"
)

// HeaderLayout formats the timestamp starting every report.
const HeaderLayout = "1/2/06 3:04:05 PM"

const headerWidth = 80

// Reporter prints the registry to an io.Writer on every run.
type Reporter struct {
	*metric.Poller

	reg    *metric.Registry
	out    io.Writer
	errOut io.Writer
	pred   metric.Predicate
	now    func() time.Time
	loc    *time.Location
	logger *slog.Logger
}

// Option configures a console Reporter.
type Option func(*Reporter)

// Filter restricts the reported metrics.
func Filter(p metric.Predicate) Option {
	return Option(func(r *Reporter) {
		r.pred = p
	})
}

// ErrorOutput is where a failed run prints its error. Default is os.Stderr.
func ErrorOutput(w io.Writer) Option {
	return Option(func(r *Reporter) {
		r.errOut = w
	})
}

// Clock sets the time source for the header. Default is the registry's.
func Clock(now func() time.Time) Option {
	return Option(func(r *Reporter) {
		r.now = now
	})
}

// Location sets the time zone of the header. Default is time.Local.
func Location(loc *time.Location) Option {
	return Option(func(r *Reporter) {
		r.loc = loc
	})
}

// Logger sets the logger of the background loop.
func Logger(l *slog.Logger) Option {
	return Option(func(r *Reporter) {
		r.logger = l
	})
}

// New creates a console reporter. Call Start to report periodically.
func New(reg *metric.Registry, out io.Writer, opts ...Option) *Reporter {
	r := &Reporter{
		reg:    reg,
		out:    out,
		errOut: os.Stderr,
		pred:   metric.All,
		now:    reg.Now,
		loc:    time.Local,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	r.Poller = metric.NewPoller("console", r.Run, metric.WithLogger(r.logger))
	return r
}

// Run prints one report. The first failure ends the report; it is printed
// to the error output and returned.
func (r *Reporter) Run(ctx context.Context) error {
	out := &stickyWriter{w: r.out}
	w := bufio.NewWriter(out)
	err := r.render(ctx, w)
	w.Flush()
	// a broken stream wins over whatever the renderer made of it
	if out.err != nil {
		err = &sink.WriteError{Target: "console", Err: out.err}
	}
	if err != nil {
		fmt.Fprintf(r.errOut, "console report failed: %v\n", err)
	}
	return err
}

func (r *Reporter) render(ctx context.Context, w *bufio.Writer) error {
	stamp := r.now().In(r.loc).Format(HeaderLayout)
	w.WriteString(stamp)
	w.WriteByte(' ')
	if n := headerWidth - len(stamp) - 1; n > 0 {
		w.WriteString(strings.Repeat("=", n))
	}
	w.WriteByte('\n')

	lr := &lineRenderer{w: w}
	for _, group := range r.reg.Select(r.pred) {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.WriteString(group.Key)
		w.WriteString(":\n")
		for _, e := range group.Entries {
			w.WriteString("  ")
			w.WriteString(e.Name.Name)
			w.WriteString(":\n")
			if err := metric.Render(e.Metric, lr, nil); err != nil {
				return &sink.FormatterError{Kind: e.Metric.Kind(), Name: e.Name.Path(), Err: err}
			}
			w.WriteByte('\n')
		}
		w.WriteByte('\n')
	}
	w.WriteByte('\n')
	return nil
}

// stickyWriter remembers the first write error of the stream.
type stickyWriter struct {
	w   io.Writer
	err error
}

func (s *stickyWriter) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.w.Write(p)
	if err != nil {
		s.err = err
	}
	return n, err
}

// lineRenderer formats one metric as indented "label = value" lines.
type lineRenderer struct {
	w io.Writer
}

func (l *lineRenderer) RenderCounter(c *metric.Counter, _ any) error {
	_, err := fmt.Fprintf(l.w, "    count = %d\n", c.Count())
	return err
}

func (l *lineRenderer) RenderGauge(g *metric.Gauge, _ any) error {
	v, err := g.Value()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(l.w, "    value = %v\n", v)
	return err
}

func (l *lineRenderer) RenderHistogram(h *metric.Histogram, _ any) error {
	return l.distribution(h.Snapshot(), "")
}

func (l *lineRenderer) RenderMeter(m *metric.Meter, _ any) error {
	return l.rates(m.Snapshot())
}

func (l *lineRenderer) RenderTimer(t *metric.Timer, _ any) error {
	s := t.Snapshot()
	if err := l.rates(s.Rates); err != nil {
		return err
	}
	return l.distribution(s.Durations, metric.UnitAbbrev(s.DurationUnit))
}

func (l *lineRenderer) rates(s metric.MeterSnapshot) error {
	unit := s.EventType + "/" + metric.UnitAbbrev(s.RateUnit)
	_, err := fmt.Fprintf(l.w,
		"             count = %d\n"+
			"         mean rate = %2.2f %s\n"+
			"     1-minute rate = %2.2f %s\n"+
			"     5-minute rate = %2.2f %s\n"+
			"    15-minute rate = %2.2f %s\n",
		s.Count,
		s.RateMean, unit,
		s.Rate1, unit,
		s.Rate5, unit,
		s.Rate15, unit)
	return err
}

func (l *lineRenderer) distribution(s metric.HistogramSnapshot, unit string) error {
	p := s.Percentiles(sink.Quantiles...)
	_, err := fmt.Fprintf(l.w,
		"               min = %2.2f%s\n"+
			"               max = %2.2f%s\n"+
			"              mean = %2.2f%s\n"+
			"            stddev = %2.2f%s\n"+
			"            median = %2.2f%s\n"+
			"              75%% <= %2.2f%s\n"+
			"              95%% <= %2.2f%s\n"+
			"              98%% <= %2.2f%s\n"+
			"              99%% <= %2.2f%s\n"+
			"            99.9%% <= %2.2f%s\n",
		s.Min, unit,
		s.Max, unit,
		s.Mean, unit,
		s.StdDev, unit,
		p[0], unit,
		p[1], unit,
		p[2], unit,
		p[3], unit,
		p[4], unit,
		p[5], unit)
	return err
}
