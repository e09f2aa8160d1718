// Package statsd implements a reporter sending a snapshot of the registry to
// a statsd server. Every statistic is sent as a gauge, since the registry
// already aggregates.
package statsd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Hitta/metrics/metric"
	"github.com/Hitta/metrics/metric/sink"
)

// DefaultBuffer is a datagram size safe for most networks.
const DefaultBuffer = 1432

type Option func(*Reporter) error

// Reporter renders the registry into statsd lines, packed into datagrams of
// at most the buffer size.
type Reporter struct {
	*metric.Poller

	reg    *metric.Registry
	pred   metric.Predicate
	out    io.Writer
	conn   io.Closer
	addr   string
	max    int
	prefix string
	logger *slog.Logger

	mu       sync.Mutex
	buf      []byte
	writeErr error
}

// Buffer sets the package size with which writes to the underlying io.Writer (often an UDPConn)
// is done.
func Buffer(size int) Option {
	return Option(func(s *Reporter) error {
		s.max = size
		return nil
	})
}

// Prefix is prepended with "prefix." to all metric names
func Prefix(pfx string) Option {
	return Option(func(s *Reporter) error {
		s.prefix = pfx + "."
		return nil
	})
}

// Peer is the address of the statsd UDP server
func Peer(addr string) Option {
	return Option(func(s *Reporter) error {
		conn, err := net.DialTimeout("udp", addr, time.Second)
		if err != nil {
			return &sink.UnavailableError{Addr: addr, Err: err}
		}
		s.out = conn
		s.conn = conn
		s.addr = addr
		return nil
	})
}

// Output sets an general io.Writer as output instead of a UDPConn.
func Output(w io.Writer) Option {
	return Option(func(s *Reporter) error {
		s.out = w
		s.addr = "output"
		return nil
	})
}

// Filter restricts the reported metrics.
func Filter(p metric.Predicate) Option {
	return Option(func(s *Reporter) error {
		s.pred = p
		return nil
	})
}

// Logger sets the logger of the background loop.
func Logger(l *slog.Logger) Option {
	return Option(func(s *Reporter) error {
		s.logger = l
		return nil
	})
}

// New creates a statsd reporter. Without Peer or Output it writes to
// os.Stdout.
func New(reg *metric.Registry, opts ...Option) (*Reporter, error) {
	s := &Reporter{
		reg:    reg,
		pred:   metric.All,
		out:    os.Stdout,
		addr:   "stdout",
		max:    DefaultBuffer,
		logger: slog.Default(),
	}
	for _, o := range opts {
		if err := o(s); err != nil {
			if s.conn != nil {
				s.conn.Close()
			}
			return nil, err
		}
	}
	s.buf = make([]byte, 0, s.max+512)
	s.Poller = metric.NewPoller("statsd", s.Run,
		metric.WithLogger(s.logger),
		metric.WithCloser(s.Close))
	return s, nil
}

// Run sends every metric. A failed write ends the run.
func (s *Reporter) Run(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = s.buf[:0]
	s.writeErr = nil

	lr := lineRenderer{s}
	for _, group := range s.reg.Select(s.pred) {
		for _, e := range group.Entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := metric.Render(e.Metric, lr, s.prefix+e.Name.Path()); err != nil {
				// a failing gauge loses its line only
				s.logger.Warn("statsd metric skipped", "metric", e.Name.Path(), "err", err)
			}
			if s.writeErr != nil {
				return s.writeErr
			}
		}
	}
	s.flush(0)
	return s.writeErr
}

// Close closes the connection opened by Peer.
func (s *Reporter) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Reporter) record(name, field string, appendValue func([]byte) []byte) {
	curbuflen := len(s.buf)
	s.buf = append(s.buf, name...)
	s.buf = append(s.buf, '.')
	s.buf = append(s.buf, field...)
	s.buf = append(s.buf, ':')
	s.buf = appendValue(s.buf)
	s.buf = append(s.buf, "|g"...)
	// sample rate not supported
	s.buf = append(s.buf, '\n')
	s.flushIfBufferFull(curbuflen)
}

func (s *Reporter) recordInt(name, field string, v int64) {
	s.record(name, field, func(b []byte) []byte { return strconv.AppendInt(b, v, 10) })
}

func (s *Reporter) recordFloat(name, field string, v float64) {
	s.record(name, field, func(b []byte) []byte { return strconv.AppendFloat(b, v, 'f', -1, 64) })
}

func (s *Reporter) flushIfBufferFull(lastSafeLen int) {
	if len(s.buf) > s.max {
		s.flush(lastSafeLen)
	}
}

func (s *Reporter) flush(n int) {
	if len(s.buf) == 0 || s.writeErr != nil {
		return
	}
	if n == 0 {
		n = len(s.buf)
	}

	// Trim the last \n, StatsD does not like it.
	if _, err := s.out.Write(s.buf[:n-1]); err != nil {
		s.writeErr = &sink.UnavailableError{Addr: s.addr, Err: err}
	}

	if n < len(s.buf) {
		copy(s.buf, s.buf[n:])
	}
	s.buf = s.buf[:len(s.buf)-n]
}

type lineRenderer struct {
	s *Reporter
}

func (l lineRenderer) RenderCounter(c *metric.Counter, ctx any) error {
	l.s.recordInt(ctx.(string), "count", c.Count())
	return nil
}

func (l lineRenderer) RenderGauge(g *metric.Gauge, ctx any) error {
	v, err := g.Value()
	if err != nil {
		return err
	}
	if !appendable(v) {
		return errors.New("gauge value is not a number")
	}
	l.s.record(ctx.(string), "value", func(b []byte) []byte { return appendNumber(b, v) })
	return nil
}

func (l lineRenderer) RenderHistogram(h *metric.Histogram, ctx any) error {
	l.distribution(ctx.(string), h.Snapshot())
	return nil
}

func (l lineRenderer) RenderMeter(m *metric.Meter, ctx any) error {
	l.rates(ctx.(string), m.Snapshot())
	return nil
}

func (l lineRenderer) RenderTimer(t *metric.Timer, ctx any) error {
	s := t.Snapshot()
	l.rates(ctx.(string), s.Rates)
	l.distribution(ctx.(string), s.Durations)
	return nil
}

func (l lineRenderer) rates(name string, s metric.MeterSnapshot) {
	l.s.recordInt(name, "count", s.Count)
	l.s.recordFloat(name, "mean_rate", s.RateMean)
	l.s.recordFloat(name, "m1_rate", s.Rate1)
	l.s.recordFloat(name, "m5_rate", s.Rate5)
	l.s.recordFloat(name, "m15_rate", s.Rate15)
}

var percentileFields = []string{"p50", "p75", "p95", "p98", "p99", "p999"}

func (l lineRenderer) distribution(name string, s metric.HistogramSnapshot) {
	l.s.recordFloat(name, "min", s.Min)
	l.s.recordFloat(name, "max", s.Max)
	l.s.recordFloat(name, "mean", s.Mean)
	l.s.recordFloat(name, "stddev", s.StdDev)
	for i, p := range s.Percentiles(sink.Quantiles...) {
		l.s.recordFloat(name, percentileFields[i], p)
	}
}

func appendable(v any) bool {
	switch v.(type) {
	case int, uint, int64, uint64, int32, uint32, int16, uint16, int8, uint8, float64, float32:
		return true
	}
	return false
}

func appendNumber(b []byte, v any) []byte {
	switch n := v.(type) {
	case int:
		b = strconv.AppendInt(b, int64(n), 10)
	case uint:
		b = strconv.AppendUint(b, uint64(n), 10)
	case int64:
		b = strconv.AppendInt(b, n, 10)
	case uint64:
		b = strconv.AppendUint(b, n, 10)
	case int32:
		b = strconv.AppendInt(b, int64(n), 10)
	case uint32:
		b = strconv.AppendUint(b, uint64(n), 10)
	case int16:
		b = strconv.AppendInt(b, int64(n), 10)
	case uint16:
		b = strconv.AppendUint(b, uint64(n), 10)
	case int8:
		b = strconv.AppendInt(b, int64(n), 10)
	case uint8:
		b = strconv.AppendUint(b, uint64(n), 10)
	case float64:
		b = strconv.AppendFloat(b, n, 'f', -1, 64)
	case float32:
		b = strconv.AppendFloat(b, float64(n), 'f', -1, 32)
	}
	return b
}

/* Some of the above code has been borrowed from github.com/alexcesaro/statsd

... which carries the license:

The MIT License (MIT)

Copyright (c) 2015 Alexandre Cesaro

Permission is hereby granted, free of charge, to any person obtaining a copy of
this software and associated documentation files (the "Software"), to deal in
the Software without restriction, including without limitation the rights to
use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
the Software, and to permit persons to whom the Software is furnished to do so,
subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/
