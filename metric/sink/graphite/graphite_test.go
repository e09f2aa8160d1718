package graphite_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"github.com/Hitta/metrics/metric"
	"github.com/Hitta/metrics/metric/procstats"
	"github.com/Hitta/metrics/metric/sink"
	"github.com/Hitta/metrics/metric/sink/graphite"
)

// server accepts one connection and hands over everything written to it.
func server(t *testing.T) (addr string, received <-chan string) {
	t.Helper()
	l, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	ch := make(chan string, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			close(ch)
			return
		}
		defer conn.Close()
		b, _ := io.ReadAll(conn)
		ch <- string(b)
	}()
	return l.Addr().String(), ch
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("nothing received")
		return ""
	}
}

func TestGraphiteCounter(t *testing.T) {
	reg := metric.NewRegistry()
	c, err := reg.Counter(metric.NewName("a", "", "b"))
	require.NoError(t, err)
	c.Inc(11)

	addr, ch := server(t)
	r := graphite.New(reg, addr, graphite.Prefix("prefix"))
	require.NoError(t, r.RunAt(context.Background(), 0))
	assert.Equal(t, "prefix.a.b.count 11 0\n", receive(t, ch))
}

func TestGraphiteLines(t *testing.T) {
	reg := metric.NewRegistry(metric.Uniform(10))
	_, _ = reg.Gauge(metric.NewName("app", "", "load avg"), metric.GaugeFunc(func() float64 { return 1.5 }))
	h, _ := reg.Histogram(metric.NewName("app", "", "size"))
	h.Update(4)
	tm, _ := reg.Timer(metric.NewName("app", "", "call"))
	tm.Update(2 * time.Millisecond)

	addr, ch := server(t)
	r := graphite.New(reg, addr)
	require.NoError(t, r.RunAt(context.Background(), 42))

	want := strings.Join([]string{
		"app.call.count 1 42",
		"app.call.meanRate 0.00 42",
		"app.call.1MinuteRate 0.00 42",
		"app.call.5MinuteRate 0.00 42",
		"app.call.15MinuteRate 0.00 42",
		"app.call.min 2.00 42",
		"app.call.max 2.00 42",
		"app.call.mean 2.00 42",
		"app.call.stddev 0.00 42",
		"app.call.median 2.00 42",
		"app.call.75percentile 2.00 42",
		"app.call.95percentile 2.00 42",
		"app.call.98percentile 2.00 42",
		"app.call.99percentile 2.00 42",
		"app.call.999percentile 2.00 42",
		"app.load-avg.value 1.5 42",
		"app.size.min 4.00 42",
		"app.size.max 4.00 42",
		"app.size.mean 4.00 42",
		"app.size.stddev 0.00 42",
		"app.size.median 4.00 42",
		"app.size.75percentile 4.00 42",
		"app.size.95percentile 4.00 42",
		"app.size.98percentile 4.00 42",
		"app.size.99percentile 4.00 42",
		"app.size.999percentile 4.00 42",
	}, "\n") + "\n"
	got := receive(t, ch)
	// the mean rate depends on the wall clock
	got = strings.Replace(got, meanRateLine(got), "app.call.meanRate 0.00 42", 1)
	assert.Equal(t, want, got)
}

func meanRateLine(s string) string {
	for _, l := range strings.Split(s, "\n") {
		if strings.HasPrefix(l, "app.call.meanRate ") {
			return l
		}
	}
	return ""
}

func TestGraphiteCustomFormatters(t *testing.T) {
	reg := metric.NewRegistry()
	_, _ = reg.Timer(metric.NewName("t", "", "x"))

	addr, ch := server(t)
	r := graphite.New(reg, addr)
	r.RegisterFormatter(metric.KindMeter, func(w io.Writer, m metric.Metric, a graphite.Attributes) error {
		_, err := fmt.Fprintf(w, "metered %s %s\n", m.Kind(), a.Name)
		return err
	})
	r.RegisterFormatter(metric.KindTimer, func(w io.Writer, m metric.Metric, a graphite.Attributes) error {
		_, err := fmt.Fprintf(w, "timer %s\n", a.Name)
		return err
	})
	require.NoError(t, r.RunAt(context.Background(), 0))
	assert.Equal(t, "metered timer t.x\ntimer t.x\n", receive(t, ch))
}

func TestGraphiteFormatterFailureIsIsolated(t *testing.T) {
	reg := metric.NewRegistry()
	boom := errors.New("boom")
	_, _ = reg.Gauge(metric.NewName("a", "", "bad"), metric.GaugeFuncErr(func() (int, error) { return 0, boom }))
	c, _ := reg.Counter(metric.NewName("b", "", "good"))
	c.Inc(1)
	_, _ = reg.Counter(metric.NewName("c", "", "panics"))

	addr, ch := server(t)
	r := graphite.New(reg, addr)
	r.RegisterFormatter(metric.KindCounter, func(w io.Writer, m metric.Metric, a graphite.Attributes) error {
		if a.Name == "c.panics" {
			panic("formatter bug")
		}
		return graphite.FormatCounter(w, m, a)
	})

	err := r.RunAt(context.Background(), 7)
	require.ErrorIs(t, err, sink.ErrFormatter)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "formatter bug")
	assert.Equal(t, "b.good.count 1 7\n", receive(t, ch))
}

func TestGraphiteUnavailable(t *testing.T) {
	l, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	r := graphite.New(metric.NewRegistry(), addr, graphite.Timeout(time.Second))
	err = r.Run(context.Background())
	require.ErrorIs(t, err, sink.ErrUnavailable)
	var ue *sink.UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, addr, ue.Addr)
}

func TestGraphiteDialer(t *testing.T) {
	client, srv := net.Pipe()
	done := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(srv)
		done <- string(b)
	}()

	reg := metric.NewRegistry()
	_, _ = reg.Counter(metric.NewName("p", "", "c"))
	r := graphite.New(reg, "pipe", graphite.WithDialer(func(context.Context) (net.Conn, error) {
		return client, nil
	}))
	require.NoError(t, r.RunAt(context.Background(), 1))
	assert.Equal(t, "p.c.count 0 1\n", receive(t, done))
}

func TestGraphiteRuntimeMetrics(t *testing.T) {
	src := procstats.SourceFunc(func() (procstats.Stats, error) {
		return procstats.Stats{
			HeapUsage:    0.25,
			NonHeapUsage: 0.5,
			MemoryPools:  map[string]float64{"stack": 0.75},
			Goroutines:   12,
			Threads:      4,
			Uptime:       90 * time.Second,
			FDUsage:      0.01,
			Collectors:   map[string]procstats.GCStats{"mark-sweep": {Time: 1500 * time.Millisecond, Runs: 3}},
		}, nil
	})

	addr, ch := server(t)
	r := graphite.New(metric.NewRegistry(), addr, graphite.Prefix("svc."), graphite.RuntimeMetrics(src))
	require.NoError(t, r.RunAt(context.Background(), 5))
	assert.Equal(t, strings.Join([]string{
		"svc.go.memory.heap_usage 0.25 5",
		"svc.go.memory.non_heap_usage 0.50 5",
		"svc.go.memory.memory_pool_usages.stack 0.75 5",
		"svc.go.goroutine_count 12 5",
		"svc.go.thread_count 4 5",
		"svc.go.uptime 90 5",
		"svc.go.fd_usage 0.01 5",
		"svc.go.gc.mark-sweep.time 1500 5",
		"svc.go.gc.mark-sweep.runs 3 5",
	}, "\n")+"\n", receive(t, ch))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a-b.c", graphite.Sanitize("a b.c"))
}

func TestGraphitePrefixIsSanitized(t *testing.T) {
	reg := metric.NewRegistry()
	c, err := reg.Counter(metric.NewName("a", "", "b c"))
	require.NoError(t, err)
	c.Inc(1)

	addr, ch := server(t)
	r := graphite.New(reg, addr, graphite.Prefix("my app"))
	require.NoError(t, r.RunAt(context.Background(), 0))
	assert.Equal(t, "my-app.a.b-c.count 1 0\n", receive(t, ch))
}

// stalledServer accepts connections and never reads from them.
func stalledServer(t *testing.T) (addr string, accepted <-chan struct{}) {
	t.Helper()
	l, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		l.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	ch := make(chan struct{}, 16)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()
	return l.Addr().String(), ch
}

// bulkyReporter sends far more than the socket buffers hold.
func bulkyReporter(t *testing.T, addr string, opts ...graphite.Option) *graphite.Reporter {
	t.Helper()
	reg := metric.NewRegistry()
	for i := 0; i < 1000; i++ {
		_, err := reg.Counter(metric.NewName("bulk", "", fmt.Sprintf("c%04d", i)))
		require.NoError(t, err)
	}
	r := graphite.New(reg, addr, opts...)
	chunk := []byte(strings.Repeat("x", 64<<10))
	r.RegisterFormatter(metric.KindCounter, func(w io.Writer, _ metric.Metric, _ graphite.Attributes) error {
		_, err := w.Write(chunk)
		return err
	})
	return r
}

func TestGraphiteStalledCollectorTimesOut(t *testing.T) {
	addr, _ := stalledServer(t)
	r := bulkyReporter(t, addr, graphite.Timeout(100*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- r.RunAt(context.Background(), 0) }()
	select {
	case err := <-done:
		require.ErrorIs(t, err, sink.ErrUnavailable)
	case <-time.After(10 * time.Second):
		t.Fatal("run blocked on a stalled collector")
	}
}

func TestGraphiteCancelUnblocksStalledRun(t *testing.T) {
	addr, _ := stalledServer(t)
	r := bulkyReporter(t, addr, graphite.Timeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.RunAt(ctx, 0) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("cancel did not unblock the run")
	}
}

func TestGraphiteShutdownReleasesStalledRun(t *testing.T) {
	addr, accepted := stalledServer(t)
	r := bulkyReporter(t, addr, graphite.Timeout(time.Minute))

	require.NoError(t, r.Start(10*time.Millisecond))
	select {
	case <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("no run started")
	}
	time.Sleep(100 * time.Millisecond)
	_ = r.Shutdown(200 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- r.RunNow(context.Background()) }()
	select {
	case err := <-done:
		require.ErrorIs(t, err, metric.ErrStopped)
	case <-time.After(10 * time.Second):
		t.Fatal("run still holds the reporter after shutdown")
	}
}
