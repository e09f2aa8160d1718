package console_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hitta/metrics/metric"
	"github.com/Hitta/metrics/metric/sink"
	"github.com/Hitta/metrics/metric/sink/console"
)

var epoch = time.Date(2024, 3, 7, 14, 5, 9, 0, time.UTC)

func fixedNow() time.Time { return epoch }

func TestConsoleReport(t *testing.T) {
	reg := metric.NewRegistry(metric.WithClock(fixedNow))
	c, err := reg.Counter(metric.NewName("app", "Queue", "depth"))
	require.NoError(t, err)
	c.Inc(11)
	_, err = reg.Gauge(metric.NewName("app", "Queue", "state"), metric.GaugeFunc(func() string { return "open" }))
	require.NoError(t, err)
	h, err := reg.Histogram(metric.NewName("app", "Sizes", "body"), metric.Uniform(100))
	require.NoError(t, err)
	for i := int64(1); i <= 100; i++ {
		h.Update(i)
	}

	var out bytes.Buffer
	r := console.New(reg, &out, console.Location(time.UTC))
	require.NoError(t, r.Run(context.Background()))

	want := "3/7/24 2:05:09 PM " + strings.Repeat("=", 62) + "\n" +
		"app.Queue:\n" +
		"  depth:\n" +
		"    count = 11\n" +
		"\n" +
		"  state:\n" +
		"    value = open\n" +
		"\n" +
		"\n" +
		"app.Sizes:\n" +
		"  body:\n" +
		"               min = 1.00\n" +
		"               max = 100.00\n" +
		"              mean = 50.50\n" +
		"            stddev = 29.01\n" +
		"            median = 50.50\n" +
		"              75% <= 75.25\n" +
		"              95% <= 95.05\n" +
		"              98% <= 98.02\n" +
		"              99% <= 99.01\n" +
		"            99.9% <= 99.90\n" +
		"\n" +
		"\n" +
		"\n"
	assert.Equal(t, want, out.String())
}

func TestConsoleTimerAndMeter(t *testing.T) {
	reg := metric.NewRegistry(metric.WithClock(fixedNow))
	timer, err := reg.Timer(metric.NewName("db", "", "query"), metric.Uniform(10))
	require.NoError(t, err)
	timer.Update(2 * time.Millisecond)
	m, err := reg.Meter(metric.NewName("db", "", "rows"), "rows")
	require.NoError(t, err)
	m.Mark(3)

	var out bytes.Buffer
	require.NoError(t, console.New(reg, &out).Run(context.Background()))

	s := out.String()
	assert.Contains(t, s, "  query:\n             count = 1\n         mean rate = 0.00 calls/s\n")
	assert.Contains(t, s, "               min = 2.00ms\n")
	assert.Contains(t, s, "            99.9% <= 2.00ms\n")
	assert.Contains(t, s, "  rows:\n             count = 3\n")
	assert.Contains(t, s, "    15-minute rate = 0.00 rows/s\n")
}

func TestConsoleAbortsOnFirstFailure(t *testing.T) {
	reg := metric.NewRegistry(metric.WithClock(fixedNow))
	boom := errors.New("sensor offline")
	_, err := reg.Gauge(metric.NewName("a", "", "broken"), metric.GaugeFuncErr(func() (int, error) { return 0, boom }))
	require.NoError(t, err)
	_, err = reg.Counter(metric.NewName("b", "", "after"))
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	r := console.New(reg, &out, console.ErrorOutput(&errOut))
	err = r.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, sink.ErrFormatter)

	assert.Contains(t, out.String(), "  broken:\n")
	assert.NotContains(t, out.String(), "after")
	assert.Contains(t, errOut.String(), "sensor offline")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, os.ErrClosed }

func TestConsoleWriteFailure(t *testing.T) {
	reg := metric.NewRegistry(metric.WithClock(fixedNow))
	var errOut bytes.Buffer
	err := console.New(reg, failingWriter{}, console.ErrorOutput(&errOut)).Run(context.Background())
	require.ErrorIs(t, err, sink.ErrWrite)
	require.ErrorIs(t, err, os.ErrClosed)
}

func TestConsoleWriteFailureInLargeReport(t *testing.T) {
	reg := metric.NewRegistry(metric.WithClock(fixedNow))
	for i := 0; i < 50; i++ {
		h, err := reg.Histogram(metric.NewName("g", "", fmt.Sprintf("h%02d", i)))
		require.NoError(t, err)
		h.Update(int64(i))
	}

	var errOut bytes.Buffer
	err := console.New(reg, failingWriter{}, console.ErrorOutput(&errOut)).Run(context.Background())
	require.ErrorIs(t, err, sink.ErrWrite)
	require.ErrorIs(t, err, os.ErrClosed)
	assert.NotErrorIs(t, err, sink.ErrFormatter)
	assert.Contains(t, errOut.String(), "console report failed")
}

func TestConsoleFilter(t *testing.T) {
	reg := metric.NewRegistry(metric.WithClock(fixedNow))
	_, _ = reg.Counter(metric.NewName("a", "", "kept"))
	_, _ = reg.Meter(metric.NewName("a", "", "dropped"), "x")

	var out bytes.Buffer
	r := console.New(reg, &out, console.Filter(metric.ByKind(metric.KindCounter)))
	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "kept")
	assert.NotContains(t, out.String(), "dropped")
}
