package statsd_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"github.com/Hitta/metrics/metric"
	"github.com/Hitta/metrics/metric/sink"
	"github.com/Hitta/metrics/metric/sink/statsd"
)

type datagrams struct {
	packets []string
	err     error
}

func (d *datagrams) Write(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.packets = append(d.packets, string(p))
	return len(p), nil
}

func TestStatsdDatagramsStayWithinBuffer(t *testing.T) {
	reg := metric.NewRegistry()
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		c, _ := reg.Counter(metric.NewName("grp", "", n))
		c.Inc(10)
	}

	out := &datagrams{}
	s, err := statsd.New(reg, statsd.Buffer(40), statsd.Output(out))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	require.Greater(t, len(out.packets), 1)
	var lines []string
	for _, p := range out.packets {
		assert.LessOrEqual(t, len(p), 40)
		assert.False(t, strings.HasSuffix(p, "\n"))
		lines = append(lines, strings.Split(p, "\n")...)
	}
	assert.Equal(t, []string{
		"grp.a.count:10|g",
		"grp.b.count:10|g",
		"grp.c.count:10|g",
		"grp.d.count:10|g",
		"grp.e.count:10|g",
	}, lines)
}

func TestStatsdSkipsNonNumericGauge(t *testing.T) {
	reg := metric.NewRegistry()
	_, _ = reg.Gauge(metric.NewName("g", "", "name"), metric.GaugeFunc(func() string { return "x" }))
	_, _ = reg.Gauge(metric.NewName("g", "", "ratio"), metric.GaugeFunc(func() float64 { return 0.5 }))

	out := &datagrams{}
	s, err := statsd.New(reg, statsd.Output(out))
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"g.ratio.value:0.5|g"}, out.packets)
}

func TestStatsdWriteFailure(t *testing.T) {
	reg := metric.NewRegistry()
	_, _ = reg.Counter(metric.NewName("a", "", "b"))
	boom := errors.New("network down")

	s, err := statsd.New(reg, statsd.Output(&datagrams{err: boom}))
	require.NoError(t, err)
	err = s.Run(context.Background())
	require.ErrorIs(t, err, sink.ErrUnavailable)
	require.ErrorIs(t, err, boom)
}

func TestStatsdPeer(t *testing.T) {
	pc, err := nettest.NewLocalPacketListener("udp")
	require.NoError(t, err)
	defer pc.Close()

	reg := metric.NewRegistry()
	m, _ := reg.Meter(metric.NewName("net", "", "rx"), "packets")
	m.Mark(3)

	s, err := statsd.New(reg, statsd.Peer(pc.LocalAddr().String()), statsd.Prefix("host"))
	require.NoError(t, err)
	require.NoError(t, s.RunNow(context.Background()))
	require.NoError(t, s.Shutdown(time.Second))

	buf := make([]byte, 2048)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	lines := strings.Split(string(buf[:n]), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "host.net.rx.count:3|g", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "host.net.rx.mean_rate:"))
	assert.Equal(t, "host.net.rx.m1_rate:0|g", lines[2])
}
