package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hitta/metrics/internal/logging"
)

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"notice":  logging.LevelNotice,
		"warning": slog.LevelWarn,
		"err":     slog.LevelError,
	} {
		got, err := logging.ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := logging.ParseLevel("loud")
	assert.Error(t, err)
}

func TestPlainTextWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	l, err := logging.New("notice", &buf)
	require.NoError(t, err)

	l.Info("hidden")
	l.Log(context.Background(), logging.LevelNotice, "report failed", "reporter", "csv")
	l.Warn("careful")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=notice msg=\"report failed\" reporter=csv")
	assert.Contains(t, out, "level=warn msg=careful")
	assert.False(t, logging.IsTerminal(&buf))
}

func TestLevelChangesAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	l := logging.NewWithLevel(lvl, &buf)

	l.Debug("first")
	lvl.Set(slog.LevelDebug)
	l.Debug("second")
	assert.NotContains(t, buf.String(), "first")
	assert.Contains(t, buf.String(), "second")
}
