// Package logging builds the slog loggers of the daemon: colored and terse
// on a terminal, plain key=value text otherwise.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// LevelNotice sits between info and warn.
const LevelNotice = slog.Level(2)

var (
	customLevels = map[slog.Leveler]string{
		LevelNotice: "NOTICE",
	}
	customLevelsTerm = map[slog.Leveler]string{
		LevelNotice: "\u001B[34m" + "NTC" + "\u001B[0m",
	}
)

// ParseLevel accepts debug, info, notice, warn (or warning) and error (or
// err), in any case.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "err", "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "notice":
		return LevelNotice, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

// New returns a logger writing to w at the named level.
func New(level string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	v := new(slog.LevelVar)
	v.Set(lvl)
	return NewWithLevel(v, w), nil
}

// NewWithLevel returns a logger writing to w whose level follows lvl, so it
// can be changed while the logger is in use.
func NewWithLevel(lvl *slog.LevelVar, w io.Writer) *slog.Logger {
	if IsTerminal(w) {
		return slog.New(newTerminalHandler(w, lvl))
	}
	return slog.New(newTextHandler(w, lvl))
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newTextHandler(w io.Writer, lvl *slog.LevelVar) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				l := a.Value.Any().(slog.Level)
				s, ok := customLevels[l]
				if !ok {
					s = l.String()
				}
				return slog.String(a.Key, strings.ToLower(s))
			}
			return a
		},
	})
}

func newTerminalHandler(w io.Writer, lvl *slog.LevelVar) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		NoColor:    runtime.GOOS == "windows",
		Level:      lvl,
		TimeFormat: "15:04:05.000",
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				l := a.Value.Any().(slog.Level)
				if s, ok := customLevelsTerm[l]; ok {
					return slog.String(a.Key, s)
				}
			}
			return a
		},
	})
}

// Stderr is New(level, os.Stderr), falling back to info on a bad level.
func Stderr(level string) *slog.Logger {
	l, err := New(level, os.Stderr)
	if err != nil {
		l, _ = New("info", os.Stderr)
		l.Warn("bad log level, using info", "err", err)
	}
	return l
}
