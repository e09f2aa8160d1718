//go:build !unix

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/Hitta/metrics/internal/daemon"
	"github.com/Hitta/metrics/signals"
)

func signalMappings(_ context.Context, cancel context.CancelFunc, _ *daemon.Daemon, _ *slog.Logger) signals.Mappings {
	return signals.Mappings{
		os.Interrupt: func() { cancel() },
	}
}
