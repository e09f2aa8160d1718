//go:build unix

package main

import (
	"context"
	"log/slog"
	"syscall"

	"github.com/Hitta/metrics/internal/daemon"
	"github.com/Hitta/metrics/signals"
)

func signalMappings(ctx context.Context, cancel context.CancelFunc, d *daemon.Daemon, logger *slog.Logger) signals.Mappings {
	exit := func() {
		logger.Info("shutting down")
		cancel()
	}
	return signals.Mappings{
		syscall.SIGINT:  exit,
		syscall.SIGTERM: exit,
		syscall.SIGHUP: func() {
			logger.Info("reloading configuration")
			d.Reload()
		},
		syscall.SIGUSR1: func() {
			if err := runNow(ctx, d); err != nil {
				logger.Warn("report on demand failed", "err", err)
			}
		},
	}
}
