// Command emulator runs the pedal-telemetry emulator: a control/data
// listener pair implementing both the legacy and split wire protocols,
// serving at most one client session at a time.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kstaniek/pedalnet/internal/emulator"
	"github.com/kstaniek/pedalnet/internal/metrics"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("pedalnet-emulator %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	e := emulator.New(
		emulator.WithControlAddr(cfg.controlAddr),
		emulator.WithDataAddr(cfg.dataAddr),
		emulator.WithControlDeadline(cfg.controlTO),
		emulator.WithLogger(l),
	)

	go func() {
		if err := e.Serve(ctx); err != nil {
			l.Error("emulator_serve_error", "error", err)
			cancel()
		}
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-e.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.controlTO)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		l.Error("emulator_shutdown_error", "error", err)
	}
	wg.Wait()

	renderShutdownSummary(e.StatsSnapshot())
}
