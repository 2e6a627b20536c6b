package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/pedalnet/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_emitted", snap.FramesEmitted,
					"frames_received", snap.FramesReceived,
					"sequence_rejected", snap.SequenceDropped,
					"malformed", snap.Malformed,
					"sessions", snap.Sessions,
					"handshake_fail", snap.HandshakeFail,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
