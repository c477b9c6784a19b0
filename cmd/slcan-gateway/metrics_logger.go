package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/canline/slcan/internal/metrics"
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
					"slcan_rx", snap.SLCANRx,
					"slcan_tx", snap.SLCANTx,
					"socketcan_rx", snap.SocketCANRx,
					"socketcan_tx", snap.SocketCANTx,
					"tcp_rx", snap.TCPRx,
					"tcp_tx", snap.TCPTx,
					"hub_drops", snap.HubDrops,
					"queue_overflow", snap.QueueOverflow,
					"command_timeouts", snap.Timeouts,
					"command_nacks", snap.Nacks,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
