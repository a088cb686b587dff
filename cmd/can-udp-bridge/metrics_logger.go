package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/can-udp-bridge/internal/metrics"
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
					"udp_rx_datagrams", snap.UDPRxDatagrams,
					"udp_rx", snap.UDPRx,
					"udp_tx", snap.UDPTx,
					"socketcan_rx", snap.SocketCANRx,
					"socketcan_tx", snap.SocketCANTx,
					"partial", snap.Partial,
					"malformed", snap.Malformed,
					"route_miss", snap.RouteMiss,
					"cross_port", snap.CrossPort,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
