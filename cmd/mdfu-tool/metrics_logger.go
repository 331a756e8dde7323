package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mchp/mdfu-host/internal/metrics"
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
					"packets_tx", snap.PacketsTx,
					"packets_rx", snap.PacketsRx,
					"retries", snap.Retries,
					"resends", snap.Resends,
					"checksum_failures", snap.Checksum,
					"framing_errors", snap.Framing,
					"busy_polls", snap.BusyPolls,
					"chunks_written", snap.Chunks,
					"bytes_written", snap.Bytes,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
