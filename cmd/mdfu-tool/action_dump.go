package main

import (
	"context"
	"fmt"

	"github.com/mchp/mdfu-host/internal/mdfu"
)

// runDump fetches client info over a fresh session and prints the decoded
// record plus the per-exchange sequence/status trace captured along the
// way, for offline debugging of a tool's wire behavior.
func runDump(ctx context.Context, cfg *appConfig) error {
	t, err := buildTransport(cfg)
	if err != nil {
		return fmt.Errorf("build transport: %w", err)
	}
	e := mdfu.NewEngine(t, engineConfig(cfg))
	ci, err := e.Open(ctx)
	closeErr := e.Close()
	if err != nil {
		return err
	}

	fmt.Printf("client info: version=%s buffer_size=%d buffer_count=%d\n", ci.Version, ci.BufferSize, ci.BufferCount)
	fmt.Println("exchange trace:")
	for _, rec := range e.Trace() {
		switch {
		case rec.Err != nil:
			fmt.Printf("  seq=%d cmd=%s error=%v\n", rec.Sequence, rec.Command, rec.Err)
		case rec.Resend:
			fmt.Printf("  seq=%d cmd=%s resend\n", rec.Sequence, rec.Command)
		default:
			fmt.Printf("  seq=%d cmd=%s status=%s\n", rec.Sequence, rec.Command, rec.Status)
		}
	}
	if closeErr != nil {
		return fmt.Errorf("close: %w", closeErr)
	}
	return nil
}
