package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mchp/mdfu-host/internal/orchestrator"
)

func runClientInfo(ctx context.Context, cfg *appConfig, l *slog.Logger) error {
	t, err := buildTransport(cfg)
	if err != nil {
		return fmt.Errorf("build transport: %w", err)
	}
	o := orchestrator.New(t, engineConfig(cfg))
	ci, err := o.ClientInfo(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("version:                %s\n", ci.Version)
	fmt.Printf("buffer_size:            %d\n", ci.BufferSize)
	fmt.Printf("buffer_count:           %d\n", ci.BufferCount)
	fmt.Printf("default_timeout:        %d (x100ms)\n", ci.DefaultTimeout)
	fmt.Printf("inter_transaction_delay: %d ns\n", ci.InterTransactionDelay)
	for cc, timeout := range ci.CommandTimeouts {
		fmt.Printf("  timeout[%s] = %d (x100ms)\n", cc, timeout)
	}
	l.Debug("client_info_complete")
	return nil
}
