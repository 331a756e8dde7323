package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mchp/mdfu-host/internal/imagesource"
	"github.com/mchp/mdfu-host/internal/orchestrator"
)

func runUpdate(ctx context.Context, cfg *appConfig, l *slog.Logger) error {
	t, err := buildTransport(cfg)
	if err != nil {
		return fmt.Errorf("build transport: %w", err)
	}
	img, err := imagesource.Open(cfg.image)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	if size, err := img.Size(); err == nil {
		l.Info("update_start", "image", cfg.image, "bytes", size, "tool", cfg.tool)
	}

	o := orchestrator.New(t, engineConfig(cfg))
	if err := o.Update(ctx, img); err != nil {
		return err
	}
	l.Info("update_complete")
	return nil
}
