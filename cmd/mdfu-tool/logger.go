package main

import (
	"log/slog"
	"os"

	"github.com/mchp/mdfu-host/internal/logging"
)

func setupLogger(verbose string) *slog.Logger {
	var lvl slog.Level
	switch verbose {
	case "debug":
		lvl = slog.LevelDebug
	case "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	l := logging.New("text", lvl, os.Stderr).With("app", "mdfu-tool")
	logging.Set(l)
	return l
}
