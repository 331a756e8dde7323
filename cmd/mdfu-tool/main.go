package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mchp/mdfu-host/internal/metrics"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if cfg.showHelp {
		printUsage()
		return 0
	}
	if cfg.showVersion {
		fmt.Printf("mdfu-tool %s\n", version)
		return 0
	}
	if cfg.showRelease {
		fmt.Printf("mdfu-tool %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}

	l := setupLogger(cfg.verbose)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
	}()

	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	var runErr error
	switch cfg.action {
	case "update":
		runErr = runUpdate(ctx, cfg, l)
	case "client-info":
		runErr = runClientInfo(ctx, cfg, l)
	case "tools-help":
		runErr = runToolsHelp(ctx)
	case "change-mode":
		runErr = runChangeMode()
	case "dump":
		runErr = runDump(ctx, cfg)
	default:
		runErr = fmt.Errorf("unknown action %q", cfg.action)
	}

	cancel()
	wg.Wait()

	if runErr != nil {
		l.Error("action_failed", "action", cfg.action, "error", runErr)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Println("mdfu-tool <action> [flags]")
	fmt.Println()
	fmt.Println("actions: update, client-info, tools-help, change-mode, dump")
	fmt.Println()
	fmt.Println("flags:")
	fmt.Println("  -h, --help             show this help and exit")
	fmt.Println("  -V, --version          print version and exit")
	fmt.Println("  -R, --release-info     print release info and exit")
	fmt.Println("  -v, --verbose LEVEL    error|warning|info|debug")
	fmt.Println("  --tool TOOL            serial|network|spidev|i2cdev")
	fmt.Println("  --image PATH           firmware image (required for update)")
}
