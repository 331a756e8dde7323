package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	action          string // update|client-info|tools-help|change-mode|dump
	tool            string // serial|network|spidev|i2cdev
	image           string
	serialDev       string
	baud            int
	networkAddr     string
	spiDev          string
	i2cDev          string
	i2cAddr         int
	verbose         string
	metricsAddr     string
	logMetricsEvery time.Duration
	retries         int
	cmdTimeout      time.Duration

	showHelp    bool
	showVersion bool
	showRelease bool
}

// parseFlags mirrors the teacher's flag+env config layer: flags parse
// first, environment variables only fill in flags the user did not set
// explicitly, and a validate() pass catches semantic mistakes before any
// device is opened.
func parseFlags(args []string) (*appConfig, error) {
	fs := flag.NewFlagSet("mdfu-tool", flag.ContinueOnError)
	cfg := &appConfig{}

	fs.BoolVar(&cfg.showHelp, "h", false, "Show help and exit")
	fs.BoolVar(&cfg.showHelp, "help", false, "Show help and exit")
	fs.BoolVar(&cfg.showVersion, "V", false, "Print version and exit")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&cfg.showRelease, "R", false, "Print release info and exit")
	fs.BoolVar(&cfg.showRelease, "release-info", false, "Print release info and exit")
	verbose := fs.String("v", "info", "Log level: error|warning|info|debug")
	fs.StringVar(verbose, "verbose", "info", "Log level: error|warning|info|debug")
	tool := fs.String("tool", "serial", "Tool: serial|network|spidev|i2cdev")
	image := fs.String("image", "", "Firmware image path (required for update)")
	serialDev := fs.String("serial-dev", "/dev/ttyUSB0", "Serial device path")
	baud := fs.Int("baud", 115200, "Serial baud rate")
	networkAddr := fs.String("network-addr", "", "Network tunnel address (host:port)")
	spiDev := fs.String("spi-dev", "/dev/spidev0.0", "spidev character device path")
	i2cDev := fs.String("i2c-dev", "/dev/i2c-1", "i2c-dev character device path")
	i2cAddr := fs.Int("i2c-addr", 0x65, "I2C 7-bit slave address")
	metricsAddr := fs.String("metrics-addr", "", "Metrics HTTP listen address (e.g. :9100); empty disables")
	logMetricsEvery := fs.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")
	retries := fs.Int("retries", 5, "Maximum send-and-receive attempts per exchange")
	cmdTimeout := fs.Duration("bootstrap-timeout", time.Second, "Checked to be > 0; not passed to the engine, which uses a fixed 1s timeout before client info is known")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	setFlags := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	positional := fs.Args()
	if len(positional) > 0 {
		cfg.action = positional[0]
	}

	cfg.tool = *tool
	cfg.image = *image
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.networkAddr = *networkAddr
	cfg.spiDev = *spiDev
	cfg.i2cDev = *i2cDev
	cfg.i2cAddr = *i2cAddr
	cfg.verbose = *verbose
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.retries = *retries
	cfg.cmdTimeout = *cmdTimeout

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		return nil, err
	}

	if cfg.showHelp || cfg.showVersion || cfg.showRelease {
		return cfg, nil
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate performs semantic checks only; it never opens a device.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.action {
	case "update", "client-info", "tools-help", "change-mode", "dump":
	case "":
		return errors.New("missing action (update|client-info|tools-help|change-mode|dump)")
	default:
		return fmt.Errorf("invalid action: %s", c.action)
	}
	switch c.tool {
	case "serial", "network", "spidev", "i2cdev":
	default:
		return fmt.Errorf("invalid tool: %s", c.tool)
	}
	switch c.verbose {
	case "error", "warning", "info", "debug":
	default:
		return fmt.Errorf("invalid verbosity: %s", c.verbose)
	}
	if c.action == "update" && c.image == "" {
		return errors.New("--image is required for the update action")
	}
	if c.tool == "network" && c.action != "tools-help" && c.networkAddr == "" {
		return errors.New("--network-addr is required when --tool=network")
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.retries <= 0 {
		return fmt.Errorf("retries must be > 0 (got %d)", c.retries)
	}
	if c.cmdTimeout <= 0 {
		return errors.New("bootstrap-timeout must be > 0")
	}
	return nil
}

// applyEnvOverrides maps MDFU_TOOL_* environment variables onto cfg,
// skipping any field whose flag was explicitly set.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["tool"]; !ok {
		if v, ok := get("MDFU_TOOL_TOOL"); ok && v != "" {
			c.tool = v
		}
	}
	if _, ok := set["image"]; !ok {
		if v, ok := get("MDFU_TOOL_IMAGE"); ok && v != "" {
			c.image = v
		}
	}
	if _, ok := set["serial-dev"]; !ok {
		if v, ok := get("MDFU_TOOL_SERIAL_DEV"); ok && v != "" {
			c.serialDev = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("MDFU_TOOL_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid MDFU_TOOL_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["network-addr"]; !ok {
		if v, ok := get("MDFU_TOOL_NETWORK_ADDR"); ok && v != "" {
			c.networkAddr = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("MDFU_TOOL_METRICS_ADDR"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("MDFU_TOOL_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid MDFU_TOOL_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["retries"]; !ok {
		if v, ok := get("MDFU_TOOL_RETRIES"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.retries = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid MDFU_TOOL_RETRIES: %w", err)
			}
		}
	}
	if _, ok := set["v"]; !ok {
		if _, ok := set["verbose"]; !ok {
			if v, ok := get("MDFU_TOOL_VERBOSE"); ok && v != "" {
				c.verbose = v
			}
		}
	}
	return firstErr
}
