package main

import (
	"fmt"

	"github.com/mchp/mdfu-host/internal/mdfu"
	"github.com/mchp/mdfu-host/internal/transport"
)

const defaultMaxCmdData = 1024

func buildTransport(cfg *appConfig) (transport.Transport, error) {
	switch cfg.tool {
	case "serial":
		return newSerialTransport(cfg)
	case "network":
		return newNetworkTransport(cfg)
	case "spidev":
		return newSPIDevTransport(cfg)
	case "i2cdev":
		return newI2CDevTransport(cfg)
	default:
		return nil, fmt.Errorf("unknown tool %q", cfg.tool)
	}
}

func engineConfig(cfg *appConfig) mdfu.Config {
	c := mdfu.DefaultConfig()
	c.Retries = cfg.retries
	return c
}
