//go:build linux

package main

import (
	"github.com/mchp/mdfu-host/internal/mac"
	"github.com/mchp/mdfu-host/internal/transport"
)

const defaultSPIMode = 0
const defaultSPISpeedHz = 500000

func newSPIDevTransport(cfg *appConfig) (transport.Transport, error) {
	m := mac.NewSPIDev(cfg.spiDev, defaultSPIMode, defaultSPISpeedHz)
	return transport.NewSPI(m), nil
}
