//go:build linux

package main

import (
	"github.com/mchp/mdfu-host/internal/mac"
	"github.com/mchp/mdfu-host/internal/transport"
)

func newI2CDevTransport(cfg *appConfig) (transport.Transport, error) {
	m := mac.NewI2CDev(cfg.i2cDev, cfg.i2cAddr)
	return transport.NewI2C(m), nil
}
