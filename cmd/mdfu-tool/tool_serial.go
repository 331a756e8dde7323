package main

import (
	"github.com/mchp/mdfu-host/internal/mac"
	"github.com/mchp/mdfu-host/internal/transport"
)

func newSerialTransport(cfg *appConfig) (transport.Transport, error) {
	m := mac.NewSerial(cfg.serialDev, cfg.baud)
	return transport.NewSerial(m), nil
}
