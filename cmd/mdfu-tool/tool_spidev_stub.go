//go:build !linux

package main

import (
	"fmt"

	"github.com/mchp/mdfu-host/internal/transport"
)

func newSPIDevTransport(cfg *appConfig) (transport.Transport, error) {
	return nil, fmt.Errorf("spidev tool unsupported on this platform")
}
