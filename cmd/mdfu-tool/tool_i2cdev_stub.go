//go:build !linux

package main

import (
	"fmt"

	"github.com/mchp/mdfu-host/internal/transport"
)

func newI2CDevTransport(cfg *appConfig) (transport.Transport, error) {
	return nil, fmt.Errorf("i2cdev tool unsupported on this platform")
}
