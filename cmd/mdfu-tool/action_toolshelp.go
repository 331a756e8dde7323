package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mchp/mdfu-host/internal/mac"
)

func runToolsHelp(ctx context.Context) error {
	fmt.Println("available tools:")
	fmt.Println("  serial   - framed UART transport (--serial-dev, --baud)")
	fmt.Println("  network  - TCP tunnel with mDNS discovery (--network-addr)")
	fmt.Println("  spidev   - polled SPI transport (--spi-dev, linux only)")
	fmt.Println("  i2cdev   - polled I2C transport (--i2c-dev, --i2c-addr, linux only)")

	found, err := mac.Discover(ctx, 2*time.Second)
	if err != nil {
		fmt.Printf("mdns discovery unavailable: %v\n", err)
		return nil
	}
	if len(found) == 0 {
		fmt.Println("no network tunnel endpoints discovered via mDNS")
		return nil
	}
	fmt.Println("discovered network tunnel endpoints:")
	for _, f := range found {
		fmt.Printf("  %s at %s\n", f.Instance, f.Addr)
	}
	return nil
}
