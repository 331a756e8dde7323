package main

import (
	"time"

	"github.com/mchp/mdfu-host/internal/mac"
	"github.com/mchp/mdfu-host/internal/transport"
)

const networkHandshakeTimeout = 3 * time.Second

// newNetworkTransport wraps the TCP tunnel MAC in the same serial framing
// the serial tool uses, with the buffered single-write send: the tunnel
// carries an already-framed byte stream, it just isn't a physical UART.
func newNetworkTransport(cfg *appConfig) (transport.Transport, error) {
	m := mac.NewNetwork(cfg.networkAddr, networkHandshakeTimeout)
	return transport.NewBufferedSerial(m, defaultMaxCmdData), nil
}
