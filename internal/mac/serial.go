// Package mac provides the concrete physical-access implementations the
// transport layer is built on: a serial port, a SPI device, an I2C device,
// and a TCP-tunnel MAC with mDNS discovery.
package mac

import (
	"time"

	"github.com/tarm/serial"
)

// SerialMAC wraps github.com/tarm/serial for use as a transport.MAC.
type SerialMAC struct {
	name string
	baud int
	port *serial.Port
}

// NewSerial constructs a SerialMAC bound to a device name and baud rate.
// The port is not opened until Open is called.
func NewSerial(name string, baud int) *SerialMAC {
	return &SerialMAC{name: name, baud: baud}
}

func (s *SerialMAC) Open() error {
	cfg := &serial.Config{Name: s.name, Baud: s.baud, ReadTimeout: 50 * time.Millisecond}
	p, err := serial.OpenPort(cfg)
	if err != nil {
		return err
	}
	s.port = p
	return nil
}

func (s *SerialMAC) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}

func (s *SerialMAC) Read(buf []byte) (int, error) { return s.port.Read(buf) }

func (s *SerialMAC) Write(buf []byte) (int, error) { return s.port.Write(buf) }
