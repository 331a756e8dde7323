//go:build linux

package mac

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mchp/mdfu-host/internal/transport"
)

// spidev ioctl numbers and the spi_ioc_transfer layout, from
// linux/spi/spidev.h. x/sys/unix does not wrap these (they're
// device-specific, not general syscalls), so the raw ioctl is issued by
// hand the same way internal/socketcan's Device does for AF_CAN sockets.
const (
	spiIOCWrMode        = 0x40016b01
	spiIOCWrMaxSpeedHz  = 0x40046b04
	spiIOCWrBitsPerWord = 0x40016b03
	spiIOCMessage1      = 0x40206b00 // SPI_IOC_MESSAGE(1)
)

type spiIOCTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	pad         uint16
}

// SPIDevMAC drives a Linux spidev character device in full-duplex mode.
type SPIDevMAC struct {
	path        string
	mode        uint8
	speedHz     uint32
	bitsPerWord uint8
	f           *os.File
}

var _ transport.SPIMAC = (*SPIDevMAC)(nil)

// NewSPIDev constructs a SPIDevMAC for the given character device path
// (e.g. /dev/spidev0.0).
func NewSPIDev(path string, mode uint8, speedHz uint32) *SPIDevMAC {
	return &SPIDevMAC{path: path, mode: mode, speedHz: speedHz, bitsPerWord: 8}
}

func (s *SPIDevMAC) Open() error {
	f, err := os.OpenFile(s.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	if err := unix.IoctlSetInt(int(f.Fd()), spiIOCWrMode, int(s.mode)); err != nil {
		_ = f.Close()
		return fmt.Errorf("set spi mode: %w", err)
	}
	if err := unix.IoctlSetInt(int(f.Fd()), spiIOCWrBitsPerWord, int(s.bitsPerWord)); err != nil {
		_ = f.Close()
		return fmt.Errorf("set spi bits per word: %w", err)
	}
	if err := unix.IoctlSetInt(int(f.Fd()), spiIOCWrMaxSpeedHz, int(s.speedHz)); err != nil {
		_ = f.Close()
		return fmt.Errorf("set spi speed: %w", err)
	}
	s.f = f
	return nil
}

func (s *SPIDevMAC) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}

// Transfer performs one full-duplex SPI exchange: len(tx) bytes are clocked
// out while an equal number are clocked in.
func (s *SPIDevMAC) Transfer(tx []byte) ([]byte, error) {
	rx := make([]byte, len(tx))
	xfer := spiIOCTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      uint32(len(tx)),
		speedHz:     s.speedHz,
		bitsPerWord: s.bitsPerWord,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, s.f.Fd(), uintptr(spiIOCMessage1), uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		return nil, fmt.Errorf("spi transfer: %w", errno)
	}
	return rx, nil
}
