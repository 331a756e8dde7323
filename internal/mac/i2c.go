//go:build linux

package mac

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/mchp/mdfu-host/internal/transport"
)

var _ transport.MAC = (*I2CDevMAC)(nil)

// i2cSlave is I2C_SLAVE from linux/i2c-dev.h: bind the fd to a 7-bit
// address for subsequent plain read()/write() calls.
const i2cSlave = 0x0703

// I2CDevMAC drives a Linux i2c-dev character device addressed to a single
// fixed 7-bit slave address.
type I2CDevMAC struct {
	path string
	addr int
	f    *os.File
}

// NewI2CDev constructs an I2CDevMAC for the given bus device path
// (e.g. /dev/i2c-1) and 7-bit slave address.
func NewI2CDev(path string, addr int) *I2CDevMAC {
	return &I2CDevMAC{path: path, addr: addr}
}

func (d *I2CDevMAC) Open() error {
	f, err := os.OpenFile(d.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.path, err)
	}
	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, d.addr); err != nil {
		_ = f.Close()
		return fmt.Errorf("bind i2c slave 0x%02X: %w", d.addr, err)
	}
	d.f = f
	return nil
}

func (d *I2CDevMAC) Close() error {
	if d.f == nil {
		return nil
	}
	return d.f.Close()
}

func (d *I2CDevMAC) Read(buf []byte) (int, error)  { return d.f.Read(buf) }
func (d *I2CDevMAC) Write(buf []byte) (int, error) { return d.f.Write(buf) }
