package transport

import (
	"fmt"
	"time"

	"github.com/mchp/mdfu-host/internal/metrics"
)

// I2C implements the polled I2C transport (§4.3): a half-duplex write
// followed by a length poll and a response poll, each a single fixed-size
// I2C block read, with an inter-transaction delay enforced before every
// exchange. Unlike SPI, a failed MAC write is not itself fatal — a NAK'd
// client is detected by the response-poll timeout instead.
type I2C struct {
	mac        MAC
	itd        time.Duration
	itdResetAt time.Time
}

// NewI2C constructs an I2C transport with a zero initial inter-transaction delay.
func NewI2C(mac MAC) *I2C { return &I2C{mac: mac} }

func (i *I2C) Open() error  { return i.mac.Open() }
func (i *I2C) Close() error { return i.mac.Close() }

// Ioctl supports InterTransactionDelay (arg: time.Duration or float64 seconds).
func (i *I2C) Ioctl(key IoctlKey, args ...any) error {
	if key != InterTransactionDelay || len(args) != 1 {
		return ErrIoctlNotSupported
	}
	switch v := args[0].(type) {
	case time.Duration:
		i.itd = v
	case float64:
		i.itd = time.Duration(v * float64(time.Second))
	default:
		return ErrIoctlNotSupported
	}
	return nil
}

func (i *I2C) waitITD() {
	if !i.itdResetAt.IsZero() {
		if wait := time.Until(i.itdResetAt); wait > 0 {
			time.Sleep(wait)
		}
	}
}

func (i *I2C) armITD() { i.itdResetAt = time.Now().Add(i.itd) }

// Write sends packet||CRC16_LE. A MAC-level write error (e.g. client NAK) is
// swallowed; the caller learns of a non-responsive client via the
// subsequent response-poll timeout instead.
func (i *I2C) Write(packet []byte) error {
	i.waitITD()
	frame := make([]byte, 0, len(packet)+2)
	frame = append(frame, packet...)
	frame = AppendCRC16(frame, packet)
	_, _ = i.mac.Write(frame)
	i.armITD()
	metrics.IncPacketsTx()
	return nil
}

// Read polls a 5-byte length frame ('L' len_le16 crc_le16) until it
// validates, then reads the 1+length response frame ('R' packet crc_le16).
func (i *I2C) Read(deadline time.Time) ([]byte, error) {
	length, err := i.pollLength(deadline)
	if err != nil {
		return nil, err
	}
	return i.pollResponse(deadline, length)
}

func (i *I2C) pollLength(deadline time.Time) (int, error) {
	buf := make([]byte, 5)
	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0, ErrTimeout
		}
		i.waitITD()
		n, err := i.mac.Read(buf)
		i.armITD()
		if err != nil {
			return 0, fmt.Errorf("i2c length poll: %w", err)
		}
		if n < 5 || buf[0] != 'L' {
			metrics.IncBusyPoll()
			continue
		}
		length := int(uint16(buf[1]) | uint16(buf[2])<<8)
		crc := uint16(buf[3]) | uint16(buf[4])<<8
		if CRC16(buf[1:3]) != crc {
			metrics.IncChecksumFailure()
			return 0, ErrChecksumMismatch
		}
		if length < 2 {
			metrics.IncError(metrics.ErrFrameTooShort)
			return 0, ErrShortResponse
		}
		return length, nil
	}
}

func (i *I2C) pollResponse(deadline time.Time, length int) ([]byte, error) {
	buf := make([]byte, 1+length)
	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		i.waitITD()
		n, err := i.mac.Read(buf)
		i.armITD()
		if err != nil {
			return nil, fmt.Errorf("i2c response poll: %w", err)
		}
		if n < 1+length || buf[0] != 'R' {
			metrics.IncBusyPoll()
			continue
		}
		body := buf[1 : 1+length-2]
		crc := uint16(buf[1+length-2]) | uint16(buf[1+length-1])<<8
		if CRC16(body) != crc {
			metrics.IncChecksumFailure()
			return nil, ErrChecksumMismatch
		}
		metrics.IncPacketsRx()
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	}
}
