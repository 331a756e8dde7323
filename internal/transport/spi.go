package transport

import (
	"fmt"
	"time"

	"github.com/mchp/mdfu-host/internal/metrics"
)

// SPIMAC is a full-duplex exchange: every byte clocked out also clocks in a
// byte from the client. spidev's SPI_IOC_MESSAGE ioctl is exactly this
// shape, so the MAC layer exposes it directly rather than forcing a
// separate write-then-read pair that would desynchronize the clock.
type SPIMAC interface {
	Open() error
	Close() error
	// Transfer clocks out tx and returns the simultaneously clocked-in bytes.
	Transfer(tx []byte) (rx []byte, err error)
}

const (
	spiCmdPrefix  = 0x11
	spiPollPrefix = 0x55
)

// SPI implements the polled SPI transport (§4.2): a command write followed
// by a length poll and a response poll, with an inter-transaction delay
// enforced before every exchange.
type SPI struct {
	mac          SPIMAC
	itd          time.Duration
	itdResetAt   time.Time
	maxRspLen    int
}

// defaultMaxRspLen mirrors the engine's default MAX_RSP_DATA (§6); callers
// driving a build with a different configured maximum should use
// NewSPIWithMaxResponse instead.
const defaultMaxRspLen = 30

// NewSPI constructs an SPI transport with a zero initial inter-transaction
// delay (set via Ioctl once client info is known, per §4.4 step 3).
func NewSPI(mac SPIMAC) *SPI { return NewSPIWithMaxResponse(mac, defaultMaxRspLen) }

// NewSPIWithMaxResponse is NewSPI with an explicit MAX_RSP_DATA bound, used
// to reject a client-advertised length poll that exceeds the host's
// configured response buffer before allocating for it.
func NewSPIWithMaxResponse(mac SPIMAC, maxRspLen int) *SPI {
	return &SPI{mac: mac, maxRspLen: maxRspLen}
}

func (s *SPI) Open() error  { return s.mac.Open() }
func (s *SPI) Close() error { return s.mac.Close() }

// Ioctl supports InterTransactionDelay (arg: time.Duration or float64 seconds).
func (s *SPI) Ioctl(key IoctlKey, args ...any) error {
	if key != InterTransactionDelay || len(args) != 1 {
		return ErrIoctlNotSupported
	}
	switch v := args[0].(type) {
	case time.Duration:
		s.itd = v
	case float64:
		s.itd = time.Duration(v * float64(time.Second))
	default:
		return ErrIoctlNotSupported
	}
	return nil
}

// waitITD blocks until at least itd has elapsed since the previous exchange;
// armITD re-arms the timer once the exchange has completed.
func (s *SPI) waitITD() {
	if !s.itdResetAt.IsZero() {
		if wait := time.Until(s.itdResetAt); wait > 0 {
			time.Sleep(wait)
		}
	}
}

func (s *SPI) armITD() { s.itdResetAt = time.Now().Add(s.itd) }

// Write sends one command frame: 0x11 || packet || CRC16_LE(packet).
func (s *SPI) Write(packet []byte) error {
	s.waitITD()
	frame := make([]byte, 0, 1+len(packet)+2)
	frame = append(frame, spiCmdPrefix)
	frame = append(frame, packet...)
	frame = AppendCRC16(frame, packet)
	_, err := s.mac.Transfer(frame)
	s.armITD()
	if err != nil {
		return fmt.Errorf("spi write: %w", err)
	}
	metrics.IncPacketsTx()
	return nil
}

// Read implements the two-phase poll: a length poll followed by a response
// poll, each retried against busy frames until deadline.
func (s *SPI) Read(deadline time.Time) ([]byte, error) {
	length, err := s.pollLength(deadline)
	if err != nil {
		return nil, err
	}
	return s.pollResponse(deadline, length)
}

// pollLength transmits the length-poll probe until a LEN frame is seen.
func (s *SPI) pollLength(deadline time.Time) (int, error) {
	probe := make([]byte, 1+3+2+2)
	probe[0] = spiPollPrefix
	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0, ErrTimeout
		}
		s.waitITD()
		rx, err := s.mac.Transfer(probe)
		s.armITD()
		if err != nil {
			return 0, fmt.Errorf("spi length poll: %w", err)
		}
		if len(rx) < 8 || rx[1] != 'L' || rx[2] != 'E' || rx[3] != 'N' {
			metrics.IncBusyPoll()
			continue
		}
		length := int(uint16(rx[4]) | uint16(rx[5])<<8)
		crc := uint16(rx[6]) | uint16(rx[7])<<8
		if CRC16(rx[4:6]) != crc {
			metrics.IncChecksumFailure()
			return 0, ErrChecksumMismatch
		}
		if length < 2 {
			metrics.IncError(metrics.ErrFrameTooShort)
			return 0, ErrShortResponse
		}
		if length-2 > s.maxRspLen {
			metrics.IncError(metrics.ErrBufferOverflow)
			return 0, ErrOversizeResponse
		}
		return length, nil
	}
}

// pollResponse transmits the response-poll probe (sized for length) until
// an RSP frame is seen.
func (s *SPI) pollResponse(deadline time.Time, length int) ([]byte, error) {
	probe := make([]byte, 1+3+length)
	probe[0] = spiPollPrefix
	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		s.waitITD()
		rx, err := s.mac.Transfer(probe)
		s.armITD()
		if err != nil {
			return nil, fmt.Errorf("spi response poll: %w", err)
		}
		if len(rx) < 4+length || rx[1] != 'R' || rx[2] != 'S' || rx[3] != 'P' {
			metrics.IncBusyPoll()
			continue
		}
		body := rx[4 : 4+length-2]
		crc := uint16(rx[4+length-2]) | uint16(rx[4+length-1])<<8
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
