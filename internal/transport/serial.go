package transport

import (
	"fmt"
	"time"

	"github.com/mchp/mdfu-host/internal/logging"
	"github.com/mchp/mdfu-host/internal/metrics"
)

// maxFrameBytes bounds the decoded (post-escape) payload+CRC a Serial
// transport will accumulate before giving up with ErrBufferOverflow.
const maxFrameBytes = 2 + maxCmdRsp

// maxCmdRsp is sized for the larger of MAX_CMD_DATA/MAX_RSP_DATA plus header;
// the serial transport only ever carries one packet at a time so a single
// generous bound covers both directions.
const maxCmdRsp = 1024 + 2

// Serial is the default (streaming) framed serial transport: it escapes and
// writes bytes to the MAC one at a time on send, and decodes bytes
// on-the-fly as they arrive on receive, per spec's "streaming is the
// default" note.
type Serial struct {
	mac    MAC
	dec    *frameDecoder
	escBuf []byte
}

// NewSerial constructs a Serial transport over mac.
func NewSerial(mac MAC) *Serial {
	return &Serial{mac: mac, dec: newFrameDecoder(maxFrameBytes), escBuf: make([]byte, 0, 2)}
}

func (s *Serial) Open() error  { return s.mac.Open() }
func (s *Serial) Close() error { return s.mac.Close() }

// Ioctl: the serial transport has no control surface.
func (s *Serial) Ioctl(key IoctlKey, args ...any) error { return ErrIoctlNotSupported }

// Write streams START, escaped payload, escaped CRC, END through the MAC.
func (s *Serial) Write(packet []byte) error {
	if _, err := s.mac.Write([]byte{frameStart}); err != nil {
		return fmt.Errorf("serial write start: %w", err)
	}
	crc := CRC16(packet)
	trailer := []byte{byte(crc), byte(crc >> 8)}
	for _, b := range packet {
		if err := s.writeEscaped(b); err != nil {
			return err
		}
	}
	for _, b := range trailer {
		if err := s.writeEscaped(b); err != nil {
			return err
		}
	}
	if _, err := s.mac.Write([]byte{frameEnd}); err != nil {
		return fmt.Errorf("serial write end: %w", err)
	}
	metrics.IncPacketsTx()
	return nil
}

func (s *Serial) writeEscaped(b byte) error {
	out := escapeByte(s.escBuf[:0], b)
	if _, err := s.mac.Write(out); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// Read implements the §4.1 receive contract: discard until START, decode
// on-the-fly until END or the deadline/limit, then validate and strip CRC.
func (s *Serial) Read(deadline time.Time) ([]byte, error) {
	s.dec.reset()
	one := make([]byte, 1)
	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		n, err := s.mac.Read(one)
		if err != nil || n == 0 {
			continue
		}
		res, badByte := s.dec.feed(one[0])
		switch res {
		case decodeContinue:
			continue
		case decodeDone:
			return s.finish()
		case decodeOverflow:
			logging.L().Debug("serial_rx_overflow")
			metrics.IncError(metrics.ErrBufferOverflow)
			return nil, ErrBufferOverflow
		case decodeBadEscape:
			logging.L().Debug("serial_rx_bad_escape", "byte", badByte)
			metrics.IncFramingError()
			return nil, &ErrFraming{After: badByte}
		}
	}
}

func (s *Serial) finish() ([]byte, error) {
	buf := s.dec.buf
	if len(buf) < 3 {
		metrics.IncError(metrics.ErrFrameTooShort)
		return nil, ErrFrameTooShort
	}
	payload := buf[:len(buf)-2]
	wantCRC := uint16(buf[len(buf)-2]) | uint16(buf[len(buf)-1])<<8
	if CRC16(payload) != wantCRC {
		metrics.IncChecksumFailure()
		return nil, ErrChecksumMismatch
	}
	metrics.IncPacketsRx()
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// BufferedSerial is the alternative send strategy from §4.1: the whole
// encoded frame is built in a per-session scratch buffer sized for the
// worst case (1 + 2*(N+2) + 1) and written with a single MAC call. Receive
// behaves identically to Serial.
type BufferedSerial struct {
	*Serial
	scratch []byte
}

// NewBufferedSerial constructs a buffered-send variant over mac, sizing the
// scratch buffer for payloads up to maxPayload bytes.
func NewBufferedSerial(mac MAC, maxPayload int) *BufferedSerial {
	worstCase := 1 + 2*(maxPayload+2) + 1
	return &BufferedSerial{Serial: NewSerial(mac), scratch: make([]byte, 0, worstCase)}
}

func (b *BufferedSerial) Write(packet []byte) error {
	frame := encodeFrame(b.scratch[:0], packet)
	if _, err := b.mac.Write(frame); err != nil {
		return fmt.Errorf("buffered serial write: %w", err)
	}
	metrics.IncPacketsTx()
	return nil
}
