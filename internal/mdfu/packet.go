// Package mdfu implements the MDFU packet data model and the protocol
// engine that drives sequenced command/response exchanges over a
// transport.Transport.
package mdfu

import "fmt"

// CommandCode identifies an MDFU command packet.
type CommandCode uint8

const (
	GetClientInfo  CommandCode = 1
	StartTransfer  CommandCode = 2
	WriteChunk     CommandCode = 3
	GetImageState  CommandCode = 4
	EndTransfer    CommandCode = 5

	maxCommandCode = EndTransfer
)

func (c CommandCode) String() string {
	switch c {
	case GetClientInfo:
		return "GET_CLIENT_INFO"
	case StartTransfer:
		return "START_TRANSFER"
	case WriteChunk:
		return "WRITE_CHUNK"
	case GetImageState:
		return "GET_IMAGE_STATE"
	case EndTransfer:
		return "END_TRANSFER"
	default:
		return fmt.Sprintf("CommandCode(%d)", uint8(c))
	}
}

// StatusCode identifies an MDFU status packet.
type StatusCode uint8

const (
	Success            StatusCode = 1
	NotSupported       StatusCode = 2
	NotAuthorized      StatusCode = 3
	NotExecuted        StatusCode = 4
	TransferFailure    StatusCode = 5
	AbortFileTransfer  StatusCode = 6

	maxStatusCode = AbortFileTransfer
)

func (s StatusCode) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case NotSupported:
		return "NOT_SUPPORTED"
	case NotAuthorized:
		return "NOT_AUTHORIZED"
	case NotExecuted:
		return "NOT_EXECUTED"
	case TransferFailure:
		return "TRANSFER_FAILURE"
	case AbortFileTransfer:
		return "ABORT_FILE_TRANSFER"
	default:
		return fmt.Sprintf("StatusCode(%d)", uint8(s))
	}
}

// maxSequence is the modulus of the 5-bit sequence counter.
const maxSequence = 32

// CommandPacket is the host->client half of the packet union.
type CommandPacket struct {
	Sync     bool
	Sequence uint8
	Command  CommandCode
	Payload  []byte
}

// StatusPacket is the client->host half of the packet union.
type StatusPacket struct {
	Resend   bool
	Sequence uint8
	Status   StatusCode
	Payload  []byte
}

// EncodeCommand writes the header+payload wire bytes for p into dst.
func EncodeCommand(dst []byte, p CommandPacket) []byte {
	header := p.Sequence & 0x1F
	if p.Sync {
		header |= 0x80
	}
	dst = append(dst, header, byte(p.Command))
	dst = append(dst, p.Payload...)
	return dst
}

// DecodeStatus parses a status packet from raw (header+command+payload,
// with any transport-level framing/CRC already stripped).
func DecodeStatus(raw []byte) (StatusPacket, error) {
	if len(raw) < 2 {
		return StatusPacket{}, &ErrInvalidStatus{Code: 0}
	}
	header := raw[0]
	code := StatusCode(raw[1])
	if code == 0 || code > maxStatusCode {
		return StatusPacket{}, &ErrInvalidStatus{Code: raw[1]}
	}
	return StatusPacket{
		Resend:   header&0x40 != 0,
		Sequence: header & 0x1F,
		Status:   code,
		Payload:  raw[2:],
	}, nil
}

// DecodeCommand parses a command packet from raw (mirrors DecodeStatus; used
// by tests and any loopback/simulator tooling).
func DecodeCommand(raw []byte) (CommandPacket, error) {
	if len(raw) < 2 {
		return CommandPacket{}, &ErrInvalidCommand{Code: 0}
	}
	header := raw[0]
	code := CommandCode(raw[1])
	if code == 0 || code > maxCommandCode {
		return CommandPacket{}, &ErrInvalidCommand{Code: raw[1]}
	}
	return CommandPacket{
		Sync:     header&0x80 != 0,
		Sequence: header & 0x1F,
		Command:  code,
		Payload:  raw[2:],
	}, nil
}
