package mdfu

import (
	"errors"
	"fmt"

	"github.com/mchp/mdfu-host/internal/metrics"
)

// ErrInvalidCommand is returned when a command byte does not match any
// CommandCode.
type ErrInvalidCommand struct{ Code byte }

func (e *ErrInvalidCommand) Error() string {
	return fmt.Sprintf("mdfu: invalid command code 0x%02X", e.Code)
}

// ErrInvalidStatus is returned when a status byte does not match any
// StatusCode.
type ErrInvalidStatus struct{ Code byte }

func (e *ErrInvalidStatus) Error() string {
	return fmt.Sprintf("mdfu: invalid status code 0x%02X", e.Code)
}

// maxCauseByte bounds the cause-byte payload carried by NOT_EXECUTED and
// ABORT_FILE_TRANSFER responses; anything at or above it is not a defined
// cause and is treated as a decode failure rather than surfaced to callers.
const maxCauseByte = 0x20

// ProtocolError reports a terminal non-SUCCESS status returned by the
// client. CauseByte is only meaningful when Status is NotExecuted or
// AbortFileTransfer, per the first payload byte convention.
type ProtocolError struct {
	Status    StatusCode
	CauseByte byte
	HasCause  bool
}

func (e *ProtocolError) Error() string {
	if e.HasCause {
		return fmt.Sprintf("mdfu: protocol error: %s (cause 0x%02X)", e.Status, e.CauseByte)
	}
	return fmt.Sprintf("mdfu: protocol error: %s", e.Status)
}

// newProtocolError builds a ProtocolError from a decoded status packet,
// extracting and validating the cause byte for statuses that carry one.
func newProtocolError(sp StatusPacket) error {
	pe := &ProtocolError{Status: sp.Status}
	switch sp.Status {
	case NotExecuted, AbortFileTransfer:
		if len(sp.Payload) == 0 {
			return pe
		}
		cause := sp.Payload[0]
		if cause >= maxCauseByte {
			return &ErrClientInfoDecode{Reason: fmt.Sprintf("invalid cause byte 0x%02X", cause)}
		}
		pe.CauseByte = cause
		pe.HasCause = true
	}
	return pe
}

// ErrClientInfoDecode reports a malformed client-info TLV stream.
type ErrClientInfoDecode struct{ Reason string }

func (e *ErrClientInfoDecode) Error() string {
	return fmt.Sprintf("mdfu: client info decode error: %s", e.Reason)
}

// ErrVersionMismatch reports a client protocol version newer than this host
// implements.
type ErrVersionMismatch struct {
	Client ProtocolVersion
	Host   ProtocolVersion
}

func (e *ErrVersionMismatch) Error() string {
	return fmt.Sprintf("mdfu: client protocol version %s is newer than host version %s", e.Client, e.Host)
}

// ErrBufferTooSmall reports a client buffer_size exceeding MaxCmdData.
type ErrBufferTooSmall struct {
	BufferSize uint16
	MaxCmdData int
}

func (e *ErrBufferTooSmall) Error() string {
	return fmt.Sprintf("mdfu: client buffer_size %d exceeds host maximum %d", e.BufferSize, e.MaxCmdData)
}

// IoError wraps a terminal transport-layer failure raised after the engine's
// retry budget is exhausted.
type IoError struct {
	Op   string
	Err  error
}

func (e *IoError) Error() string { return fmt.Sprintf("mdfu: io error during %s: %v", e.Op, e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

// classifyError maps an engine-surfaced error to the metrics error-label
// taxonomy, mirroring the recoverable/terminal split in the transport layer.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	var invCmd *ErrInvalidCommand
	var invStatus *ErrInvalidStatus
	var protoErr *ProtocolError
	var ciErr *ErrClientInfoDecode
	var verErr *ErrVersionMismatch
	var bufErr *ErrBufferTooSmall
	var ioErr *IoError
	switch {
	case errors.As(err, &invCmd):
		return metrics.ErrInvalidCommand
	case errors.As(err, &invStatus):
		return metrics.ErrInvalidStatus
	case errors.As(err, &protoErr):
		return metrics.ErrProtocol
	case errors.As(err, &ciErr):
		return metrics.ErrClientInfo
	case errors.As(err, &verErr):
		return metrics.ErrVersionMismatch
	case errors.As(err, &bufErr):
		return metrics.ErrBufferTooSmall
	case errors.As(err, &ioErr):
		return metrics.ErrIO
	default:
		return metrics.ErrIO
	}
}
