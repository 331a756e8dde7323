package mdfu

import (
	"context"
	"fmt"
	"time"

	"github.com/mchp/mdfu-host/internal/metrics"
	"github.com/mchp/mdfu-host/internal/transport"
)

// HostVersion is the protocol version this host implementation supports.
// A client reporting a strictly newer version is rejected at discovery time.
var HostVersion = ProtocolVersion{Major: 1, Minor: 0, Patch: 0}

// Config bounds the engine's resource usage and retry behavior.
type Config struct {
	MaxCmdData int // default command payload ceiling, bytes
	MaxRspData int // default response payload ceiling, bytes
	Retries    int // maximum send-and-receive attempts per exchange
}

// DefaultConfig mirrors the build-time defaults named in the protocol notes.
func DefaultConfig() Config {
	return Config{MaxCmdData: 1024, MaxRspData: 30, Retries: 5}
}

// bootstrapTimeout is used for GET_CLIENT_INFO, before the client's own
// timeout table is known.
const bootstrapTimeout = 1 * time.Second

// bootstrapITD is applied to ITD-capable transports before GET_CLIENT_INFO,
// before the client's reported delay is known.
const bootstrapITD = 10 * time.Millisecond

// sessionState tracks the engine's place in the open/close lifecycle.
type sessionState int

const (
	stateClosed sessionState = iota
	stateOpen
	stateClientKnown
	stateTransferring
	stateFinalizing
)

// ImageReader supplies firmware image bytes a chunk at a time. A short read
// (n < len(buf)) signals the final chunk; a read returning 0, nil signals no
// more data at all.
type ImageReader interface {
	Read(buf []byte) (int, error)
	Close() error
}

// Engine drives one MDFU session over a transport.Transport.
type Engine struct {
	t      transport.Transport
	cfg    Config
	state  sessionState
	seq    uint8
	client ClientInfo
	trace  []ExchangeRecord
}

// ExchangeRecord is one logged send-and-receive attempt, kept for the
// dump action's offline trace.
type ExchangeRecord struct {
	Sequence uint8
	Command  CommandCode
	Resend   bool
	Status   StatusCode
	Err      error
}

// Trace returns the exchanges recorded so far this session, oldest first.
func (e *Engine) Trace() []ExchangeRecord { return e.trace }

// NewEngine constructs an Engine bound to t, closed until Open is called.
func NewEngine(t transport.Transport, cfg Config) *Engine {
	return &Engine{t: t, cfg: cfg, state: stateClosed}
}

// Open opens the underlying transport and performs the initial
// GET_CLIENT_INFO exchange, validating the client's reported protocol
// version and buffer size before returning.
func (e *Engine) Open(ctx context.Context) (ClientInfo, error) {
	if err := e.t.Open(); err != nil {
		return ClientInfo{}, &IoError{Op: "open", Err: err}
	}
	e.state = stateOpen
	e.seq = 0

	_ = e.t.Ioctl(transport.InterTransactionDelay, bootstrapITD)

	resp, err := e.sendAndReceive(ctx, CommandPacket{Sync: true, Command: GetClientInfo}, bootstrapTimeout)
	if err != nil {
		_ = e.close()
		return ClientInfo{}, err
	}

	info, err := DecodeClientInfo(resp.Payload)
	if err != nil {
		_ = e.close()
		metrics.IncError(classifyError(err))
		return ClientInfo{}, err
	}

	if info.Version.Compare(HostVersion) > 0 {
		_ = e.close()
		verErr := &ErrVersionMismatch{Client: info.Version, Host: HostVersion}
		metrics.IncError(classifyError(verErr))
		return ClientInfo{}, verErr
	}
	if int(info.BufferSize) > e.cfg.MaxCmdData {
		_ = e.close()
		bufErr := &ErrBufferTooSmall{BufferSize: info.BufferSize, MaxCmdData: e.cfg.MaxCmdData}
		metrics.IncError(classifyError(bufErr))
		return ClientInfo{}, bufErr
	}

	_ = e.t.Ioctl(transport.InterTransactionDelay, time.Duration(info.InterTransactionDelay)*time.Nanosecond)

	e.client = info
	e.state = stateClientKnown
	return info, nil
}

// Close tears down the transport. Safe to call more than once.
func (e *Engine) Close() error {
	return e.close()
}

func (e *Engine) close() error {
	if e.state == stateClosed {
		return nil
	}
	e.state = stateClosed
	if err := e.t.Close(); err != nil {
		return &IoError{Op: "close", Err: err}
	}
	return nil
}

// RunUpdate transfers the full image from r to the client: START_TRANSFER,
// repeated WRITE_CHUNK, GET_IMAGE_STATE, END_TRANSFER.
func (e *Engine) RunUpdate(ctx context.Context, r ImageReader) error {
	if e.state != stateClientKnown {
		return fmt.Errorf("mdfu: RunUpdate called out of sequence (state %d)", e.state)
	}
	start := time.Now()
	if err := e.runUpdate(ctx, r); err != nil {
		_ = e.close()
		return err
	}
	metrics.ObserveUpdateDuration(time.Since(start).Seconds())
	return nil
}

func (e *Engine) runUpdate(ctx context.Context, r ImageReader) error {
	e.state = stateTransferring

	if _, err := e.sendAndReceive(ctx, CommandPacket{Command: StartTransfer}, e.timeoutFor(StartTransfer)); err != nil {
		return err
	}

	chunk := make([]byte, e.client.BufferSize)
	for {
		n, err := r.Read(chunk)
		if err != nil {
			return &IoError{Op: "image read", Err: err}
		}
		if n == 0 {
			break
		}
		if _, err := e.sendAndReceive(ctx, CommandPacket{Command: WriteChunk, Payload: chunk[:n]}, e.timeoutFor(WriteChunk)); err != nil {
			return err
		}
		metrics.AddChunk(n)
		if n < len(chunk) {
			break
		}
	}

	e.state = stateFinalizing

	stateResp, err := e.sendAndReceive(ctx, CommandPacket{Command: GetImageState}, e.timeoutFor(GetImageState))
	if err != nil {
		return err
	}
	const imageStateValid = 1
	if len(stateResp.Payload) == 0 || stateResp.Payload[0] != imageStateValid {
		return &ProtocolError{Status: TransferFailure}
	}

	if _, err := e.sendAndReceive(ctx, CommandPacket{Command: EndTransfer}, e.timeoutFor(EndTransfer)); err != nil {
		return err
	}

	e.state = stateClientKnown
	return nil
}

func (e *Engine) timeoutFor(cc CommandCode) time.Duration {
	if t, ok := e.client.TimeoutFor(cc); ok {
		return time.Duration(t) * 100 * time.Millisecond
	}
	return bootstrapTimeout
}

// sendAndReceive implements the packet-layer retry algorithm: a sync command
// resets the sequence counter; a resend response makes the next attempt
// write the same frame again with the current sequence. Every attempt
// (resend, write error, read error, or decode error) consumes one of the
// engine's retry budget.
func (e *Engine) sendAndReceive(ctx context.Context, cmd CommandPacket, timeout time.Duration) (StatusPacket, error) {
	if cmd.Sync {
		e.seq = 0
	}
	cmd.Sequence = e.seq

	frame := EncodeCommand(nil, cmd)

	var lastErr error
	for attempt := 0; attempt < e.cfg.Retries; attempt++ {
		if attempt > 0 {
			metrics.IncRetry()
		}
		if err := ctx.Err(); err != nil {
			return StatusPacket{}, &IoError{Op: "send_and_receive", Err: err}
		}

		if err := e.t.Write(frame); err != nil {
			lastErr = err
			continue
		}

		raw, err := e.t.Read(time.Now().Add(timeout))
		if err != nil {
			lastErr = err
			continue
		}

		resp, err := DecodeStatus(raw)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.Resend {
			metrics.IncResend()
			e.trace = append(e.trace, ExchangeRecord{Sequence: cmd.Sequence, Command: cmd.Command, Resend: true, Status: resp.Status})
			continue
		}

		e.seq = (e.seq + 1) % maxSequence
		e.trace = append(e.trace, ExchangeRecord{Sequence: cmd.Sequence, Command: cmd.Command, Status: resp.Status})

		if resp.Status != Success {
			protoErr := newProtocolError(resp)
			metrics.IncError(classifyError(protoErr))
			return resp, protoErr
		}
		return resp, nil
	}

	ioErr := &IoError{Op: "send_and_receive", Err: lastErr}
	metrics.IncError(classifyError(ioErr))
	e.trace = append(e.trace, ExchangeRecord{Sequence: cmd.Sequence, Command: cmd.Command, Err: ioErr})
	return StatusPacket{}, ioErr
}
