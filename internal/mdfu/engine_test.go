package mdfu

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mchp/mdfu-host/internal/transport"
)

// fakeTransport is a scripted in-memory transport.Transport used to drive
// the engine through exact wire sequences without any real I/O.
type fakeTransport struct {
	writes     [][]byte
	responses  [][]byte // scripted non-resend responses, consumed in order
	idx        int
	resendSeq  int // sequence number to resend on, -1 disables
	resendLeft int // number of resend responses to emit before accepting
	writeErrOn int // 1-indexed write call to fail, 0 disables
	writeCalls int
	readErrOn  int // 1-indexed read call to fail, 0 disables
	readCalls  int
}

func newFakeTransport(responses [][]byte) *fakeTransport {
	return &fakeTransport{responses: responses, resendSeq: -1}
}

func (f *fakeTransport) Open() error  { return nil }
func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) Write(packet []byte) error {
	f.writeCalls++
	if f.writeErrOn != 0 && f.writeCalls == f.writeErrOn {
		return errors.New("injected write failure")
	}
	f.writes = append(f.writes, append([]byte(nil), packet...))
	return nil
}

func (f *fakeTransport) Read(deadline time.Time) ([]byte, error) {
	f.readCalls++
	if f.readErrOn != 0 && f.readCalls == f.readErrOn {
		return nil, errors.New("injected read failure")
	}
	if f.resendSeq >= 0 && f.resendLeft > 0 {
		cmd, _ := DecodeCommand(f.writes[len(f.writes)-1])
		if int(cmd.Sequence) == f.resendSeq {
			f.resendLeft--
			return []byte{0x40 | cmd.Sequence, byte(Success)}, nil
		}
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no more scripted responses")
	}
	r := f.responses[f.idx]
	f.idx++
	return r, nil
}

func (f *fakeTransport) Ioctl(key transport.IoctlKey, args ...any) error {
	return transport.ErrIoctlNotSupported
}

// itdRecordingTransport wraps fakeTransport but accepts the
// InterTransactionDelay ioctl and records every pushed value, to verify the
// engine pushes a client's decoded ITD unconditionally, zero included.
type itdRecordingTransport struct {
	*fakeTransport
	pushedITD []time.Duration
}

func (f *itdRecordingTransport) Ioctl(key transport.IoctlKey, args ...any) error {
	if key != transport.InterTransactionDelay || len(args) != 1 {
		return transport.ErrIoctlNotSupported
	}
	d, ok := args[0].(time.Duration)
	if !ok {
		return transport.ErrIoctlNotSupported
	}
	f.pushedITD = append(f.pushedITD, d)
	return nil
}

func ackFor(seq uint8) []byte {
	return []byte{seq & 0x1F, byte(Success)}
}

func clientInfoPayload(bufferSize uint16) []byte {
	ci := []byte{
		0x02, 0x03, byte(bufferSize), byte(bufferSize >> 8), 0x01, // buffer_size, buffer_count=1
		0x01, 0x03, 0x01, 0x00, 0x00, // version 1.0.0
	}
	return ci
}

// clientInfoPayloadWithITD is clientInfoPayload plus an explicit
// inter_transaction_delay (tag 4) record carrying itd nanoseconds.
func clientInfoPayloadWithITD(bufferSize uint16, itd uint32) []byte {
	ci := clientInfoPayload(bufferSize)
	ci = append(ci, 0x04, 0x04,
		byte(itd), byte(itd>>8), byte(itd>>16), byte(itd>>24))
	return ci
}

func TestEngine_HappyPathSerial(t *testing.T) {
	image := []byte{0x00, 0x01, 0x02, 0x03}
	ft := newFakeTransport([][]byte{
		append(ackFor(0), clientInfoPayload(2)...), // GET_CLIENT_INFO response
		ackFor(1), // START_TRANSFER
		ackFor(2), // WRITE_CHUNK [0,1]
		ackFor(3), // WRITE_CHUNK [2,3]
		append(ackFor(4), 1), // GET_IMAGE_STATE payload=[1]
		ackFor(5), // END_TRANSFER
	})

	e := NewEngine(ft, DefaultConfig())
	ci, err := e.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ci.BufferSize != 2 {
		t.Fatalf("buffer size = %d, want 2", ci.BufferSize)
	}

	r := &sliceImageReader{data: image, bufferSize: 2}
	if err := e.RunUpdate(context.Background(), r); err != nil {
		t.Fatalf("RunUpdate: %v", err)
	}

	wantSeqs := []uint8{0, 1, 2, 3, 4, 5}
	wantCmds := []CommandCode{GetClientInfo, StartTransfer, WriteChunk, WriteChunk, GetImageState, EndTransfer}
	if len(ft.writes) != len(wantSeqs) {
		t.Fatalf("wrote %d commands, want %d", len(ft.writes), len(wantSeqs))
	}
	for i, raw := range ft.writes {
		cmd, err := DecodeCommand(raw)
		if err != nil {
			t.Fatalf("DecodeCommand[%d]: %v", i, err)
		}
		if cmd.Sequence != wantSeqs[i] {
			t.Errorf("command %d sequence = %d, want %d", i, cmd.Sequence, wantSeqs[i])
		}
		if cmd.Command != wantCmds[i] {
			t.Errorf("command %d code = %s, want %s", i, cmd.Command, wantCmds[i])
		}
	}
	if got := ft.writes[0][0] & 0x80; got == 0 {
		t.Fatal("GET_CLIENT_INFO command should set the sync bit")
	}
	if got := ft.writes[1][0] & 0x80; got != 0 {
		t.Fatal("START_TRANSFER should not set the sync bit")
	}
	if !bytes.Equal(ft.writes[2][2:], []byte{0x00, 0x01}) {
		t.Fatalf("first chunk payload = % X, want 00 01", ft.writes[2][2:])
	}
	if !bytes.Equal(ft.writes[3][2:], []byte{0x02, 0x03}) {
		t.Fatalf("second chunk payload = % X, want 02 03", ft.writes[3][2:])
	}
}

func TestEngine_ResendHandling(t *testing.T) {
	ft := newFakeTransport([][]byte{
		append(ackFor(0), clientInfoPayload(64)...),
		ackFor(1),
	})
	ft.resendSeq = 1
	ft.resendLeft = 1

	e := NewEngine(ft, DefaultConfig())
	if _, err := e.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if e.seq != 1 {
		t.Fatalf("sequence after GET_CLIENT_INFO = %d, want 1", e.seq)
	}

	cmd := CommandPacket{Command: WriteChunk, Payload: []byte{0xAA}}
	if _, err := e.sendAndReceive(context.Background(), cmd, time.Second); err != nil {
		t.Fatalf("sendAndReceive: %v", err)
	}

	if len(ft.writes) != 3 { // GET_CLIENT_INFO, then a resent WRITE_CHUNK, then the accepted WRITE_CHUNK
		t.Fatalf("expected 3 writes total, got %d", len(ft.writes))
	}
	first, _ := DecodeCommand(ft.writes[len(ft.writes)-2])
	second, _ := DecodeCommand(ft.writes[len(ft.writes)-1])
	if first.Sequence != 1 || second.Sequence != 1 {
		t.Fatalf("resend must reuse sequence 1: got %d then %d", first.Sequence, second.Sequence)
	}
	if e.seq != 2 {
		t.Fatalf("sequence after resend+success = %d, want 2", e.seq)
	}
}

func TestEngine_VersionMismatchRejected(t *testing.T) {
	HostVersionSave := HostVersion
	defer func() { HostVersion = HostVersionSave }()
	HostVersion = ProtocolVersion{Major: 1, Minor: 0, Patch: 0}

	payload := []byte{
		0x02, 0x03, 0x40, 0x00, 0x01,
		0x01, 0x03, 0x02, 0x00, 0x00, // version 2.0.0, newer than host
	}
	ft := newFakeTransport([][]byte{append(ackFor(0), payload...)})
	e := NewEngine(ft, DefaultConfig())
	_, err := e.Open(context.Background())
	var verr *ErrVersionMismatch
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ErrVersionMismatch", err)
	}
}

func TestEngine_BufferTooLargeRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCmdData = 10
	payload := clientInfoPayload(11)
	ft := newFakeTransport([][]byte{append(ackFor(0), payload...)})
	e := NewEngine(ft, cfg)
	_, err := e.Open(context.Background())
	var berr *ErrBufferTooSmall
	if !errors.As(err, &berr) {
		t.Fatalf("err = %v, want *ErrBufferTooSmall", err)
	}
}

func TestEngine_BufferSizeEqualToMaxIsAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCmdData = 10
	payload := clientInfoPayload(10)
	ft := newFakeTransport([][]byte{append(ackFor(0), payload...)})
	e := NewEngine(ft, cfg)
	if _, err := e.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v, want buffer_size == MaxCmdData to be accepted", err)
	}
}

func TestEngine_InterTransactionDelayPushedUnconditionally(t *testing.T) {
	cases := []struct {
		name string
		itd  uint32
	}{
		{"nonzero", 2500000},
		{"zero", 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			payload := clientInfoPayloadWithITD(64, c.itd)
			base := newFakeTransport([][]byte{append(ackFor(0), payload...)})
			ft := &itdRecordingTransport{fakeTransport: base}

			e := NewEngine(ft, DefaultConfig())
			if _, err := e.Open(context.Background()); err != nil {
				t.Fatalf("Open: %v", err)
			}

			// The engine pushes bootstrapITD before GET_CLIENT_INFO and then
			// the client's decoded value once it's known; only the latter
			// is under test here.
			if len(ft.pushedITD) != 2 {
				t.Fatalf("pushed ITD %d times, want exactly 2 (bootstrap, then decoded)", len(ft.pushedITD))
			}
			want := time.Duration(c.itd) * time.Nanosecond
			if got := ft.pushedITD[len(ft.pushedITD)-1]; got != want {
				t.Fatalf("pushed ITD = %v, want %v", got, want)
			}
		})
	}
}

func TestEngine_RetryExhaustionSurfacesIoError(t *testing.T) {
	ft := newFakeTransport([][]byte{append(ackFor(0), clientInfoPayload(8)...)})
	ft.readErrOn = 2 // fails the 2nd read call; the 3rd finds no scripted response left
	cfg := DefaultConfig()
	cfg.Retries = 2
	e := NewEngine(ft, cfg)
	if _, err := e.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err := e.sendAndReceive(context.Background(), CommandPacket{Command: StartTransfer}, time.Second)
	var ioErr *IoError
	if !errors.As(err, &ioErr) {
		t.Fatalf("err = %v, want *IoError after retry exhaustion", err)
	}
}

// sliceImageReader hands out fixed-size chunks from an in-memory slice,
// mirroring the short-read-means-final-chunk contract.
type sliceImageReader struct {
	data       []byte
	bufferSize int
	pos        int
}

func (r *sliceImageReader) Read(buf []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, nil
	}
	n := copy(buf, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func (r *sliceImageReader) Close() error { return nil }
