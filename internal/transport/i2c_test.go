package transport

import (
	"errors"
	"testing"
	"time"
)

// fakeI2CMAC replays a scripted sequence of reads, one per Read call.
type fakeI2CMAC struct {
	writes    [][]byte
	reads     [][]byte
	readCalls int
	writeErr  error
}

func (f *fakeI2CMAC) Open() error  { return nil }
func (f *fakeI2CMAC) Close() error { return nil }

func (f *fakeI2CMAC) Write(p []byte) (int, error) {
	f.writes = append(f.writes, append([]byte(nil), p...))
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return len(p), nil
}

func (f *fakeI2CMAC) Read(buf []byte) (int, error) {
	if f.readCalls >= len(f.reads) {
		return 0, nil
	}
	r := f.reads[f.readCalls]
	f.readCalls++
	n := copy(buf, r)
	return n, nil
}

func i2cLenFrame(length int) []byte {
	frame := make([]byte, 5)
	frame[0] = 'L'
	frame[1] = byte(length)
	frame[2] = byte(length >> 8)
	crc := CRC16(frame[1:3])
	frame[3] = byte(crc)
	frame[4] = byte(crc >> 8)
	return frame
}

func i2cRspFrame(body []byte) []byte {
	frame := make([]byte, 1+len(body)+2)
	frame[0] = 'R'
	copy(frame[1:], body)
	crc := CRC16(body)
	frame[1+len(body)] = byte(crc)
	frame[1+len(body)+1] = byte(crc >> 8)
	return frame
}

func TestI2C_Write_IgnoresMACError(t *testing.T) {
	mac := &fakeI2CMAC{writeErr: errors.New("nak")}
	i := NewI2C(mac)
	if err := i.Write([]byte{0x01}); err != nil {
		t.Fatalf("Write should swallow MAC write errors, got %v", err)
	}
}

func TestI2C_Write_AppendsCRC(t *testing.T) {
	mac := &fakeI2CMAC{}
	i := NewI2C(mac)
	_ = i.Write([]byte{0xAA, 0xBB})
	got := mac.writes[0]
	crc := CRC16([]byte{0xAA, 0xBB})
	if got[0] != 0xAA || got[1] != 0xBB || got[2] != byte(crc) || got[3] != byte(crc>>8) {
		t.Fatalf("write payload = % X", got)
	}
}

func TestI2C_Read_HappyPath(t *testing.T) {
	body := []byte{0x10, 0x20}
	mac := &fakeI2CMAC{reads: [][]byte{i2cLenFrame(len(body) + 2), i2cRspFrame(body)}}
	i := NewI2C(mac)
	got, err := i.Read(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("got % X want % X", got, body)
	}
}

func TestI2C_Read_BusyFramesThenLength(t *testing.T) {
	body := []byte{0x01}
	busy := []byte{'X', 0, 0, 0, 0}
	mac := &fakeI2CMAC{reads: [][]byte{busy, busy, i2cLenFrame(len(body) + 2), i2cRspFrame(body)}}
	i := NewI2C(mac)
	got, err := i.Read(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("got % X want % X", got, body)
	}
}

func TestI2C_Read_NAKPathSurfacesAsTimeout(t *testing.T) {
	mac := &fakeI2CMAC{writeErr: errors.New("nak"), reads: nil}
	i := NewI2C(mac)
	if err := i.Write([]byte{0x01}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, err := i.Read(time.Now().Add(20 * time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Read error = %v, want ErrTimeout", err)
	}
}

func TestI2C_Read_ShortLengthRejected(t *testing.T) {
	mac := &fakeI2CMAC{reads: [][]byte{i2cLenFrame(1)}}
	i := NewI2C(mac)
	_, err := i.Read(time.Now().Add(time.Second))
	if !errors.Is(err, ErrShortResponse) {
		t.Fatalf("err = %v, want ErrShortResponse", err)
	}
}
