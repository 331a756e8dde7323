package transport

import "testing"

func TestCRC16_EmptyIsFFFF(t *testing.T) {
	if got := CRC16(nil); got != 0xFFFF {
		t.Fatalf("CRC16(nil) = 0x%04X, want 0xFFFF", got)
	}
}

func TestCRC16_KnownVectors(t *testing.T) {
	cases := []struct {
		data []byte
		want uint16
	}{
		{[]byte{}, 0xFFFF},
		{[]byte{0x00}, 0xFFFF},
		{[]byte{0x01}, 0xFFFE},
		{[]byte{0x00, 0x01}, 0xFEFF},
		{[]byte{0x01, 0x01}, 0xFEFE},
	}

	for i, c := range cases {
		if got := CRC16(c.data); got != c.want {
			t.Errorf("case %d: CRC16(% X) = 0x%04X, want 0x%04X", i, c.data, got, c.want)
		}
	}
}

func TestCRC16_OddLengthZeroPadded(t *testing.T) {
	odd := []byte{0x01, 0x02, 0x03}
	padded := []byte{0x01, 0x02, 0x03, 0x00}
	if CRC16(odd) != CRC16(padded) {
		t.Fatalf("odd-length input should behave as zero-padded to even length")
	}
}

func TestCRC16_Consistent(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}
	if CRC16(data) != CRC16(data) {
		t.Fatalf("CRC16 not deterministic")
	}
}

func TestAppendCRC16(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	out := AppendCRC16(nil, data)
	if len(out) != 2 {
		t.Fatalf("AppendCRC16 appended %d bytes, want 2", len(out))
	}
	crc := CRC16(data)
	if out[0] != byte(crc) || out[1] != byte(crc>>8) {
		t.Fatalf("AppendCRC16 wrote %v, want LE 0x%04X", out, crc)
	}
}
