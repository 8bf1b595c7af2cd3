package woff2

import (
	"testing"

	"github.com/tdewolff/test"
)

func Test255Uint16Decode(t *testing.T) {
	var tests = []struct {
		b []byte
		v uint16
	}{
		{[]byte{0xFD, 0x01, 0x00}, 256},
		{[]byte{0xFE, 0x00}, 506},
		{[]byte{0xFF, 0x00}, 253},
		{[]byte{0x7F}, 127},
		{[]byte{0x00}, 0},
		{[]byte{0xFC}, 252},
		{[]byte{0xFF, 0xFF}, 508},
		{[]byte{0xFE, 0xFF}, 761},
		{[]byte{0xFD, 0xFF, 0xFF}, 65535},
	}
	for _, tt := range tests {
		r := NewBinaryReader(tt.b)
		test.T(t, read255Uint16(r), tt.v)
		test.That(t, !r.EOF())
	}
}

func Test255Uint16DecodeTruncated(t *testing.T) {
	for _, b := range [][]byte{{}, {0xFD}, {0xFD, 0x01}, {0xFE}, {0xFF}} {
		r := NewBinaryReader(b)
		_ = read255Uint16(r)
		test.That(t, r.EOF(), "truncated input must set EOF")
	}
}

func Test255Uint16Encode(t *testing.T) {
	w := NewBinaryWriter([]byte{})
	write255Uint16(w, 252)
	test.Bytes(t, w.Bytes(), []byte{0xFC})

	// values >= 253 always use the three-byte literal form
	w = NewBinaryWriter([]byte{})
	write255Uint16(w, 253)
	test.Bytes(t, w.Bytes(), []byte{0xFD, 0x00, 0xFD})

	w = NewBinaryWriter([]byte{})
	write255Uint16(w, 506)
	test.Bytes(t, w.Bytes(), []byte{0xFD, 0x01, 0xFA})

	for _, v := range []uint16{0, 1, 127, 252, 253, 254, 505, 506, 507, 760, 761, 65535} {
		w := NewBinaryWriter([]byte{})
		write255Uint16(w, v)
		test.T(t, uint32(len(w.Bytes())), size255Uint16(v))
		r := NewBinaryReader(w.Bytes())
		test.T(t, read255Uint16(r), v)
	}
}

func TestBase128Decode(t *testing.T) {
	var tests = []struct {
		b []byte
		v uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x3F}, 63},
		{[]byte{0x81, 0x00}, 128},
		{[]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F}, 0x7FFFFFFF},
		{[]byte{0x8F, 0xFF, 0xFF, 0xFF, 0x7F}, 0xFFFFFFFF},
	}
	for _, tt := range tests {
		r := NewBinaryReader(tt.b)
		v, err := readUintBase128(r)
		test.Error(t, err)
		test.T(t, v, tt.v)
	}
}

func TestBase128DecodeError(t *testing.T) {
	var tests = [][]byte{
		{},                                   // truncated
		{0x81},                               // truncated
		{0x80},                               // leading zero byte
		{0x80, 0x3F},                         // leading zero byte
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F}, // exceeds 5 bytes
		{0x90, 0x80, 0x80, 0x80, 0x00},       // top bits overflow
	}
	for _, b := range tests {
		r := NewBinaryReader(b)
		_, err := readUintBase128(r)
		test.That(t, err != nil, "must fail on", b)
	}
}

func TestBase128Encode(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 16383, 16384, 0x7FFFFFFF, 0xFFFFFFFF} {
		w := NewBinaryWriter([]byte{})
		writeUintBase128(w, v)
		test.T(t, uint32(len(w.Bytes())), base128Size(v))
		r := NewBinaryReader(w.Bytes())
		v2, err := readUintBase128(r)
		test.Error(t, err)
		test.T(t, v2, v)
	}
}
