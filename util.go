package woff2

import (
	"encoding/binary"
	"fmt"
)

// MaxMemory is the maximum amount of uncompressed font data that will be processed.
var MaxMemory uint32 = 30 * 1024 * 1024

// ErrExceedsMemory is returned if the font exceeds the memory limit.
var ErrExceedsMemory = fmt.Errorf("memory limit exceeded")

// ErrInvalidFontData is returned if the font is malformed.
var ErrInvalidFontData = fmt.Errorf("invalid font data")

func calcChecksum(b []byte) uint32 {
	if len(b)%4 != 0 {
		panic("data not multiple of four bytes")
	}
	var sum uint32
	for i := 0; i < len(b); i += 4 {
		sum += binary.BigEndian.Uint32(b[i : i+4])
	}
	return sum
}

// calcTableChecksum is the ULONG sum of a table, with trailing bytes zero-padded.
func calcTableChecksum(b []byte) uint32 {
	n := len(b) &^ 3
	sum := calcChecksum(b[:n])
	if n != len(b) {
		var tail [4]byte
		copy(tail[:], b[n:])
		sum += binary.BigEndian.Uint32(tail[:])
	}
	return sum
}

func round4(n uint32) uint32 {
	return (n + 3) &^ 3
}

func uint32ToString(v uint32) string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return string(b)
}

func stringToUint32(s string) uint32 {
	return binary.BigEndian.Uint32([]byte(s))
}
