//go:build gofuzz
// +build gofuzz

package fuzz

import (
	"bytes"

	"github.com/tdewolff/woff2"
)

// Fuzz decodes the input as WOFF2 and, when it decodes cleanly, re-encodes the
// result and decodes it again. Both encodes of the same SFNT must agree byte
// for byte.
func Fuzz(data []byte) int {
	sfnt, err := woff2.ParseWOFF2(data)
	if err != nil {
		return 0
	}
	encoded, err := woff2.ConvertTTFToWOFF2(sfnt, woff2.WOFF2Params{Quality: 9})
	if err != nil {
		return 0
	}
	sfnt2, err := woff2.ParseWOFF2(encoded)
	if err != nil {
		panic("re-encoded font no longer decodes: " + err.Error())
	}
	encoded2, err := woff2.ConvertTTFToWOFF2(sfnt2, woff2.WOFF2Params{Quality: 9})
	if err != nil {
		panic("decoded font no longer encodes: " + err.Error())
	}
	if !bytes.Equal(encoded, encoded2) {
		panic("encode-decode-encode is not idempotent")
	}
	return 1
}
