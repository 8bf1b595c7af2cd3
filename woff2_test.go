package woff2

import (
	"bytes"
	"testing"

	"github.com/tdewolff/test"
)

func TestEncodeDecodeMinimal(t *testing.T) {
	ttf := buildMinimalTTF(nil, nil)
	encoded, err := ConvertTTFToWOFF2(ttf, WOFF2Params{})
	test.Error(t, err)
	test.That(t, uint32(len(encoded)) <= MaxWOFF2CompressedSize(ttf, nil))

	// header fields
	r := NewBinaryReader(encoded)
	test.T(t, r.ReadUint32(), uint32(woff2Signature))
	test.T(t, r.ReadUint32(), uint32(0x00010000)) // flavor
	test.T(t, r.ReadUint32(), uint32(len(encoded)))
	test.T(t, r.ReadUint16(), uint16(9)) // numTables
	test.T(t, r.ReadUint16(), uint16(0)) // reserved

	decoded, err := ParseWOFF2(encoded)
	test.Error(t, err)
	test.T(t, ComputeWOFF2FinalSize(encoded), uint32(len(decoded)))

	font, err := ReadFont(decoded)
	test.Error(t, err)
	test.T(t, font.Flavor, uint32(0x00010000))
	test.T(t, font.NumTables, uint16(9))

	head := font.FindTable(tagHead)
	test.T(t, stringToUint32(string(head.Data[12:16])), uint32(0x5F0F3CF5)) // magicNumber
	test.T(t, font.FindTable(tagGlyf).Length, uint32(0))                   // one empty glyph
	test.T(t, font.FindTable(tagLoca).Length, uint32(4))

	// tables appear in ascending tag order
	dir := NewBinaryReader(decoded)
	dir.Skip(12)
	var lastTag uint32
	for i := 0; i < 9; i++ {
		tag := dir.ReadTag()
		test.That(t, lastTag < tag, "tags must ascend")
		lastTag = tag
		dir.Skip(12)
	}

	// the whole file sums to the checksum magic
	test.T(t, calcChecksum(decoded), uint32(0xB1B0AFBA))
}

func TestEncodeDecodeTriangle(t *testing.T) {
	glyf, err := StoreGlyph(&Glyph{
		XMin: 0, YMin: 0, XMax: 100, YMax: 100,
		Contours:     [][]Point{{{0, 0, true}, {100, 0, true}, {50, 100, false}}},
		Instructions: []byte{0xB0, 0x00},
	})
	test.Error(t, err)
	for len(glyf)%4 != 0 {
		glyf = append(glyf, 0)
	}
	ttf := buildMinimalTTF(glyf, shortLoca(0, uint32(len(glyf))))

	encoded, err := ConvertTTFToWOFF2(ttf, WOFF2Params{})
	test.Error(t, err)
	decoded, err := ParseWOFF2(encoded)
	test.Error(t, err)

	// the decoded glyf table equals the normalized original
	font, err := ReadFont(ttf)
	test.Error(t, err)
	test.Error(t, normalizeFont(font))
	decodedFont, err := ReadFont(decoded)
	test.Error(t, err)
	test.Bytes(t, decodedFont.FindTable(tagGlyf).Data, font.FindTable(tagGlyf).Data)
	test.Bytes(t, decodedFont.FindTable(tagLoca).Data, font.FindTable(tagLoca).Data)

	glyphData, err := GetGlyphData(decodedFont, 0)
	test.Error(t, err)
	glyph, err := ReadGlyph(glyphData)
	test.Error(t, err)
	test.T(t, glyph.NumPoints(), 3)
	test.T(t, glyph.Contours[0][2], Point{50, 100, false})
	test.Bytes(t, glyph.Instructions, []byte{0xB0, 0x00})
}

func TestEncodeDecodeComposite(t *testing.T) {
	glyf := buildCompositeGlyph([]byte{0x40, 0x01, 0x00})
	for len(glyf)%4 != 0 {
		glyf = append(glyf, 0)
	}
	ttf := buildMinimalTTF(glyf, shortLoca(0, uint32(len(glyf))))

	encoded, err := ConvertTTFToWOFF2(ttf, WOFF2Params{})
	test.Error(t, err)
	decoded, err := ParseWOFF2(encoded)
	test.Error(t, err)

	decodedFont, err := ReadFont(decoded)
	test.Error(t, err)
	glyphData, err := GetGlyphData(decodedFont, 0)
	test.Error(t, err)
	glyph, err := ReadGlyph(glyphData)
	test.Error(t, err)
	test.That(t, glyph.IsComposite())
	test.That(t, glyph.HaveInstructions)
	test.Bytes(t, glyph.Instructions, []byte{0x40, 0x01, 0x00})
}

func TestEncodeIdempotent(t *testing.T) {
	glyf, err := StoreGlyph(&Glyph{
		XMin: 0, YMin: 0, XMax: 100, YMax: 100,
		Contours: [][]Point{{{0, 0, true}, {100, 0, true}, {50, 100, true}}},
	})
	test.Error(t, err)
	for len(glyf)%4 != 0 {
		glyf = append(glyf, 0)
	}
	ttf := buildMinimalTTF(glyf, shortLoca(0, uint32(len(glyf))))

	encoded, err := ConvertTTFToWOFF2(ttf, WOFF2Params{})
	test.Error(t, err)
	decoded, err := ParseWOFF2(encoded)
	test.Error(t, err)
	encoded2, err := ConvertTTFToWOFF2(decoded, WOFF2Params{})
	test.Error(t, err)
	test.Bytes(t, encoded2, encoded)
}

func TestDecodeTotalSfntSizeTooLarge(t *testing.T) {
	encoded, err := ConvertTTFToWOFF2(buildMinimalTTF(nil, nil), WOFF2Params{})
	test.Error(t, err)
	storeUint32(encoded, 16, 31*1024*1024) // claim a 31 MiB totalSfntSize
	_, err = ParseWOFF2(encoded)
	test.That(t, err == ErrExceedsMemory, "oversized totalSfntSize must be rejected")
}

func TestDecodeHeaderErrors(t *testing.T) {
	encoded, err := ConvertTTFToWOFF2(buildMinimalTTF(nil, nil), WOFF2Params{})
	test.Error(t, err)

	bad := make([]byte, len(encoded))

	copy(bad, encoded)
	bad[0] = 'x' // signature
	_, err = ParseWOFF2(bad)
	test.That(t, err != nil)

	copy(bad, encoded)
	bad[14] = 0x01 // reserved
	_, err = ParseWOFF2(bad)
	test.That(t, err != nil)

	copy(bad, encoded)
	storeUint32(bad, 8, uint32(len(bad))+1) // length mismatch
	_, err = ParseWOFF2(bad)
	test.That(t, err != nil)

	copy(bad, encoded)
	storeUint16(bad, 12, 0) // numTables zero
	_, err = ParseWOFF2(bad)
	test.That(t, err != nil)

	_, err = ParseWOFF2(make([]byte, 48))
	test.That(t, err != nil)
	_, err = ParseWOFF2(bytes.Repeat([]byte{0xFF}, 100))
	test.That(t, err != nil)
	_, err = ParseWOFF2(nil)
	test.That(t, err != nil)
}

func TestDecodeReservedFlagBits(t *testing.T) {
	encoded, err := ConvertTTFToWOFF2(buildMinimalTTF(nil, nil), WOFF2Params{})
	test.Error(t, err)
	encoded[48] |= 0xC0 // first directory entry flag byte
	_, err = ParseWOFF2(encoded)
	test.That(t, err != nil, "reserved directory flag bits must be zero")
}

func TestEncodeDecodeMetadata(t *testing.T) {
	metadata := []byte(`<?xml version="1.0"?><metadata version="1.0"></metadata>`)
	ttf := buildMinimalTTF(nil, nil)
	encoded, err := ConvertTTFToWOFF2(ttf, WOFF2Params{ExtendedMetadata: metadata})
	test.Error(t, err)

	r := NewBinaryReader(encoded)
	r.Seek(28)
	metaOffset := r.ReadUint32()
	metaLength := r.ReadUint32()
	metaOrigLength := r.ReadUint32()
	test.That(t, metaOffset != 0)
	test.T(t, metaOffset+metaLength, uint32(len(encoded)))
	test.T(t, metaOrigLength, uint32(len(metadata)))

	decoded, err := ParseWOFF2(encoded)
	test.Error(t, err)
	_, err = ReadFont(decoded)
	test.Error(t, err)
}

func TestWOFF2StringOut(t *testing.T) {
	out := NewWOFF2StringOut(4)
	n, err := out.Write([]byte{1, 2, 3})
	test.Error(t, err)
	test.T(t, n, 3)
	test.T(t, out.Size(), uint32(3))

	_, err = out.Write([]byte{4, 5})
	test.That(t, err == ErrExceedsMemory)
	test.Bytes(t, out.Bytes(), []byte{1, 2, 3})
}

func TestConvertWOFF2ToTTF(t *testing.T) {
	encoded, err := ConvertTTFToWOFF2(buildMinimalTTF(nil, nil), WOFF2Params{})
	test.Error(t, err)

	maxSize := ComputeWOFF2FinalSize(encoded)
	out := NewWOFF2StringOut(maxSize)
	test.Error(t, ConvertWOFF2ToTTF(encoded, out))
	test.T(t, out.Size(), maxSize)

	// a sink too small for the decoded font fails cleanly
	small := NewWOFF2StringOut(maxSize - 1)
	test.That(t, ConvertWOFF2ToTTF(encoded, small) != nil)
}

func buildTTC(tables map[string][]byte) []byte {
	single := buildSFNT(0x00010000, tables)
	numTables := uint16(len(tables))
	dirSize := uint32(12 + 16*uint32(numTables))

	// two fonts sharing every table
	w := NewBinaryWriter([]byte{})
	w.WriteUint32(tagTtcf)
	w.WriteUint32(0x00010000) // header version
	w.WriteUint32(2)          // numFonts
	w.WriteUint32(20)
	w.WriteUint32(20 + dirSize)

	tableBase := 20 + 2*dirSize
	for i := 0; i < 2; i++ {
		r := NewBinaryReader(single)
		w.WriteUint32(r.ReadUint32()) // flavor
		w.WriteUint16(r.ReadUint16()) // numTables
		w.WriteUint16(r.ReadUint16())
		w.WriteUint16(r.ReadUint16())
		w.WriteUint16(r.ReadUint16())
		for j := 0; j < int(numTables); j++ {
			w.WriteUint32(r.ReadUint32())                 // tag
			w.WriteUint32(r.ReadUint32())                 // checksum
			w.WriteUint32(r.ReadUint32() - dirSize + tableBase) // offset rebased
			w.WriteUint32(r.ReadUint32())                 // length
		}
	}
	w.WriteBytes(single[dirSize:])
	return w.Bytes()
}

func TestEncodeDecodeCollection(t *testing.T) {
	glyf, err := StoreGlyph(&Glyph{
		XMin: 0, YMin: 0, XMax: 100, YMax: 100,
		Contours: [][]Point{{{0, 0, true}, {100, 0, true}, {50, 100, true}}},
	})
	test.Error(t, err)
	for len(glyf)%4 != 0 {
		glyf = append(glyf, 0)
	}
	ttc := buildTTC(minimalTables(glyf, shortLoca(0, uint32(len(glyf)))))

	collection, err := ReadFontCollection(ttc)
	test.Error(t, err)
	test.T(t, len(collection.Fonts), 2)
	test.That(t, collection.Fonts[1].FindTable(tagGlyf).IsReused())

	encoded, err := ConvertTTFToWOFF2(ttc, WOFF2Params{})
	test.Error(t, err)

	r := NewBinaryReader(encoded)
	_ = r.ReadUint32()
	test.T(t, r.ReadUint32(), tagTtcf) // flavor

	decoded, err := ParseWOFF2(encoded)
	test.Error(t, err)
	test.T(t, stringToUint32(string(decoded[:4])), tagTtcf)

	decodedCollection, err := ReadFontCollection(decoded)
	test.Error(t, err)
	test.T(t, len(decodedCollection.Fonts), 2)
	test.That(t, decodedCollection.Fonts[1].FindTable(tagGlyf).IsReused())

	// decode-encode is idempotent for collections too
	encoded2, err := ConvertTTFToWOFF2(decoded, WOFF2Params{})
	test.Error(t, err)
	test.Bytes(t, encoded2, encoded)
}
