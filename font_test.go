package woff2

import (
	"sort"
	"testing"

	"github.com/tdewolff/test"
)

// buildSFNT lays out the given tables in ascending tag order, 4-byte aligned.
// Directory checksums are left zero; the codec never trusts them.
func buildSFNT(flavor uint32, tables map[string][]byte) []byte {
	tags := make([]string, 0, len(tables))
	for tag := range tables {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	numTables := uint16(len(tags))
	w := NewBinaryWriter([]byte{})
	storeOffsetTable(w, flavor, numTables)
	offset := 12 + 16*uint32(numTables)
	for _, tag := range tags {
		w.WriteUint32(stringToUint32(tag))
		w.WriteUint32(0) // checksum
		w.WriteUint32(offset)
		w.WriteUint32(uint32(len(tables[tag])))
		offset += round4(uint32(len(tables[tag])))
	}
	for _, tag := range tags {
		w.WriteBytes(tables[tag])
		for w.Len()%4 != 0 {
			w.WriteByte(0)
		}
	}
	return w.Bytes()
}

func TestReadFont(t *testing.T) {
	b := buildSFNT(0x00010000, map[string][]byte{
		"head": make([]byte, 54),
		"maxp": make([]byte, 32),
	})
	font, err := ReadFont(b)
	test.Error(t, err)
	test.T(t, font.Flavor, uint32(0x00010000))
	test.T(t, font.NumTables, uint16(2))
	test.That(t, font.FindTable(tagHead) != nil)
	test.T(t, font.FindTable(tagHead).Length, uint32(54))
}

func TestReadFontErrors(t *testing.T) {
	// truncated header
	_, err := ReadFont([]byte{0x00, 0x01})
	test.That(t, err != nil)

	b := buildSFNT(0x00010000, map[string][]byte{
		"head": make([]byte, 54),
		"maxp": make([]byte, 32),
	})

	// duplicate tag
	dup := make([]byte, len(b))
	copy(dup, b)
	copy(dup[12+16:], dup[12:12+16]) // overwrite second entry with the first
	_, err = ReadFont(dup)
	test.That(t, err != nil, "duplicate tag must fail")

	// misaligned offset
	mis := make([]byte, len(b))
	copy(mis, b)
	mis[12+8+3] |= 1
	_, err = ReadFont(mis)
	test.That(t, err != nil, "misaligned offset must fail")

	// length extending past the end
	long := make([]byte, len(b))
	copy(long, b)
	long[12+12] = 0x7F
	_, err = ReadFont(long)
	test.That(t, err != nil, "table past end must fail")

	// overlapping tables: point the second table at the first
	overlap := make([]byte, len(b))
	copy(overlap, b)
	copy(overlap[12+16+8:], overlap[12+8:12+16]) // second offset+length = first offset+length
	_, err = ReadFont(overlap)
	test.That(t, err != nil, "overlapping tables must fail")
}

func TestWriteFont(t *testing.T) {
	b := buildSFNT(0x00010000, map[string][]byte{
		"head": make([]byte, 54),
		"hhea": make([]byte, 36),
		"maxp": make([]byte, 32),
	})
	font, err := ReadFont(b)
	test.Error(t, err)
	b2, err := WriteFont(font)
	test.Error(t, err)
	test.Bytes(t, b2, b)
}

func TestSearchMetadata(t *testing.T) {
	w := NewBinaryWriter([]byte{})
	storeOffsetTable(w, 0x00010000, 9)
	b := w.Bytes()
	r := NewBinaryReader(b)
	_ = r.ReadUint32()
	test.T(t, r.ReadUint16(), uint16(9))   // numTables
	test.T(t, r.ReadUint16(), uint16(128)) // searchRange = 16*2^3
	test.T(t, r.ReadUint16(), uint16(3))   // entrySelector
	test.T(t, r.ReadUint16(), uint16(16))  // rangeShift = 9*16-128
}

func TestRemoveDigitalSignature(t *testing.T) {
	b := buildSFNT(0x00010000, map[string][]byte{
		"DSIG": make([]byte, 8),
		"head": make([]byte, 54),
	})
	font, err := ReadFont(b)
	test.Error(t, err)
	test.T(t, font.NumTables, uint16(2))
	RemoveDigitalSignature(font)
	test.T(t, font.NumTables, uint16(1))
	test.That(t, font.FindTable(tagDSIG) == nil)

	RemoveDigitalSignature(font) // no-op without DSIG
	test.T(t, font.NumTables, uint16(1))
}

func TestNumGlyphs(t *testing.T) {
	head := make([]byte, 54)
	head[51] = 0 // short index format
	b := buildSFNT(0x00010000, map[string][]byte{
		"head": head,
		"glyf": {},
		"loca": {0x00, 0x00, 0x00, 0x00},
	})
	font, err := ReadFont(b)
	test.Error(t, err)
	test.T(t, NumGlyphs(font), 1)
	test.T(t, IndexFormat(font), 0)

	glyphData, err := GetGlyphData(font, 0)
	test.Error(t, err)
	test.T(t, len(glyphData), 0)

	head[51] = 1 // long offsets halve the entry count
	b = buildSFNT(0x00010000, map[string][]byte{
		"head": head,
		"glyf": {},
		"loca": {0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	})
	font, err = ReadFont(b)
	test.Error(t, err)
	test.T(t, NumGlyphs(font), 1)
	test.T(t, IndexFormat(font), 1)
}

func TestOutputOrderedTags(t *testing.T) {
	b := buildSFNT(0x00010000, map[string][]byte{
		"head": make([]byte, 54),
		"glyf": make([]byte, 4),
		"gvar": make([]byte, 4),
		"loca": {0x00, 0x00, 0x00, 0x02},
	})
	font, err := ReadFont(b)
	test.Error(t, err)

	tags := font.OutputOrderedTags()
	test.T(t, len(tags), 4)
	test.T(t, uint32ToString(tags[0]), "glyf")
	test.T(t, uint32ToString(tags[1]), "loca") // loca directly follows glyf
	test.T(t, uint32ToString(tags[2]), "gvar")
	test.T(t, uint32ToString(tags[3]), "head")
}
