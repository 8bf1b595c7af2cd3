package woff2

import (
	"fmt"
	"sort"
)

// Table is a single SFNT table. Data either views into the input buffer or
// points at Buffer once the table has been replaced by an owned copy.
type Table struct {
	Tag      uint32
	Checksum uint32
	Offset   uint32
	Length   uint32
	Data     []byte
	Buffer   []byte
	ReuseOf  *Table
}

// IsReused returns true if the table is shared with an earlier font in a collection.
func (table *Table) IsReused() bool {
	return table.ReuseOf != nil
}

// Font is a parsed SFNT font: its flavor and tables. Search metadata is
// recomputed on write and never stored.
type Font struct {
	Flavor    uint32
	NumTables uint16
	Tables    map[uint32]*Table
}

// FindTable returns the table for the given tag, or nil.
func (font *Font) FindTable(tag uint32) *Table {
	return font.Tables[tag]
}

// SortedTags returns all table tags in ascending order.
func (font *Font) SortedTags() []uint32 {
	tags := make([]uint32, 0, len(font.Tables))
	for tag := range font.Tables {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// OutputOrderedTags returns the tag order used for the WOFF2 directory and the
// combined transform stream: ascending, except that loca directly follows glyf.
// Transformed pseudo-tables are excluded.
func (font *Font) OutputOrderedTags() []uint32 {
	tags := make([]uint32, 0, len(font.Tables))
	for tag := range font.Tables {
		if isTransformedTag(tag) {
			continue
		}
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	iGlyf, iLoca := -1, -1
	for i, tag := range tags {
		if tag == tagGlyf {
			iGlyf = i
		} else if tag == tagLoca {
			iLoca = i
		}
	}
	if iGlyf != -1 && iLoca != -1 && iLoca != iGlyf+1 {
		tags = append(tags[:iLoca], tags[iLoca+1:]...)
		rest := append([]uint32{tagLoca}, tags[iGlyf+1:]...)
		tags = append(tags[:iGlyf+1], rest...)
	}
	return tags
}

// FontCollection is an ordered sequence of fonts; single fonts are a
// collection of one with HeaderVersion zero. Tables may be shared between
// fonts, identified by their source offset.
type FontCollection struct {
	HeaderVersion uint32
	Fonts         []*Font
}

func readFontTables(r *BinaryReader, data []byte, font *Font, tablesByOffset map[uint32]*Table) error {
	font.Flavor = r.ReadUint32()
	font.NumTables = r.ReadUint16()
	r.Skip(6) // searchRange, entrySelector, rangeShift are recomputed on write
	if r.EOF() {
		return ErrInvalidFontData
	}

	type interval struct {
		offset, length uint32
	}
	intervals := make([]interval, 0, font.NumTables)
	font.Tables = make(map[uint32]*Table, font.NumTables)
	for i := 0; i < int(font.NumTables); i++ {
		table := &Table{
			Tag:      r.ReadTag(),
			Checksum: r.ReadUint32(),
			Offset:   r.ReadUint32(),
			Length:   r.ReadUint32(),
		}
		if r.EOF() {
			return ErrInvalidFontData
		}
		if table.Offset&3 != 0 || uint32(len(data)) < table.Length || uint32(len(data))-table.Length < table.Offset {
			return fmt.Errorf("%s: bad table offset or length", uint32ToString(table.Tag))
		}
		if _, ok := font.Tables[table.Tag]; ok {
			return fmt.Errorf("%s: table defined more than once", uint32ToString(table.Tag))
		}
		table.Data = data[table.Offset : table.Offset+table.Length : table.Offset+table.Length]
		if tablesByOffset != nil {
			if original, ok := tablesByOffset[table.Offset]; ok {
				table.ReuseOf = original
			} else {
				tablesByOffset[table.Offset] = table
			}
		}
		intervals = append(intervals, interval{table.Offset, table.Length})
		font.Tables[table.Tag] = table
	}

	// tables must not overlap in the source byte stream; zero-length tables may
	// share their offset with the table that follows
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].offset != intervals[j].offset {
			return intervals[i].offset < intervals[j].offset
		}
		return intervals[i].length < intervals[j].length
	})
	lastOffset := uint32(12 + 16*uint32(font.NumTables))
	for _, iv := range intervals {
		if iv.offset < lastOffset || iv.offset+iv.length < iv.offset {
			return fmt.Errorf("overlapping tables")
		}
		lastOffset = iv.offset + iv.length
	}
	return nil
}

// ReadFont parses a single SFNT font.
func ReadFont(data []byte) (*Font, error) {
	font := &Font{}
	if err := readFontTables(NewBinaryReader(data), data, font, nil); err != nil {
		return nil, err
	}
	return font, nil
}

// ReadFontCollection parses an SFNT font or a TrueType collection. Tables
// shared between collection fonts become reuse references to their first
// occurrence.
func ReadFontCollection(data []byte) (*FontCollection, error) {
	r := NewBinaryReader(data)
	if r.ReadTag() == tagTtcf {
		collection := &FontCollection{}
		collection.HeaderVersion = r.ReadUint32()
		if collection.HeaderVersion != 0x00010000 && collection.HeaderVersion != 0x00020000 {
			return nil, fmt.Errorf("ttcf: bad header version")
		}
		numFonts := r.ReadUint32()
		if r.EOF() || numFonts == 0 || r.Len()/4 < numFonts {
			return nil, ErrInvalidFontData
		}
		offsets := make([]uint32, numFonts)
		for i := range offsets {
			offsets[i] = r.ReadUint32()
		}
		if r.EOF() {
			return nil, ErrInvalidFontData
		}

		tablesByOffset := map[uint32]*Table{}
		for _, offset := range offsets {
			r.Seek(offset)
			if r.EOF() {
				return nil, ErrInvalidFontData
			}
			font := &Font{}
			if err := readFontTables(r, data, font, tablesByOffset); err != nil {
				return nil, err
			}
			collection.Fonts = append(collection.Fonts, font)
		}
		return collection, nil
	}

	font, err := ReadFont(data)
	if err != nil {
		return nil, err
	}
	return &FontCollection{Fonts: []*Font{font}}, nil
}

// FontFileSize returns the size of the font when written out.
func FontFileSize(font *Font) uint32 {
	maxOffset := uint32(12 + 16*uint32(font.NumTables))
	for _, table := range font.Tables {
		if end := table.Offset + round4(table.Length); maxOffset < end {
			maxOffset = end
		}
	}
	return maxOffset
}

func storeOffsetTable(w *BinaryWriter, flavor uint32, numTables uint16) {
	var maxPow2 uint16
	for 1<<(maxPow2+1) <= numTables {
		maxPow2++
	}
	var searchRange uint16
	if numTables != 0 {
		searchRange = 1 << (maxPow2 + 4)
	}
	w.WriteUint32(flavor)
	w.WriteUint16(numTables)
	w.WriteUint16(searchRange)
	w.WriteUint16(maxPow2)
	w.WriteUint16(numTables<<4 - searchRange)
}

// WriteFont writes out the SFNT font using the offsets recorded in its tables.
// Tables are listed in ascending tag order and padded to 4-byte multiples.
func WriteFont(font *Font) ([]byte, error) {
	size := FontFileSize(font)
	buf := make([]byte, size)
	w := NewBinaryWriter(buf)
	storeOffsetTable(w, font.Flavor, font.NumTables)
	for _, tag := range font.SortedTags() {
		table := font.Tables[tag]
		if table.Offset+table.Length < table.Offset || size < table.Offset+table.Length {
			return nil, ErrInvalidFontData
		}
		w.WriteUint32(table.Tag)
		w.WriteUint32(table.Checksum)
		w.WriteUint32(table.Offset)
		w.WriteUint32(table.Length)
		copy(buf[table.Offset:], table.Data[:table.Length])
	}
	return buf, nil
}

// IndexFormat returns head.indexToLocFormat, zero when absent.
func IndexFormat(font *Font) int {
	head := font.FindTable(tagHead)
	if head == nil || len(head.Data) < 52 {
		return 0
	}
	return int(head.Data[51])
}

// NumGlyphs derives the glyph count from the loca table length.
func NumGlyphs(font *Font) int {
	head := font.FindTable(tagHead)
	loca := font.FindTable(tagLoca)
	if head == nil || loca == nil || head.Length < 52 {
		return 0
	}
	indexSize := uint32(2)
	if IndexFormat(font) != 0 {
		indexSize = 4
	}
	return int(loca.Length/indexSize) - 1
}

// GetGlyphData returns the byte window of a glyph within the glyf table.
func GetGlyphData(font *Font, glyphIndex int) ([]byte, error) {
	if glyphIndex < 0 {
		return nil, ErrInvalidFontData
	}
	head := font.FindTable(tagHead)
	loca := font.FindTable(tagLoca)
	glyf := font.FindTable(tagGlyf)
	if head == nil || loca == nil || glyf == nil || head.Length < 52 {
		return nil, ErrInvalidFontData
	}

	r := NewBinaryReader(loca.Data)
	var offset1, offset2 uint32
	if IndexFormat(font) == 0 {
		r.Skip(2 * uint32(glyphIndex))
		offset1 = 2 * uint32(r.ReadUint16())
		offset2 = 2 * uint32(r.ReadUint16())
	} else {
		r.Skip(4 * uint32(glyphIndex))
		offset1 = r.ReadUint32()
		offset2 = r.ReadUint32()
	}
	if r.EOF() || offset2 < offset1 || glyf.Length < offset2 {
		return nil, fmt.Errorf("loca: bad glyph window for glyph %d", glyphIndex)
	}
	return glyf.Data[offset1:offset2:offset2], nil
}

// RemoveDigitalSignature deletes the DSIG table if present.
func RemoveDigitalSignature(font *Font) {
	if _, ok := font.Tables[tagDSIG]; ok {
		delete(font.Tables, tagDSIG)
		font.NumTables = uint16(len(font.Tables))
	}
}
