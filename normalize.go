package woff2

import "fmt"

// makeEditableBuffer replaces the table's view into the input with an owned
// copy, padded to a 4-byte multiple.
func makeEditableBuffer(font *Font, tag uint32) error {
	table := font.FindTable(tag)
	if table == nil {
		return fmt.Errorf("%s: missing table", uint32ToString(tag))
	}
	buf := make([]byte, round4(table.Length))
	copy(buf, table.Data)
	table.Buffer = buf
	table.Data = buf
	return nil
}

func storeLocaEntry(w *BinaryWriter, indexFormat int, value uint32) {
	if indexFormat == 0 {
		w.WriteUint16(uint16(value >> 1))
	} else {
		w.WriteUint32(value)
	}
}

// writeNormalizedLoca re-emits every glyph in canonical form and rebuilds the
// loca table. It fails when the short index format cannot hold the offsets.
func writeNormalizedLoca(font *Font, indexFormat, numGlyphs int) error {
	glyfTable := font.FindTable(tagGlyf)
	locaTable := font.FindTable(tagLoca)

	glyf := NewBinaryWriter(make([]byte, 0, glyfTable.Length+glyfTable.Length/10+2*uint32(numGlyphs)))
	entrySize := uint32(2)
	if indexFormat != 0 {
		entrySize = 4
	}
	loca := NewBinaryWriter(make([]byte, 0, entrySize*uint32(numGlyphs+1)))

	for i := 0; i < numGlyphs; i++ {
		storeLocaEntry(loca, indexFormat, glyf.Len())
		glyphData, err := GetGlyphData(font, i)
		if err != nil {
			return err
		}
		glyph, err := ReadGlyph(glyphData)
		if err != nil {
			return err
		}
		if !glyph.IsComposite() {
			normalizeSimpleGlyphBoundingBox(glyph)
		}
		b, err := StoreGlyph(glyph)
		if err != nil {
			return err
		}
		glyf.WriteBytes(b)
		for glyf.Len()%4 != 0 {
			glyf.WriteByte(0)
		}
		if indexFormat == 0 && 1<<17 <= glyf.Len() {
			return fmt.Errorf("loca: offset overflows short format")
		}
	}
	storeLocaEntry(loca, indexFormat, glyf.Len())

	glyfTable.Buffer = glyf.Bytes()
	glyfTable.Data = glyfTable.Buffer
	glyfTable.Length = glyf.Len()
	locaTable.Buffer = loca.Bytes()
	locaTable.Data = locaTable.Buffer
	locaTable.Length = loca.Len()
	return nil
}

func normalizeSimpleGlyphBoundingBox(glyph *Glyph) {
	if len(glyph.Contours) == 0 || len(glyph.Contours[0]) == 0 {
		return
	}
	xMin, yMin := glyph.Contours[0][0].X, glyph.Contours[0][0].Y
	xMax, yMax := xMin, yMin
	for _, contour := range glyph.Contours {
		for _, point := range contour {
			if point.X < xMin {
				xMin = point.X
			}
			if xMax < point.X {
				xMax = point.X
			}
			if point.Y < yMin {
				yMin = point.Y
			}
			if yMax < point.Y {
				yMax = point.Y
			}
		}
	}
	glyph.XMin = int16(xMin)
	glyph.YMin = int16(yMin)
	glyph.XMax = int16(xMax)
	glyph.YMax = int16(yMax)
}

// normalizeGlyphs rewrites loca and glyf into canonical form so that encoding
// is deterministic. CFF flavored fonts have nothing to normalize.
func normalizeGlyphs(font *Font) error {
	cffTable := font.FindTable(tagCFF)
	headTable := font.FindTable(tagHead)
	glyfTable := font.FindTable(tagGlyf)
	locaTable := font.FindTable(tagLoca)
	if headTable == nil {
		return fmt.Errorf("head: missing table")
	}
	if cffTable != nil && glyfTable == nil && locaTable == nil {
		return nil
	}
	if glyfTable == nil || locaTable == nil {
		return fmt.Errorf("glyf and loca tables must both be present")
	}
	if headTable.Length < 52 {
		return fmt.Errorf("head: too short")
	}

	indexFormat := IndexFormat(font)
	numGlyphs := NumGlyphs(font)
	if err := writeNormalizedLoca(font, indexFormat, numGlyphs); err != nil {
		if indexFormat != 0 {
			return err
		}
		// retry with long offsets and update head to match
		if err := writeNormalizedLoca(font, 1, numGlyphs); err != nil {
			return err
		}
		headTable.Buffer[51] = 1
	}
	return nil
}

// normalizeOffsets lays the tables out at their canonical offsets.
func normalizeOffsets(font *Font) {
	offset := uint32(12 + 16*uint32(font.NumTables))
	for _, tag := range font.SortedTags() {
		table := font.Tables[tag]
		table.Offset = offset
		offset += round4(table.Length)
	}
}

func headerChecksum(font *Font) uint32 {
	checksum := font.Flavor
	var maxPow2 uint16
	for 1<<(maxPow2+1) <= font.NumTables {
		maxPow2++
	}
	var searchRange uint16
	if font.NumTables != 0 {
		searchRange = 1 << (maxPow2 + 4)
	}
	rangeShift := font.NumTables<<4 - searchRange
	checksum += uint32(font.NumTables)<<16 | uint32(searchRange)
	checksum += uint32(maxPow2)<<16 | uint32(rangeShift)
	for _, table := range font.Tables {
		checksum += table.Tag
		checksum += table.Checksum
		checksum += table.Offset
		checksum += table.Length
	}
	return checksum
}

// fixChecksums recomputes every table checksum and head.checkSumAdjustment.
func fixChecksums(font *Font) error {
	headTable := font.FindTable(tagHead)
	if headTable == nil || headTable.Length < 12 || headTable.Buffer == nil {
		return fmt.Errorf("head: missing or not editable")
	}
	storeUint32(headTable.Buffer, 8, 0)
	var fileChecksum uint32
	for _, table := range font.Tables {
		table.Checksum = calcTableChecksum(table.Data[:table.Length])
		fileChecksum += table.Checksum
	}
	fileChecksum += headerChecksum(font)
	storeUint32(headTable.Buffer, 8, 0xB1B0AFBA-fileChecksum)
	return nil
}

func normalizeFont(font *Font) error {
	if err := makeEditableBuffer(font, tagHead); err != nil {
		return err
	}
	RemoveDigitalSignature(font)
	if err := normalizeGlyphs(font); err != nil {
		return err
	}
	normalizeOffsets(font)
	return fixChecksums(font)
}

// collectionHeaderSize is the size of the ttcf header for the given version
// and font count.
func collectionHeaderSize(headerVersion uint32, numFonts int) uint32 {
	size := uint32(12 + 4*numFonts)
	if headerVersion == 0x00020000 {
		size += 12 // ulDsigTag, ulDsigLength, ulDsigOffset
	}
	return size
}

// normalizeFontCollection normalizes every font and lays the collection out
// sequentially; reused tables keep the offset of their first occurrence.
func normalizeFontCollection(collection *FontCollection) error {
	if len(collection.Fonts) == 1 {
		return normalizeFont(collection.Fonts[0])
	}

	for _, font := range collection.Fonts {
		if err := makeEditableBuffer(font, tagHead); err != nil {
			return err
		}
		RemoveDigitalSignature(font)
		if err := normalizeGlyphs(font); err != nil {
			return err
		}
	}

	// all font directories come first, then the table data
	offset := collectionHeaderSize(collection.HeaderVersion, len(collection.Fonts))
	for _, font := range collection.Fonts {
		offset += 12 + 16*uint32(font.NumTables)
	}
	for _, font := range collection.Fonts {
		for _, tag := range font.SortedTags() {
			table := font.Tables[tag]
			if table.IsReused() {
				table.Offset = table.ReuseOf.Offset
				continue
			}
			table.Offset = offset
			offset += round4(table.Length)
		}
	}

	for _, font := range collection.Fonts {
		if err := fixChecksums(font); err != nil {
			return err
		}
	}
	return nil
}
