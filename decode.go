package woff2

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/andybalholm/brotli"
)

type woff2Table struct {
	tag             uint32
	flags           uint32
	srcOffset       uint32
	srcLength       uint32
	transformLength uint32
	dstOffset       uint32
	dstLength       uint32
}

// ttcFont is the metadata needed to rebuild one font of a collection.
type ttcFont struct {
	flavor       uint32
	dstOffset    uint32
	tableIndices []uint16
}

// ComputeWOFF2FinalSize returns the totalSfntSize field of the header, or zero
// when the header is malformed. Callers should clamp the result before
// allocating, the field is untrusted.
func ComputeWOFF2FinalSize(data []byte) uint32 {
	r := NewBinaryReader(data)
	r.Skip(16)
	totalSfntSize := r.ReadUint32()
	if r.EOF() {
		return 0
	}
	return totalSfntSize
}

// WOFF2Out is the decoder output sink.
type WOFF2Out interface {
	io.Writer
	Size() uint32
}

// WOFF2StringOut is a growable buffer sink with a hard size limit.
type WOFF2StringOut struct {
	buf     []byte
	MaxSize uint32
}

// NewWOFF2StringOut returns a sink limited to maxSize bytes.
func NewWOFF2StringOut(maxSize uint32) *WOFF2StringOut {
	return &WOFF2StringOut{MaxSize: maxSize}
}

// Write complies with io.Writer and fails when the size limit is exceeded.
func (o *WOFF2StringOut) Write(b []byte) (int, error) {
	if uint64(o.MaxSize) < uint64(len(o.buf))+uint64(len(b)) {
		return 0, ErrExceedsMemory
	}
	o.buf = append(o.buf, b...)
	return len(b), nil
}

// Size returns the number of bytes written.
func (o *WOFF2StringOut) Size() uint32 {
	return uint32(len(o.buf))
}

// Bytes returns the written bytes.
func (o *WOFF2StringOut) Bytes() []byte {
	return o.buf
}

// ConvertWOFF2ToTTF decodes a WOFF2 font and appends the SFNT result to the sink.
func ConvertWOFF2ToTTF(data []byte, out WOFF2Out) error {
	b, err := ParseWOFF2(data)
	if err != nil {
		return err
	}
	_, err = out.Write(b)
	return err
}

func readTableDirectory(r *BinaryReader, numTables int) ([]woff2Table, uint32, error) {
	tables := make([]woff2Table, numTables)
	var uncompressedSize uint32
	for i := 0; i < numTables; i++ {
		table := &tables[i]
		flagByte := r.ReadByte()
		if r.EOF() {
			return nil, 0, ErrInvalidFontData
		}
		if flagByte&0x3F == 0x3F {
			table.tag = r.ReadUint32()
			if r.EOF() {
				return nil, 0, ErrInvalidFontData
			}
		} else {
			table.tag = stringToUint32(knownTableTags[flagByte&0x3F])
		}
		// bits 6 and 7 are reserved and must be zero
		if flagByte&0xC0 != 0 {
			return nil, 0, fmt.Errorf("%s: reserved flag bits must be zero", uint32ToString(table.tag))
		}
		if 0 < i {
			table.flags |= woff2FlagsContinueStream
		}
		// glyf and loca are always transformed
		if table.tag == tagGlyf || table.tag == tagLoca {
			table.flags |= woff2FlagsTransform
		}
		dstLength, err := readUintBase128(r)
		if err != nil {
			return nil, 0, err
		}
		transformLength := dstLength
		if table.flags&woff2FlagsTransform != 0 {
			if transformLength, err = readUintBase128(r); err != nil {
				return nil, 0, err
			}
			if table.tag == tagLoca && transformLength != 0 {
				return nil, 0, fmt.Errorf("loca: transformLength must be zero")
			}
		}
		if 0xFFFFFFFF-uncompressedSize < transformLength {
			return nil, 0, ErrInvalidFontData
		}
		uncompressedSize += transformLength
		table.transformLength = transformLength
		table.dstLength = dstLength
	}
	return tables, uncompressedSize, nil
}

func findWoff2Table(tables []woff2Table, tag uint32) *woff2Table {
	for i := range tables {
		if tables[i].tag == tag {
			return &tables[i]
		}
	}
	return nil
}

func woff2Uncompress(src []byte, dstSize uint32) ([]byte, error) {
	dst := bytes.NewBuffer(make([]byte, 0, dstSize))
	if _, err := io.Copy(dst, brotli.NewReader(bytes.NewReader(src))); err != nil {
		return nil, err
	}
	if uint32(dst.Len()) != dstSize {
		return nil, fmt.Errorf("sum of table lengths must match decompressed font data size")
	}
	return dst.Bytes(), nil
}

func reconstructTransformedGlyf(transformBuf []byte, glyfTable, locaTable *woff2Table, result []byte) error {
	if glyfTable == nil || locaTable == nil {
		return fmt.Errorf("glyf and loca tables must both be present")
	}
	if uint64(len(result)) < uint64(glyfTable.dstOffset)+uint64(glyfTable.dstLength) ||
		uint64(len(result)) < uint64(locaTable.dstOffset)+uint64(locaTable.dstLength) {
		return ErrInvalidFontData
	}
	glyfDst := result[glyfTable.dstOffset : glyfTable.dstOffset+glyfTable.dstLength]
	locaDst := result[locaTable.dstOffset : locaTable.dstOffset+locaTable.dstLength]
	return reconstructGlyfLoca(transformBuf, glyfDst, locaDst)
}

func fixSFNTChecksums(tables []*woff2Table, headerOffset, headerSize uint32, result []byte) error {
	var head *woff2Table
	for _, table := range tables {
		if table.tag == tagHead {
			head = table
		}
	}
	if head == nil || head.dstLength < 12 {
		return fmt.Errorf("head: missing table")
	}
	adjustmentOffset := head.dstOffset + 8
	storeUint32(result, adjustmentOffset, 0)

	var fileChecksum uint32
	for i, table := range tables {
		checksum := calcChecksum(result[table.dstOffset : table.dstOffset+round4(table.dstLength)])
		storeUint32(result, headerOffset+12+uint32(i)*16+4, checksum)
		fileChecksum += checksum
	}
	fileChecksum += calcChecksum(result[headerOffset : headerOffset+headerSize])
	storeUint32(result, adjustmentOffset, 0xB1B0AFBA-fileChecksum)
	return nil
}

// ParseWOFF2 parses the WOFF2 font format and returns its contained SFNT font
// (TTF, OTF, or TTC). See https://www.w3.org/TR/WOFF2/
func ParseWOFF2(data []byte) ([]byte, error) {
	if len(data) < woff2HeaderSize {
		return nil, ErrInvalidFontData
	}

	r := NewBinaryReader(data)
	signature := r.ReadUint32()
	if signature != woff2Signature {
		return nil, fmt.Errorf("bad signature")
	}
	flavor := r.ReadUint32()
	length := r.ReadUint32()
	numTables := r.ReadUint16()
	reserved := r.ReadUint16()
	totalSfntSize := r.ReadUint32()
	totalCompressedSize := r.ReadUint32()
	_ = r.ReadUint16() // majorVersion
	_ = r.ReadUint16() // minorVersion
	metaOffset := r.ReadUint32()
	metaLength := r.ReadUint32()
	_ = r.ReadUint32() // metaOrigLength
	privOffset := r.ReadUint32()
	privLength := r.ReadUint32()
	if r.EOF() {
		return nil, ErrInvalidFontData
	} else if length != uint32(len(data)) {
		return nil, fmt.Errorf("length in header must match file size")
	} else if numTables == 0 {
		return nil, fmt.Errorf("numTables in header must not be zero")
	} else if reserved != 0 {
		return nil, fmt.Errorf("reserved in header must be zero")
	}
	if metaOffset != 0 && (uint32(len(data)) <= metaOffset || uint32(len(data))-metaOffset < metaLength) {
		return nil, ErrInvalidFontData
	}
	if privOffset != 0 && (uint32(len(data)) <= privOffset || uint32(len(data))-privOffset < privLength) {
		return nil, ErrInvalidFontData
	}
	if MaxMemory < totalSfntSize {
		return nil, ErrExceedsMemory
	}

	tables, uncompressedSize, err := readTableDirectory(r, int(numTables))
	if err != nil {
		return nil, err
	}
	if MaxMemory < uncompressedSize {
		return nil, ErrExceedsMemory
	}

	isCollection := flavor == tagTtcf
	var headerVersion uint32
	var ttcFonts []ttcFont
	locaByGlyf := map[*woff2Table]*woff2Table{}
	if isCollection {
		headerVersion = r.ReadUint32()
		if headerVersion != 0x00010000 && headerVersion != 0x00020000 {
			return nil, fmt.Errorf("ttcf: bad header version")
		}
		numFonts := read255Uint16(r)
		if r.EOF() || numFonts == 0 {
			return nil, ErrInvalidFontData
		}
		ttcFonts = make([]ttcFont, numFonts)
		for i := range ttcFonts {
			font := &ttcFonts[i]
			numFontTables := read255Uint16(r)
			if r.EOF() || numFontTables == 0 {
				return nil, ErrInvalidFontData
			}
			font.flavor = r.ReadUint32()
			font.tableIndices = make([]uint16, numFontTables)

			var glyfTable, locaTable *woff2Table
			seen := map[uint32]bool{}
			for j := range font.tableIndices {
				index := read255Uint16(r)
				if r.EOF() || numTables <= index {
					return nil, ErrInvalidFontData
				}
				font.tableIndices[j] = index

				table := &tables[index]
				if seen[table.tag] {
					return nil, fmt.Errorf("%s: table defined more than once", uint32ToString(table.tag))
				}
				seen[table.tag] = true
				if table.tag == tagGlyf {
					glyfTable = table
				} else if table.tag == tagLoca {
					locaTable = table
				}
			}
			if (glyfTable == nil) != (locaTable == nil) {
				return nil, fmt.Errorf("glyf and loca tables must both be present")
			}
			if glyfTable != nil {
				locaByGlyf[glyfTable] = locaTable
			}
		}
	} else {
		seen := map[uint32]bool{}
		for i := range tables {
			if seen[tables[i].tag] {
				return nil, fmt.Errorf("%s: table defined more than once", uint32ToString(tables[i].tag))
			}
			seen[tables[i].tag] = true
		}
		if seen[tagGlyf] != seen[tagLoca] {
			return nil, fmt.Errorf("glyf and loca tables must both be present")
		}
	}

	// compute the offset to the first table, after all headers and directories
	firstTableOffset := uint64(12 + 16*uint32(numTables))
	if isCollection {
		firstTableOffset = uint64(collectionHeaderSize(headerVersion, len(ttcFonts)))
		for _, font := range ttcFonts {
			firstTableOffset += 12 + 16*uint64(len(font.tableIndices))
		}
	}
	if uint64(totalSfntSize) < firstTableOffset {
		return nil, ErrInvalidFontData
	}

	srcOffset := uint64(r.Offset())
	dstOffset := firstTableOffset
	for i := range tables {
		table := &tables[i]
		table.srcOffset = uint32(srcOffset)
		if i == 0 {
			table.srcLength = totalCompressedSize
		}
		srcOffset += uint64(table.srcLength)
		if 0xFFFFFFFF < srcOffset {
			return nil, ErrInvalidFontData
		}
		srcOffset = uint64(round4(uint32(srcOffset)))
		table.dstOffset = uint32(dstOffset)
		dstOffset += uint64(table.dstLength)
		if 0xFFFFFFFF < dstOffset {
			return nil, ErrInvalidFontData
		}
		dstOffset = uint64(round4(uint32(dstOffset)))
	}
	if uint64(len(data)) < srcOffset || dstOffset != uint64(totalSfntSize) {
		return nil, ErrInvalidFontData
	}

	if metaOffset != 0 {
		if srcOffset != uint64(metaOffset) {
			return nil, ErrInvalidFontData
		}
		srcOffset = uint64(round4(metaOffset + metaLength))
	}
	if privOffset != 0 {
		if srcOffset != uint64(privOffset) {
			return nil, ErrInvalidFontData
		}
		srcOffset = uint64(round4(privOffset + privLength))
	}
	if srcOffset != uint64(round4(length)) {
		return nil, ErrInvalidFontData
	}

	// re-order tables in output (OTSpec) order
	var sortedTables []*woff2Table
	if isCollection {
		for i := range ttcFonts {
			font := &ttcFonts[i]
			sort.Slice(font.tableIndices, func(a, b int) bool {
				return tables[font.tableIndices[a]].tag < tables[font.tableIndices[b]].tag
			})
		}
	} else {
		sortedTables = make([]*woff2Table, numTables)
		for i := range tables {
			sortedTables[i] = &tables[i]
		}
		sort.Slice(sortedTables, func(a, b int) bool { return sortedTables[a].tag < sortedTables[b].tag })
	}

	// start building the font
	result := make([]byte, totalSfntSize)
	if isCollection {
		offset := uint32(0)
		storeUint32(result, offset, tagTtcf)
		storeUint32(result, offset+4, headerVersion)
		storeUint32(result, offset+8, uint32(len(ttcFonts)))
		offsetTable := offset + 12
		offset += collectionHeaderSize(headerVersion, len(ttcFonts))
		// the DSIG fields of a version 2 header stay zero

		for i := range ttcFonts {
			font := &ttcFonts[i]
			storeUint32(result, offsetTable, offset)
			offsetTable += 4
			font.dstOffset = offset

			w := NewBinaryWriter(make([]byte, 0, 12+16*len(font.tableIndices)))
			storeOffsetTable(w, font.flavor, uint16(len(font.tableIndices)))
			for _, index := range font.tableIndices {
				table := &tables[index]
				w.WriteUint32(table.tag)
				w.WriteUint32(0) // checksum is filled in later
				w.WriteUint32(table.dstOffset)
				w.WriteUint32(table.dstLength)
			}
			copy(result[offset:], w.Bytes())
			offset += w.Len()
		}
	} else {
		w := NewBinaryWriter(make([]byte, 0, firstTableOffset))
		storeOffsetTable(w, flavor, numTables)
		for _, table := range sortedTables {
			w.WriteUint32(table.tag)
			w.WriteUint32(0) // checksum is filled in later
			w.WriteUint32(table.dstOffset)
			w.WriteUint32(table.dstLength)
		}
		copy(result, w.Bytes())
	}

	// uncompress the single brotli stream and detransform the tables
	if uint64(len(data)) < uint64(tables[0].srcOffset)+uint64(totalCompressedSize) {
		return nil, ErrInvalidFontData
	}
	transformBuf, err := woff2Uncompress(data[tables[0].srcOffset:tables[0].srcOffset+totalCompressedSize], uncompressedSize)
	if err != nil {
		return nil, err
	}

	var transformOffset uint32
	for i := range tables {
		table := &tables[i]
		if i != 0 && table.flags&woff2FlagsContinueStream == 0 {
			return nil, fmt.Errorf("%s: all tables after the first must continue the stream", uint32ToString(table.tag))
		}
		transformData := transformBuf[transformOffset : transformOffset+table.transformLength]
		transformOffset += table.transformLength

		if table.flags&woff2FlagsTransform == 0 {
			if table.transformLength != table.dstLength {
				return nil, ErrInvalidFontData
			}
			copy(result[table.dstOffset:], transformData)
		} else if table.tag == tagGlyf {
			var locaTable *woff2Table
			if isCollection {
				locaTable = locaByGlyf[table]
			} else {
				locaTable = findWoff2Table(tables, tagLoca)
			}
			if err := reconstructTransformedGlyf(transformData, table, locaTable, result); err != nil {
				return nil, err
			}
		} else if table.tag == tagLoca {
			// reconstructed together with its glyf table
			if !isCollection && findWoff2Table(tables, tagGlyf) == nil {
				return nil, fmt.Errorf("loca: must come with a glyf table")
			}
		} else {
			return nil, fmt.Errorf("%s: transform is not known", uint32ToString(table.tag))
		}
	}

	// fix the checksums per font over the final bytes
	if isCollection {
		for i := range ttcFonts {
			font := &ttcFonts[i]
			fontTables := make([]*woff2Table, len(font.tableIndices))
			for j, index := range font.tableIndices {
				fontTables[j] = &tables[index]
			}
			headerSize := uint32(12 + 16*len(font.tableIndices))
			if err := fixSFNTChecksums(fontTables, font.dstOffset, headerSize, result); err != nil {
				return nil, err
			}
		}
	} else {
		headerSize := uint32(12 + 16*uint32(numTables))
		if err := fixSFNTChecksums(sortedTables, 0, headerSize, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}
