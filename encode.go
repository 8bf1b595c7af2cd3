package woff2

import (
	"fmt"

	"github.com/andybalholm/brotli"
)

const (
	woff2Signature  = 0x774F4632 // wOF2
	woff2HeaderSize = 48

	woff2FlagsContinueStream = 1 << 4
	woff2FlagsTransform      = 1 << 5
)

// WOFF2Params are the encoder knobs. A zero Quality means the default 11.
type WOFF2Params struct {
	Quality          int
	ExtendedMetadata []byte
}

// MaxWOFF2CompressedSize returns an upper bound for the size of the encoded
// font. Except for the header, which is larger in WOFF2, every part of the
// output is smaller than its SFNT original.
func MaxWOFF2CompressedSize(data, extendedMetadata []byte) uint32 {
	return uint32(len(data)) + 1024 + uint32(len(extendedMetadata))
}

type woff2TableEntry struct {
	tag             uint32
	flags           uint32
	srcLength       uint32
	transformLength uint32
	dstLength       uint32
	dstData         []byte
}

func tableEntrySize(entry *woff2TableEntry) uint32 {
	size := uint32(1)
	if knownTableIndex(entry.tag) == 63 {
		size += 4
	}
	size += base128Size(entry.srcLength)
	if entry.flags&woff2FlagsTransform != 0 {
		size += base128Size(entry.transformLength)
	}
	return size
}

func storeTableEntry(w *BinaryWriter, entry *woff2TableEntry) {
	index := knownTableIndex(entry.tag)
	w.WriteByte(byte(index))
	if index == 63 {
		w.WriteUint32(entry.tag)
	}
	writeUintBase128(w, entry.srcLength)
	if entry.flags&woff2FlagsTransform != 0 {
		writeUintBase128(w, entry.transformLength)
	}
}

func computeUncompressedFontLength(font *Font) uint32 {
	size := uint32(12 + 16*uint32(font.NumTables))
	for _, table := range font.Tables {
		if isTransformedTag(table.Tag) || table.IsReused() {
			continue
		}
		size += round4(table.Length)
	}
	return size
}

func computeUncompressedLength(collection *FontCollection) uint32 {
	if len(collection.Fonts) == 1 {
		return computeUncompressedFontLength(collection.Fonts[0])
	}
	size := collectionHeaderSize(collection.HeaderVersion, len(collection.Fonts))
	for _, font := range collection.Fonts {
		size += computeUncompressedFontLength(font)
	}
	return size
}

func computeTotalTransformLength(font *Font) uint32 {
	var total uint32
	for _, tag := range font.OutputOrderedTags() {
		table := font.Tables[tag]
		if table.IsReused() {
			continue
		}
		if transformed := font.FindTable(transformedTag(tag)); transformed != nil {
			total += transformed.Length
		} else {
			total += table.Length
		}
	}
	return total
}

func computeWOFF2Length(collection *FontCollection, entries []*woff2TableEntry, indexByOffset map[uint32]uint16, metadataLength uint32) uint32 {
	size := uint32(woff2HeaderSize)
	for _, entry := range entries {
		size += tableEntrySize(entry)
	}

	if 1 < len(collection.Fonts) {
		size += 4                                                 // header version
		size += size255Uint16(uint16(len(collection.Fonts)))      // numFonts
		for _, font := range collection.Fonts {
			numTables := uint16(0)
			for _, tag := range font.SortedTags() {
				if isTransformedTag(tag) {
					continue
				}
				numTables++
			}
			size += size255Uint16(numTables)
			size += 4 // flavor
			for _, tag := range font.SortedTags() {
				table := font.Tables[tag]
				if isTransformedTag(tag) {
					continue
				}
				offset := table.Offset
				if table.IsReused() {
					offset = table.ReuseOf.Offset
				}
				size += size255Uint16(indexByOffset[offset])
			}
		}
	}

	for _, entry := range entries {
		size += entry.dstLength
		size = round4(size)
	}
	size += metadataLength
	return size
}

func woff2Compress(data []byte, quality int) ([]byte, error) {
	w := NewBinaryWriter(make([]byte, 0, len(data)/2+1024))
	bw := brotli.NewWriterOptions(w, brotli.WriterOptions{Quality: quality})
	if _, err := bw.Write(data); err != nil {
		return nil, err
	}
	if err := bw.Close(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// ConvertTTFToWOFF2 converts an SFNT font or collection to WOFF2.
func ConvertTTFToWOFF2(data []byte, params WOFF2Params) ([]byte, error) {
	quality := params.Quality
	if quality == 0 {
		quality = 11
	}
	if quality < 1 || 11 < quality {
		return nil, fmt.Errorf("quality must be between 1 and 11")
	}

	collection, err := ReadFontCollection(data)
	if err != nil {
		return nil, err
	}
	if err := normalizeFontCollection(collection); err != nil {
		return nil, err
	}
	for _, font := range collection.Fonts {
		if err := transformGlyfAndLoca(font); err != nil {
			return nil, err
		}
	}

	// collect all transformed data into one place and compress it as a single stream
	var totalTransformLength uint32
	for _, font := range collection.Fonts {
		totalTransformLength += computeTotalTransformLength(font)
	}
	if MaxMemory < totalTransformLength {
		return nil, ErrExceedsMemory
	}
	transformBuf := NewBinaryWriter(make([]byte, 0, totalTransformLength))
	for _, font := range collection.Fonts {
		for _, tag := range font.OutputOrderedTags() {
			table := font.Tables[tag]
			if table.IsReused() {
				continue
			}
			if transformed := font.FindTable(transformedTag(tag)); transformed != nil {
				transformBuf.WriteBytes(transformed.Data[:transformed.Length])
			} else {
				transformBuf.WriteBytes(table.Data[:table.Length])
			}
		}
	}
	compressed, err := woff2Compress(transformBuf.Bytes(), quality)
	if err != nil {
		return nil, fmt.Errorf("compression of combined table failed: %w", err)
	}
	totalCompressedLength := uint32(len(compressed))

	var compressedMetadata []byte
	if 0 < len(params.ExtendedMetadata) {
		if compressedMetadata, err = woff2Compress(params.ExtendedMetadata, quality); err != nil {
			return nil, fmt.Errorf("compression of extended metadata failed: %w", err)
		}
	}

	entries := []*woff2TableEntry{}
	indexByOffset := map[uint32]uint16{}
	for _, font := range collection.Fonts {
		for _, tag := range font.OutputOrderedTags() {
			srcTable := font.Tables[tag]
			if srcTable.IsReused() {
				continue
			}
			if _, ok := indexByOffset[srcTable.Offset]; ok {
				return nil, fmt.Errorf("%s: duplicate table offset", uint32ToString(tag))
			}
			indexByOffset[srcTable.Offset] = uint16(len(entries))

			entry := &woff2TableEntry{
				tag:             srcTable.Tag,
				srcLength:       srcTable.Length,
				transformLength: srcTable.Length,
			}
			if transformed := font.FindTable(transformedTag(tag)); transformed != nil {
				entry.flags |= woff2FlagsTransform
				entry.transformLength = transformed.Length
			}
			if len(entries) == 0 {
				entry.dstLength = totalCompressedLength
				entry.dstData = compressed
			} else {
				entry.flags |= woff2FlagsContinueStream
			}
			entries = append(entries, entry)
		}
	}
	if 65535 < len(entries) {
		return nil, ErrInvalidFontData
	}

	woff2Length := computeWOFF2Length(collection, entries, indexByOffset, uint32(len(compressedMetadata)))

	firstFont := collection.Fonts[0]
	head := firstFont.FindTable(tagHead)
	if head == nil || head.Length < 8 {
		return nil, fmt.Errorf("head: missing table")
	}

	w := NewBinaryWriter(make([]byte, 0, woff2Length))
	w.WriteUint32(woff2Signature)
	if len(collection.Fonts) == 1 {
		w.WriteUint32(firstFont.Flavor)
	} else {
		w.WriteUint32(tagTtcf)
	}
	w.WriteUint32(woff2Length)
	w.WriteUint16(uint16(len(entries)))
	w.WriteUint16(0) // reserved
	w.WriteUint32(computeUncompressedLength(collection)) // totalSfntSize
	w.WriteUint32(totalCompressedLength)
	w.WriteBytes(head.Data[4:8]) // fontRevision in the version slots
	if 0 < len(compressedMetadata) {
		w.WriteUint32(woff2Length - uint32(len(compressedMetadata))) // metaOffset
		w.WriteUint32(uint32(len(compressedMetadata)))               // metaLength
		w.WriteUint32(uint32(len(params.ExtendedMetadata)))          // metaOrigLength
	} else {
		w.WriteUint32(0) // metaOffset
		w.WriteUint32(0) // metaLength
		w.WriteUint32(0) // metaOrigLength
	}
	w.WriteUint32(0) // privOffset
	w.WriteUint32(0) // privLength

	for _, entry := range entries {
		storeTableEntry(w, entry)
	}

	if 1 < len(collection.Fonts) {
		w.WriteUint32(collection.HeaderVersion)
		write255Uint16(w, uint16(len(collection.Fonts)))
		for _, font := range collection.Fonts {
			numTables := uint16(0)
			for _, tag := range font.SortedTags() {
				if !isTransformedTag(tag) {
					numTables++
				}
			}
			write255Uint16(w, numTables)
			w.WriteUint32(font.Flavor)
			for _, tag := range font.SortedTags() {
				table := font.Tables[tag]
				if isTransformedTag(tag) {
					continue
				}
				offset := table.Offset
				if table.IsReused() {
					offset = table.ReuseOf.Offset
				}
				index, ok := indexByOffset[offset]
				if !ok {
					return nil, fmt.Errorf("%s: missing table index", uint32ToString(tag))
				}
				write255Uint16(w, index)
			}
		}
	}

	for _, entry := range entries {
		w.WriteBytes(entry.dstData[:entry.dstLength])
		for w.Len()%4 != 0 {
			w.WriteByte(0)
		}
	}
	w.WriteBytes(compressedMetadata)

	if w.Len() != woff2Length {
		return nil, fmt.Errorf("mismatch between computed and actual length")
	}
	return w.Bytes(), nil
}
