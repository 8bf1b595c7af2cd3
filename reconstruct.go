package woff2

import "fmt"

func withSign(flag byte, baseval int32) int32 {
	if flag&1 != 0 {
		return baseval
	}
	return -baseval
}

// tripletDecode decodes nPoints point deltas from the glyph stream, using one
// flag byte per point. Coordinate accumulation wraps; the values are not
// security sensitive once the byte counts have been validated.
func tripletDecode(flags, in []byte, nPoints uint32) ([]Point, uint32, error) {
	var x, y int32
	if uint32(len(in)) < nPoints {
		return nil, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	tripletIndex := uint32(0)

	points := make([]Point, 0, nPoints)
	for i := uint32(0); i < nPoints; i++ {
		flag := flags[i]
		onCurve := flag>>7 == 0
		flag &= 0x7F
		var nDataBytes uint32
		if flag < 84 {
			nDataBytes = 1
		} else if flag < 120 {
			nDataBytes = 2
		} else if flag < 124 {
			nDataBytes = 3
		} else {
			nDataBytes = 4
		}
		if uint32(len(in)) < nDataBytes || uint32(len(in))-nDataBytes < tripletIndex {
			return nil, 0, fmt.Errorf("glyf: %w", ErrInvalidFontData)
		}
		var dx, dy int32
		if flag < 10 {
			dx = 0
			dy = withSign(flag, int32(flag&14)<<7+int32(in[tripletIndex]))
		} else if flag < 20 {
			dx = withSign(flag, int32((flag-10)&14)<<7+int32(in[tripletIndex]))
			dy = 0
		} else if flag < 84 {
			b0 := int32(flag - 20)
			b1 := int32(in[tripletIndex])
			dx = withSign(flag, 1+b0&0x30+b1>>4)
			dy = withSign(flag>>1, 1+(b0&0x0C)<<2+b1&0x0F)
		} else if flag < 120 {
			b0 := int32(flag - 84)
			dx = withSign(flag, 1+b0/12<<8+int32(in[tripletIndex]))
			dy = withSign(flag>>1, 1+b0%12>>2<<8+int32(in[tripletIndex+1]))
		} else if flag < 124 {
			b2 := int32(in[tripletIndex+1])
			dx = withSign(flag, int32(in[tripletIndex])<<4+b2>>4)
			dy = withSign(flag>>1, b2&0x0F<<8+int32(in[tripletIndex+2]))
		} else {
			dx = withSign(flag, int32(in[tripletIndex])<<8+int32(in[tripletIndex+1]))
			dy = withSign(flag>>1, int32(in[tripletIndex+2])<<8+int32(in[tripletIndex+3]))
		}
		tripletIndex += nDataBytes
		x += dx
		y += dy
		points = append(points, Point{X: x, Y: y, OnCurve: onCurve})
	}
	return points, tripletIndex, nil
}

// processComposite copies one composite component run to the destination
// glyph, which begins at offset 10 after the -1 contour count.
func processComposite(compositeStream *BinaryReader, dst []byte) (uint32, bool, error) {
	startOffset := compositeStream.Offset()
	weHaveInstructions := false

	flags := uint16(flagMoreComponents)
	for flags&flagMoreComponents != 0 {
		flags = compositeStream.ReadUint16()
		if compositeStream.EOF() {
			return 0, false, fmt.Errorf("glyf: %w", ErrInvalidFontData)
		}
		if flags&flagWeHaveInstructions != 0 {
			weHaveInstructions = true
		}
		argSize := uint32(2) // glyph index
		if flags&flagArg1And2AreWords != 0 {
			argSize += 4
		} else {
			argSize += 2
		}
		if flags&flagWeHaveAScale != 0 {
			argSize += 2
		} else if flags&flagWeHaveAnXAndYScale != 0 {
			argSize += 4
		} else if flags&flagWeHaveATwoByTwo != 0 {
			argSize += 8
		}
		compositeStream.Skip(argSize)
		if compositeStream.EOF() {
			return 0, false, fmt.Errorf("glyf: %w", ErrInvalidFontData)
		}
	}
	compositeGlyphSize := compositeStream.Offset() - startOffset
	if uint32(len(dst)) < compositeGlyphSize+compositeGlyphBegin {
		return 0, false, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	compositeStream.Seek(startOffset)
	storeUint16(dst, 0, 0xFFFF) // numberOfContours = -1
	copy(dst[compositeGlyphBegin:], compositeStream.ReadBytes(compositeGlyphSize))
	return compositeGlyphBegin + compositeGlyphSize, weHaveInstructions, nil
}

// processBboxStream overwrites glyph bounding boxes flagged in the bitmap.
// This is a separate pass so that composite boxes land after their glyphs are
// in place.
func processBboxStream(bitmap *BitmapReader, bboxStream *BinaryReader, numGlyphs int, locaValues []uint32, glyfDst []byte) error {
	for i := 0; i < numGlyphs; i++ {
		if !bitmap.Read() {
			continue
		}
		locaOffset := locaValues[i]
		if locaValues[i+1]-locaOffset < compositeGlyphBegin {
			return fmt.Errorf("glyf: glyph %d too small for bbox", i)
		}
		bbox := bboxStream.ReadBytes(8)
		if bboxStream.EOF() || uint32(len(glyfDst)) < 10 || uint32(len(glyfDst))-10 < locaOffset {
			return fmt.Errorf("glyf: %w", ErrInvalidFontData)
		}
		copy(glyfDst[locaOffset+2:locaOffset+10], bbox)
	}
	if bitmap.EOF() {
		return fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	return nil
}

// storeLocaValues emits the loca table in the given index format.
func storeLocaValues(locaValues []uint32, indexFormat int, locaDst []byte) error {
	entrySize := uint32(2)
	if indexFormat != 0 {
		entrySize = 4
	}
	if uint32(len(locaDst)) != entrySize*uint32(len(locaValues)) {
		return fmt.Errorf("loca: length must match %d entries", len(locaValues))
	}
	offset := uint32(0)
	for _, value := range locaValues {
		if indexFormat == 0 {
			if 65535 < value>>1 {
				return fmt.Errorf("loca: offset overflows short format")
			}
			storeUint16(locaDst, offset, uint16(value>>1))
		} else {
			storeUint32(locaDst, offset, value)
		}
		offset += entrySize
	}
	return nil
}

func storeUint32(dst []byte, offset uint32, v uint32) {
	dst[offset] = byte(v >> 24)
	dst[offset+1] = byte(v >> 16)
	dst[offset+2] = byte(v >> 8)
	dst[offset+3] = byte(v)
}

// reconstructGlyfLoca rebuilds the glyf and loca tables from the seven
// transform substreams into caller-sized destination buffers.
func reconstructGlyfLoca(data, glyfDst, locaDst []byte) error {
	r := NewBinaryReader(data)
	_ = r.ReadUint32() // version
	numGlyphs := int(r.ReadUint16())
	indexFormat := int(r.ReadUint16())
	nContourStreamSize := r.ReadUint32()
	nPointsStreamSize := r.ReadUint32()
	flagStreamSize := r.ReadUint32()
	glyphStreamSize := r.ReadUint32()
	compositeStreamSize := r.ReadUint32()
	bboxStreamSize := r.ReadUint32()
	instructionStreamSize := r.ReadUint32()
	if r.EOF() || nContourStreamSize != 2*uint32(numGlyphs) {
		return fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}

	bitmapSize := (uint32(numGlyphs) + 7) / 8
	if bboxStreamSize < bitmapSize {
		return fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	nContourStream := NewBinaryReader(r.ReadBytes(nContourStreamSize))
	nPointsStream := NewBinaryReader(r.ReadBytes(nPointsStreamSize))
	flagStream := NewBinaryReader(r.ReadBytes(flagStreamSize))
	glyphStream := NewBinaryReader(r.ReadBytes(glyphStreamSize))
	compositeStream := NewBinaryReader(r.ReadBytes(compositeStreamSize))
	bboxBitmap := NewBitmapReader(r.ReadBytes(bitmapSize))
	bboxStream := NewBinaryReader(r.ReadBytes(bboxStreamSize - bitmapSize))
	instructionStream := NewBinaryReader(r.ReadBytes(instructionStreamSize))
	if r.EOF() {
		return fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}

	locaValues := make([]uint32, numGlyphs+1)
	locaOffset := uint32(0)
	for i := 0; i < numGlyphs; i++ {
		glyphSize := uint32(0)
		nContours := nContourStream.ReadInt16()
		if nContourStream.EOF() {
			return fmt.Errorf("glyf: %w", ErrInvalidFontData)
		}
		glyfDstGlyph := glyfDst[locaOffset:]

		if nContours == -1 {
			// composite glyph
			size, haveInstructions, err := processComposite(compositeStream, glyfDstGlyph)
			if err != nil {
				return err
			}
			glyphSize = size
			if haveInstructions {
				instructionSize := uint32(read255Uint16(glyphStream))
				if glyphStream.EOF() {
					return fmt.Errorf("glyf: %w", ErrInvalidFontData)
				}
				if uint32(len(glyfDstGlyph))-glyphSize < instructionSize+2 {
					return fmt.Errorf("glyf: %w", ErrInvalidFontData)
				}
				storeUint16(glyfDstGlyph, glyphSize, uint16(instructionSize))
				instructions := instructionStream.ReadBytes(instructionSize)
				if instructionStream.EOF() {
					return fmt.Errorf("glyf: %w", ErrInvalidFontData)
				}
				copy(glyfDstGlyph[glyphSize+2:], instructions)
				glyphSize += instructionSize + 2
			}
		} else if 0 < nContours {
			// simple glyph
			totalPoints := uint32(0)
			nPointsVec := make([]uint32, nContours)
			for j := range nPointsVec {
				nPointsContour := uint32(read255Uint16(nPointsStream))
				if nPointsStream.EOF() {
					return fmt.Errorf("glyf: %w", ErrInvalidFontData)
				}
				nPointsVec[j] = nPointsContour
				totalPoints += nPointsContour
			}
			if flagStream.Len() < totalPoints {
				return fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			flags := flagStream.ReadBytes(totalPoints)
			triplets := glyphStream.ReadBytes(glyphStream.Len()) // rest of the stream
			points, tripletBytesConsumed, err := tripletDecode(flags, triplets, totalPoints)
			if err != nil {
				return err
			}
			glyphStream.Seek(glyphStream.Offset() - uint32(len(triplets)) + tripletBytesConsumed)

			headerAndEndpointsSize := uint32(compositeGlyphBegin) + 2*uint32(nContours)
			if uint32(len(glyfDstGlyph)) < headerAndEndpointsSize {
				return fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			storeUint16(glyfDstGlyph, 0, uint16(nContours))
			computeBbox(points, glyfDstGlyph)
			offset := uint32(compositeGlyphBegin)
			endPoint := -1
			for _, nPointsContour := range nPointsVec {
				endPoint += int(nPointsContour)
				if 65536 <= endPoint {
					return fmt.Errorf("glyf: endpoint overflow")
				}
				storeUint16(glyfDstGlyph, offset, uint16(endPoint))
				offset += 2
			}

			instructionSize := uint32(read255Uint16(glyphStream))
			if glyphStream.EOF() {
				return fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			if uint32(len(glyfDstGlyph))-headerAndEndpointsSize < instructionSize+2 {
				return fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			storeUint16(glyfDstGlyph, headerAndEndpointsSize, uint16(instructionSize))
			instructions := instructionStream.ReadBytes(instructionSize)
			if instructionStream.EOF() {
				return fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			copy(glyfDstGlyph[headerAndEndpointsSize+2:], instructions)

			glyphSize, err = storePoints(points, uint32(nContours), instructionSize, glyfDstGlyph)
			if err != nil {
				return err
			}
		}

		locaValues[i] = locaOffset
		if glyphSize+3 < glyphSize {
			return fmt.Errorf("glyf: %w", ErrInvalidFontData)
		}
		glyphSize = round4(glyphSize)
		if uint32(len(glyfDst))-locaOffset < glyphSize {
			return fmt.Errorf("glyf: %w", ErrInvalidFontData)
		}
		locaOffset += glyphSize
	}
	locaValues[numGlyphs] = locaOffset

	if err := processBboxStream(bboxBitmap, bboxStream, numGlyphs, locaValues, glyfDst); err != nil {
		return err
	}
	return storeLocaValues(locaValues, indexFormat, locaDst)
}
