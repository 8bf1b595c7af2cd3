package woff2

import "fmt"

// transformGlyfAndLoca decomposes the glyf table into the seven transform
// substreams and registers the result under the glyf/loca pseudo-tags. Fonts
// without glyph outlines (CFF flavored) are left untouched.
func transformGlyfAndLoca(font *Font) error {
	glyf := font.FindTable(tagGlyf)
	loca := font.FindTable(tagLoca)
	if glyf == nil && loca == nil {
		return nil
	} else if glyf == nil || loca == nil {
		return fmt.Errorf("glyf and loca tables must both be present")
	}
	head := font.FindTable(tagHead)
	if head == nil || head.Length < 52 {
		return fmt.Errorf("head: missing or too short")
	}

	numGlyphs := NumGlyphs(font)
	if numGlyphs < 0 || 65536 <= numGlyphs {
		return fmt.Errorf("loca: bad glyph count")
	}
	bitmapSize := (uint32(numGlyphs) + 7) / 8

	nContourStream := NewBinaryWriter([]byte{})
	nPointsStream := NewBinaryWriter([]byte{})
	flagStream := NewBinaryWriter([]byte{})
	glyphStream := NewBinaryWriter([]byte{})
	compositeStream := NewBinaryWriter([]byte{})
	bboxBitmap := NewBitmapWriter(make([]byte, bitmapSize))
	bboxStream := NewBinaryWriter([]byte{})
	instructionStream := NewBinaryWriter([]byte{})

	for i := 0; i < numGlyphs; i++ {
		b, err := GetGlyphData(font, i)
		if err != nil {
			return err
		}
		glyph, err := ReadGlyph(b)
		if err != nil {
			return err
		}

		if glyph.IsComposite() {
			nContourStream.WriteInt16(-1)
			compositeStream.WriteBytes(glyph.Composite)
			bboxBitmap.Write(true)
			bboxStream.WriteInt16(glyph.XMin)
			bboxStream.WriteInt16(glyph.YMin)
			bboxStream.WriteInt16(glyph.XMax)
			bboxStream.WriteInt16(glyph.YMax)
			if glyph.HaveInstructions {
				write255Uint16(glyphStream, uint16(len(glyph.Instructions)))
				instructionStream.WriteBytes(glyph.Instructions)
			}
			continue
		}
		if glyph.NumPoints() == 0 {
			nContourStream.WriteInt16(0)
			bboxBitmap.Write(false)
			continue
		}

		// simple glyph
		nContourStream.WriteInt16(int16(len(glyph.Contours)))
		for _, contour := range glyph.Contours {
			if 65535 < len(contour) {
				return fmt.Errorf("glyf: too many points")
			}
			write255Uint16(nPointsStream, uint16(len(contour)))
		}

		var lastX, lastY int32
		var xMin, yMin, xMax, yMax int32
		first := true
		for _, contour := range glyph.Contours {
			for _, point := range contour {
				flag := encodeTriplet(glyphStream, point.X-lastX, point.Y-lastY)
				if !point.OnCurve {
					flag |= 0x80
				}
				flagStream.WriteByte(flag)
				lastX, lastY = point.X, point.Y

				if first || point.X < xMin {
					xMin = point.X
				}
				if first || xMax < point.X {
					xMax = point.X
				}
				if first || point.Y < yMin {
					yMin = point.Y
				}
				if first || yMax < point.Y {
					yMax = point.Y
				}
				first = false
			}
		}

		// the bbox is stored explicitly only when it differs from the extrema
		explicitBbox := int32(glyph.XMin) != xMin || int32(glyph.YMin) != yMin ||
			int32(glyph.XMax) != xMax || int32(glyph.YMax) != yMax
		bboxBitmap.Write(explicitBbox)
		if explicitBbox {
			bboxStream.WriteInt16(glyph.XMin)
			bboxStream.WriteInt16(glyph.YMin)
			bboxStream.WriteInt16(glyph.XMax)
			bboxStream.WriteInt16(glyph.YMax)
		}

		write255Uint16(glyphStream, uint16(len(glyph.Instructions)))
		instructionStream.WriteBytes(glyph.Instructions)
	}

	n := uint32(36)
	n += nContourStream.Len() + nPointsStream.Len()
	n += flagStream.Len() + glyphStream.Len() + compositeStream.Len()
	n += bboxBitmap.Len() + bboxStream.Len() + instructionStream.Len()
	w := NewBinaryWriter(make([]byte, 0, n))
	w.WriteUint32(0) // version
	w.WriteUint16(uint16(numGlyphs))
	w.WriteUint16(uint16(IndexFormat(font)))
	w.WriteUint32(nContourStream.Len())
	w.WriteUint32(nPointsStream.Len())
	w.WriteUint32(flagStream.Len())
	w.WriteUint32(glyphStream.Len())
	w.WriteUint32(compositeStream.Len())
	w.WriteUint32(bboxBitmap.Len() + bboxStream.Len())
	w.WriteUint32(instructionStream.Len())
	w.WriteBytes(nContourStream.Bytes())
	w.WriteBytes(nPointsStream.Bytes())
	w.WriteBytes(flagStream.Bytes())
	w.WriteBytes(glyphStream.Bytes())
	w.WriteBytes(compositeStream.Bytes())
	w.WriteBytes(bboxBitmap.Bytes())
	w.WriteBytes(bboxStream.Bytes())
	w.WriteBytes(instructionStream.Bytes())

	transformedGlyf := w.Bytes()
	font.Tables[transformedTag(tagGlyf)] = &Table{
		Tag:    transformedTag(tagGlyf),
		Length: uint32(len(transformedGlyf)),
		Data:   transformedGlyf,
		Buffer: transformedGlyf,
	}
	font.Tables[transformedTag(tagLoca)] = &Table{
		Tag: transformedTag(tagLoca),
	}
	return nil
}
