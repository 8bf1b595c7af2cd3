package woff2

import (
	"fmt"

	"github.com/tdewolff/parse/v2"
)

// simple glyph flags
const (
	glyfOnCurve    = 0x01
	glyfXShort     = 0x02
	glyfYShort     = 0x04
	glyfRepeat     = 0x08
	glyfThisXIsSame = 0x10
	glyfThisYIsSame = 0x20
)

// composite glyph flags
const (
	flagArg1And2AreWords  = 0x0001
	flagWeHaveAScale      = 0x0008
	flagMoreComponents    = 0x0020
	flagWeHaveAnXAndYScale = 0x0040
	flagWeHaveATwoByTwo   = 0x0080
	flagWeHaveInstructions = 0x0100
)

const compositeGlyphBegin = 10

// Point is a single outline point in font units.
type Point struct {
	X, Y    int32
	OnCurve bool
}

// Glyph is a single glyf table entry. A composite glyph keeps its component
// list as an opaque byte blob; only its length and instruction flag matter.
type Glyph struct {
	XMin, YMin, XMax, YMax int16
	Contours               [][]Point
	Instructions           []byte
	Composite              []byte
	HaveInstructions       bool
}

// IsComposite returns true if the glyph references other glyphs as components.
func (glyph *Glyph) IsComposite() bool {
	return glyph.Composite != nil
}

// NumPoints returns the total number of outline points.
func (glyph *Glyph) NumPoints() int {
	n := 0
	for _, contour := range glyph.Contours {
		n += len(contour)
	}
	return n
}

func glyfCompositeLength(flags uint16) (length uint32, more bool) {
	length = 4 + 2
	if flags&flagArg1And2AreWords != 0 {
		length += 2
	}
	if flags&flagWeHaveAScale != 0 {
		length += 2
	} else if flags&flagWeHaveAnXAndYScale != 0 {
		length += 4
	} else if flags&flagWeHaveATwoByTwo != 0 {
		length += 8
	}
	more = flags&flagMoreComponents != 0
	return
}

// ReadGlyph parses a raw glyf table entry. An empty byte slice is the empty glyph.
func ReadGlyph(b []byte) (*Glyph, error) {
	glyph := &Glyph{}
	if len(b) == 0 {
		return glyph, nil
	}

	r := parse.NewBinaryReaderBytes(b)
	if r.Len() < 10 {
		return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	numberOfContours := r.ReadInt16()
	glyph.XMin = r.ReadInt16()
	glyph.YMin = r.ReadInt16()
	glyph.XMax = r.ReadInt16()
	glyph.YMax = r.ReadInt16()

	if numberOfContours < 0 {
		// composite glyph: the component list is kept opaque, walked only to
		// find its length and whether instructions follow
		start := int64(len(b)) - r.Len()
		haveInstructions := false
		for {
			if r.Len() < 2 {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			flags := r.ReadUint16()
			if flags&flagWeHaveInstructions != 0 {
				haveInstructions = true
			}
			length, more := glyfCompositeLength(flags)
			if r.Len() < int64(length)-2 {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			_ = r.ReadBytes(int64(length) - 2)
			if !more {
				break
			}
		}
		end := int64(len(b)) - r.Len()
		glyph.Composite = b[start:end:end]
		glyph.HaveInstructions = haveInstructions
		if haveInstructions {
			if r.Len() < 2 {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			instructionLength := r.ReadUint16()
			if r.Len() < int64(instructionLength) {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			glyph.Instructions = r.ReadBytes(int64(instructionLength))
		}
		return glyph, nil
	} else if numberOfContours == 0 {
		return glyph, nil
	}

	// simple glyph
	if r.Len() < 2*int64(numberOfContours)+2 {
		return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	endPoints := make([]uint16, numberOfContours)
	prev := -1
	for i := range endPoints {
		endPoints[i] = r.ReadUint16()
		if int(endPoints[i]) < prev {
			return nil, fmt.Errorf("glyf: endPtsOfContours not increasing")
		}
		prev = int(endPoints[i])
	}
	numPoints := int(endPoints[numberOfContours-1]) + 1

	instructionLength := r.ReadUint16()
	if r.Len() < int64(instructionLength) {
		return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
	}
	glyph.Instructions = r.ReadBytes(int64(instructionLength))

	flags := make([]byte, numPoints)
	for i := 0; i < numPoints; i++ {
		if r.Len() < 1 {
			return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
		}
		flags[i] = r.ReadUint8()
		if flags[i]&glyfRepeat != 0 {
			if r.Len() < 1 {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			repeats := int(r.ReadUint8())
			if numPoints <= i+repeats {
				return nil, fmt.Errorf("glyf: bad flag repeat count")
			}
			for j := 1; j <= repeats; j++ {
				flags[i+j] = flags[i]
			}
			i += repeats
		}
	}

	points := make([]Point, numPoints)
	var x int32
	for i := 0; i < numPoints; i++ {
		if flags[i]&glyfXShort != 0 {
			if r.Len() < 1 {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			if flags[i]&glyfThisXIsSame != 0 {
				x += int32(r.ReadUint8())
			} else {
				x -= int32(r.ReadUint8())
			}
		} else if flags[i]&glyfThisXIsSame == 0 {
			if r.Len() < 2 {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			x += int32(r.ReadInt16())
		}
		points[i].X = x
		points[i].OnCurve = flags[i]&glyfOnCurve != 0
	}
	var y int32
	for i := 0; i < numPoints; i++ {
		if flags[i]&glyfYShort != 0 {
			if r.Len() < 1 {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			if flags[i]&glyfThisYIsSame != 0 {
				y += int32(r.ReadUint8())
			} else {
				y -= int32(r.ReadUint8())
			}
		} else if flags[i]&glyfThisYIsSame == 0 {
			if r.Len() < 2 {
				return nil, fmt.Errorf("glyf: %w", ErrInvalidFontData)
			}
			y += int32(r.ReadInt16())
		}
		points[i].Y = y
	}

	glyph.Contours = make([][]Point, numberOfContours)
	start := 0
	for i, endPoint := range endPoints {
		glyph.Contours[i] = points[start : int(endPoint)+1]
		start = int(endPoint) + 1
	}
	return glyph, nil
}

// storePoints writes the flag and coordinate arrays of a simple glyph. On
// entry dst holds the glyph header, endPtsOfContours and instruction block;
// flags begin at offset 10 + 2*nContours + 2 + instructionLength. It returns
// the total glyph size.
func storePoints(points []Point, nContours, instructionLength uint32, dst []byte) (uint32, error) {
	flagOffset := compositeGlyphBegin + 2*nContours + 2 + instructionLength
	lastFlag := -1
	repeatCount := 0
	var lastX, lastY int32
	var xBytes, yBytes uint32

	for _, point := range points {
		flag := 0
		if point.OnCurve {
			flag = glyfOnCurve
		}
		dx := point.X - lastX
		dy := point.Y - lastY
		if dx == 0 {
			flag |= glyfThisXIsSame
		} else if -256 < dx && dx < 256 {
			flag |= glyfXShort
			if 0 < dx {
				flag |= glyfThisXIsSame
			}
			xBytes++
		} else {
			xBytes += 2
		}
		if dy == 0 {
			flag |= glyfThisYIsSame
		} else if -256 < dy && dy < 256 {
			flag |= glyfYShort
			if 0 < dy {
				flag |= glyfThisYIsSame
			}
			yBytes++
		} else {
			yBytes += 2
		}

		if flag == lastFlag && repeatCount != 255 {
			dst[flagOffset-1] |= glyfRepeat
			repeatCount++
		} else {
			if repeatCount != 0 {
				if uint32(len(dst)) <= flagOffset {
					return 0, ErrInvalidFontData
				}
				dst[flagOffset] = byte(repeatCount)
				flagOffset++
			}
			if uint32(len(dst)) <= flagOffset {
				return 0, ErrInvalidFontData
			}
			dst[flagOffset] = byte(flag)
			flagOffset++
			repeatCount = 0
		}
		lastX = point.X
		lastY = point.Y
		lastFlag = flag
	}
	if repeatCount != 0 {
		if uint32(len(dst)) <= flagOffset {
			return 0, ErrInvalidFontData
		}
		dst[flagOffset] = byte(repeatCount)
		flagOffset++
	}
	if uint32(len(dst))-flagOffset < xBytes+yBytes {
		return 0, ErrInvalidFontData
	}

	xOffset := flagOffset
	yOffset := flagOffset + xBytes
	lastX, lastY = 0, 0
	for _, point := range points {
		if dx := point.X - lastX; dx == 0 {
			// pass
		} else if -256 < dx && dx < 256 {
			if dx < 0 {
				dst[xOffset] = byte(-dx)
			} else {
				dst[xOffset] = byte(dx)
			}
			xOffset++
		} else {
			dst[xOffset] = byte(uint16(dx) >> 8)
			dst[xOffset+1] = byte(dx)
			xOffset += 2
		}
		lastX = point.X
		if dy := point.Y - lastY; dy == 0 {
			// pass
		} else if -256 < dy && dy < 256 {
			if dy < 0 {
				dst[yOffset] = byte(-dy)
			} else {
				dst[yOffset] = byte(dy)
			}
			yOffset++
		} else {
			dst[yOffset] = byte(uint16(dy) >> 8)
			dst[yOffset+1] = byte(dy)
			yOffset += 2
		}
		lastY = point.Y
	}
	return yOffset, nil
}

// computeBbox writes the bounding box of the points at dst[2:10].
func computeBbox(points []Point, dst []byte) {
	var xMin, yMin, xMax, yMax int32
	for i, point := range points {
		if i == 0 || point.X < xMin {
			xMin = point.X
		}
		if i == 0 || xMax < point.X {
			xMax = point.X
		}
		if i == 0 || point.Y < yMin {
			yMin = point.Y
		}
		if i == 0 || yMax < point.Y {
			yMax = point.Y
		}
	}
	storeUint16(dst, 2, uint16(xMin))
	storeUint16(dst, 4, uint16(yMin))
	storeUint16(dst, 6, uint16(xMax))
	storeUint16(dst, 8, uint16(yMax))
}

func storeUint16(dst []byte, offset uint32, v uint16) {
	dst[offset] = byte(v >> 8)
	dst[offset+1] = byte(v)
}

// StoreGlyph re-emits a glyph in canonical form. Empty glyphs yield a nil
// slice; the caller pads the result to a 4-byte multiple.
func StoreGlyph(glyph *Glyph) ([]byte, error) {
	if glyph.IsComposite() {
		w := NewBinaryWriter(make([]byte, 0, 10+len(glyph.Composite)+2+len(glyph.Instructions)))
		w.WriteInt16(-1)
		w.WriteInt16(glyph.XMin)
		w.WriteInt16(glyph.YMin)
		w.WriteInt16(glyph.XMax)
		w.WriteInt16(glyph.YMax)
		w.WriteBytes(glyph.Composite)
		if glyph.HaveInstructions {
			w.WriteUint16(uint16(len(glyph.Instructions)))
			w.WriteBytes(glyph.Instructions)
		}
		return w.Bytes(), nil
	}

	nContours := len(glyph.Contours)
	numPoints := glyph.NumPoints()
	if nContours == 0 || numPoints == 0 {
		return nil, nil
	}
	if 65536 <= numPoints {
		return nil, fmt.Errorf("glyf: too many points")
	}

	points := make([]Point, 0, numPoints)
	for _, contour := range glyph.Contours {
		points = append(points, contour...)
	}

	instructionLength := uint32(len(glyph.Instructions))
	maxSize := 12 + 2*uint32(nContours) + instructionLength + 5*uint32(numPoints)
	dst := make([]byte, maxSize)
	storeUint16(dst, 0, uint16(nContours))
	storeUint16(dst, 2, uint16(glyph.XMin))
	storeUint16(dst, 4, uint16(glyph.YMin))
	storeUint16(dst, 6, uint16(glyph.XMax))
	storeUint16(dst, 8, uint16(glyph.YMax))
	offset := uint32(compositeGlyphBegin)
	endPoint := -1
	for _, contour := range glyph.Contours {
		endPoint += len(contour)
		if 65536 <= endPoint {
			return nil, fmt.Errorf("glyf: endpoint overflow")
		}
		storeUint16(dst, offset, uint16(endPoint))
		offset += 2
	}
	storeUint16(dst, offset, uint16(instructionLength))
	copy(dst[offset+2:], glyph.Instructions)

	size, err := storePoints(points, uint32(nContours), instructionLength, dst)
	if err != nil {
		return nil, err
	}
	return dst[:size], nil
}

// encodeTriplet writes the data bytes of one point delta to the glyph stream
// and returns the flag byte, without the on-curve bit.
func encodeTriplet(glyphStream *BinaryWriter, dx, dy int32) byte {
	var dxSign, dySign byte = 1, 1
	if dx < 0 {
		dxSign = 0
		dx = -dx
	}
	if dy < 0 {
		dySign = 0
		dy = -dy
	}

	var flag byte
	if dx == 0 && dy < 1280 {
		delta := dy >> 8
		flag = byte(delta<<1) + dySign
		glyphStream.WriteByte(byte(dy - delta<<8))
	} else if dy == 0 && dx < 1280 {
		delta := dx >> 8
		flag = 10 + byte(delta<<1) + dxSign
		glyphStream.WriteByte(byte(dx - delta<<8))
	} else if dx < 65 && dy < 65 {
		deltax := (dx - 1) >> 4
		deltay := (dy - 1) >> 4
		flag = 20 + byte(deltax<<4) + byte(deltay<<2) + dySign<<1 + dxSign
		glyphStream.WriteByte(byte(dx-1-deltax<<4)<<4 | byte(dy-1-deltay<<4))
	} else if dx < 769 && dy < 769 {
		deltax := (dx - 1) >> 8
		deltay := (dy - 1) >> 8
		flag = 84 + byte(deltax)*12 + byte(deltay)<<2 + dySign<<1 + dxSign
		glyphStream.WriteByte(byte(dx - 1 - deltax<<8))
		glyphStream.WriteByte(byte(dy - 1 - deltay<<8))
	} else if dx < 4096 && dy < 4096 {
		flag = 120 + dySign<<1 + dxSign
		glyphStream.WriteByte(byte(dx >> 4))
		glyphStream.WriteByte(byte(dx&0x0F)<<4 | byte(dy>>8))
		glyphStream.WriteByte(byte(dy))
	} else {
		flag = 124 + dySign<<1 + dxSign
		glyphStream.WriteUint16(uint16(dx))
		glyphStream.WriteUint16(uint16(dy))
	}
	return flag
}
