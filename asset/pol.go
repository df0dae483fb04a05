package asset

import "flashback/binreader"

// polHeader is the 20-byte POL header: five big-endian u16 offsets.
type polHeader struct {
	shapeOffTbl   int
	paletteOff    int
	vertsOffTbl   int
	shapeDataTbl  int
	vertsDataTbl  int
}

func parsePOLHeader(data []byte) (polHeader, error) {
	if len(data) < 0x14 {
		return polHeader{}, newFormatError("POL", KindTooSmall, "need 20 bytes for header", nil)
	}
	read := func(at int) int {
		v, _ := binreader.U16BEAt(data, at)
		return int(v)
	}
	return polHeader{
		shapeOffTbl:  read(0x02),
		paletteOff:   read(0x06),
		vertsOffTbl:  read(0x0A),
		shapeDataTbl: read(0x0E),
		vertsDataTbl: read(0x12),
	}, nil
}

// ParsePOL decodes a .POL asset into its shape table and palette list.
func ParsePOL(data []byte) ([]Shape, []Palette, error) {
	hdr, err := parsePOLHeader(data)
	if err != nil {
		return nil, nil, err
	}

	shapeCount := (hdr.paletteOff - hdr.shapeOffTbl) / 2
	if shapeCount < 0 {
		shapeCount = 0
	}

	paletteCount := (hdr.vertsOffTbl - hdr.paletteOff) / 32
	if paletteCount < 1 {
		paletteCount = 1
	}

	palettes, err := parsePalettes(data, hdr.paletteOff, paletteCount)
	if err != nil {
		return nil, nil, err
	}

	shapes := make([]Shape, 0, shapeCount)
	for i := 0; i < shapeCount; i++ {
		shape, err := parseShape(data, hdr, i)
		if err != nil {
			return nil, nil, err
		}
		shapes = append(shapes, shape)
	}

	return shapes, palettes, nil
}

func parsePalettes(data []byte, paletteOff, count int) ([]Palette, error) {
	palettes := make([]Palette, count)
	for p := 0; p < count; p++ {
		base := paletteOff + p*32
		for i := 0; i < 16; i++ {
			w, err := binreader.U16BEAt(data, base+i*2)
			if err != nil {
				return nil, newFormatError("POL", KindUnexpectedEOF, "palette entry", err)
			}
			palettes[p][i] = colourFromNibbles(w)
		}
	}
	return palettes, nil
}

func parseShape(data []byte, hdr polHeader, index int) (Shape, error) {
	rel, err := binreader.U16BEAt(data, hdr.shapeOffTbl+2*index)
	if err != nil {
		return Shape{}, newFormatError("POL", KindUnexpectedEOF, "shape offset table", err)
	}
	base := hdr.shapeDataTbl + int(rel)

	nPrim, err := binreader.U16BEAt(data, base)
	if err != nil {
		return Shape{}, newFormatError("POL", KindUnexpectedEOF, "shape primitive count", err)
	}

	shape := Shape{ID: uint16(index), Primitives: make([]Primitive, 0, nPrim)}
	p := base + 2

	for i := 0; i < int(nPrim); i++ {
		flagsAndVidx, err := binreader.U16BEAt(data, p)
		if err != nil {
			return Shape{}, newFormatError("POL", KindUnexpectedEOF, "primitive header", err)
		}
		p += 2

		hasOffset := flagsAndVidx&0x8000 != 0
		alpha := flagsAndVidx&0x4000 != 0
		vidx := flagsAndVidx & 0x3FFF

		var offX, offY int16
		if hasOffset {
			offX, err = binreader.I16BEAt(data, p)
			if err != nil {
				return Shape{}, newFormatError("POL", KindUnexpectedEOF, "primitive offset x", err)
			}
			offY, err = binreader.I16BEAt(data, p+2)
			if err != nil {
				return Shape{}, newFormatError("POL", KindUnexpectedEOF, "primitive offset y", err)
			}
			p += 4
		}

		colourIndex, err := binreader.U8At(data, p)
		if err != nil {
			return Shape{}, newFormatError("POL", KindUnexpectedEOF, "primitive colour index", err)
		}
		p++

		prim, err := decodeVertexRecord(data, hdr.vertsOffTbl, hdr.vertsDataTbl, int(vidx))
		if err != nil {
			return Shape{}, err
		}
		prim.ColourIndex = colourIndex
		prim.Alpha = alpha
		prim.HasOffset = hasOffset
		prim.OffsetX = offX
		prim.OffsetY = offY

		shape.Primitives = append(shape.Primitives, prim)
	}

	return shape, nil
}

// decodeVertexRecord decodes the primitive geometry referenced by
// vidx, shared between every primitive kind (§4.2).
func decodeVertexRecord(data []byte, vertsOffTbl, vertsDataTbl, vidx int) (Primitive, error) {
	rel, err := binreader.U16BEAt(data, vertsOffTbl+2*vidx)
	if err != nil {
		return Primitive{}, newFormatError("POL", KindUnexpectedEOF, "vertex offset table", err)
	}
	q := vertsDataTbl + int(rel)

	num, err := binreader.U8At(data, q)
	if err != nil {
		return Primitive{}, newFormatError("POL", KindUnexpectedEOF, "vertex record tag", err)
	}
	q++

	switch {
	case num == 0:
		x, err := binreader.I16BEAt(data, q)
		if err != nil {
			return Primitive{}, newFormatError("POL", KindUnexpectedEOF, "point x", err)
		}
		y, err := binreader.I16BEAt(data, q+2)
		if err != nil {
			return Primitive{}, newFormatError("POL", KindUnexpectedEOF, "point y", err)
		}
		return Primitive{Kind: PrimitivePoint, X: x, Y: y}, nil

	case num&0x80 != 0:
		cx, err := binreader.I16BEAt(data, q)
		if err != nil {
			return Primitive{}, newFormatError("POL", KindUnexpectedEOF, "ellipse cx", err)
		}
		cy, err := binreader.I16BEAt(data, q+2)
		if err != nil {
			return Primitive{}, newFormatError("POL", KindUnexpectedEOF, "ellipse cy", err)
		}
		rx, err := binreader.I16BEAt(data, q+4)
		if err != nil {
			return Primitive{}, newFormatError("POL", KindUnexpectedEOF, "ellipse rx", err)
		}
		ry, err := binreader.I16BEAt(data, q+6)
		if err != nil {
			return Primitive{}, newFormatError("POL", KindUnexpectedEOF, "ellipse ry", err)
		}
		return Primitive{Kind: PrimitiveEllipse, CX: cx, CY: cy, RX: rx, RY: ry}, nil

	default:
		// Polygon of num+1 vertices: one absolute point, then exactly
		// num pairs of signed 8-bit deltas accumulating onto it. The
		// loop count is num, not num-1 -- an off-by-one here silently
		// drops the last vertex.
		x, err := binreader.I16BEAt(data, q)
		if err != nil {
			return Primitive{}, newFormatError("POL", KindUnexpectedEOF, "polygon first vertex x", err)
		}
		y, err := binreader.I16BEAt(data, q+2)
		if err != nil {
			return Primitive{}, newFormatError("POL", KindUnexpectedEOF, "polygon first vertex y", err)
		}
		q += 4

		verts := make([]Point, 0, int(num)+1)
		verts = append(verts, Point{X: x, Y: y})

		ix, iy := int(x), int(y)
		for i := 0; i < int(num); i++ {
			dxB, err := binreader.U8At(data, q)
			if err != nil {
				return Primitive{}, newFormatError("POL", KindUnexpectedEOF, "polygon delta x", err)
			}
			dyB, err := binreader.U8At(data, q+1)
			if err != nil {
				return Primitive{}, newFormatError("POL", KindUnexpectedEOF, "polygon delta y", err)
			}
			q += 2
			ix += int(int8(dxB))
			iy += int(int8(dyB))
			verts = append(verts, Point{X: int16(ix), Y: int16(iy)})
		}

		return Primitive{Kind: PrimitivePolygon, Vertices: verts}, nil
	}
}
