// Package raster implements the scanline polygon/line/ellipse fill
// that reproduces, pixel-for-pixel, the original engine's fixed-point
// rasterizer. Every routine writes into a caller-owned Framebuffer
// within a ClipRect; nothing here allocates a framebuffer itself.
package raster

// Colour is an 8-bit-per-channel RGB triple handed in by the caller
// (already resolved from a palette); the rasterizer never looks up
// colour indices itself.
type Colour struct {
	R, G, B uint8
}

// Point is a local (clip-rectangle-relative) integer vertex.
type Point struct {
	X, Y int
}

// Framebuffer is a flat RGBA pixel buffer. It is the only mutable
// state any rasterizer routine touches.
type Framebuffer struct {
	W, H int
	Pix  []byte // 4 bytes per pixel, row-major
}

// NewFramebuffer allocates a zeroed w*h RGBA framebuffer.
func NewFramebuffer(w, h int) *Framebuffer {
	return &Framebuffer{W: w, H: h, Pix: make([]byte, w*h*4)}
}

func (fb *Framebuffer) inBounds(x, y int) bool {
	return x >= 0 && x < fb.W && y >= 0 && y < fb.H
}

func (fb *Framebuffer) offset(x, y int) int { return (y*fb.W + x) * 4 }

// setOpaque overwrites a pixel's RGB and forces alpha to fully opaque.
func (fb *Framebuffer) setOpaque(x, y int, c Colour) {
	if !fb.inBounds(x, y) {
		return
	}
	o := fb.offset(x, y)
	fb.Pix[o] = c.R
	fb.Pix[o+1] = c.G
	fb.Pix[o+2] = c.B
	fb.Pix[o+3] = 0xFF
}

// blendHalf 50/50-averages a pixel's RGB with c, forcing alpha to
// fully opaque afterward.
func (fb *Framebuffer) blendHalf(x, y int, c Colour) {
	if !fb.inBounds(x, y) {
		return
	}
	o := fb.offset(x, y)
	fb.Pix[o] = avg(fb.Pix[o], c.R)
	fb.Pix[o+1] = avg(fb.Pix[o+1], c.G)
	fb.Pix[o+2] = avg(fb.Pix[o+2], c.B)
	fb.Pix[o+3] = 0xFF
}

func avg(a, b uint8) uint8 { return uint8((int(a) + int(b)) / 2) }

// ClipRect is the rectangle a draw call is confined to; its Origin is
// where its local (0,0) lands in the Framebuffer.
type ClipRect struct {
	OriginX, OriginY int
	W, H             int
}

// Rasterizer draws into a Framebuffer within a ClipRect.
type Rasterizer struct {
	FB   *Framebuffer
	Clip ClipRect
}

// New builds a Rasterizer over fb confined to clip.
func New(fb *Framebuffer, clip ClipRect) *Rasterizer {
	return &Rasterizer{FB: fb, Clip: clip}
}

func (r *Rasterizer) writePixel(x, y int, c Colour, alpha bool) {
	if x < 0 || x >= r.Clip.W || y < 0 || y >= r.Clip.H {
		return
	}
	fx, fy := r.Clip.OriginX+x, r.Clip.OriginY+y
	if alpha {
		r.FB.blendHalf(fx, fy, c)
	} else {
		r.FB.setOpaque(fx, fy, c)
	}
}

// DrawPoint writes one pixel if (x,y) lies within the clipping
// rectangle and on-screen.
func (r *Rasterizer) DrawPoint(c Colour, x, y int) {
	r.writePixel(x, y, c, false)
}

// fillSpan paints every pixel in [x1, x2] on row y, clamped to the
// clip rectangle's width.
func (r *Rasterizer) fillSpan(c Colour, alpha bool, y, x1, x2 int) {
	if y < 0 || y >= r.Clip.H {
		return
	}
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if x1 < 0 {
		x1 = 0
	}
	if x2 > r.Clip.W-1 {
		x2 = r.Clip.W - 1
	}
	for x := x1; x <= x2; x++ {
		r.writePixel(x, y, c, alpha)
	}
}

// DrawLine is a Bresenham line between two points, confined to the
// clip rectangle. The first endpoint is always drawn, even when the
// line is a single point (delta_max == 0).
func (r *Rasterizer) DrawLine(c Colour, x1, y1, x2, y2 int) {
	dx := x2 - x1
	dy := y2 - y1

	sx, sy := 1, 1
	adx, ady := dx, dy
	if adx < 0 {
		adx = -adx
		sx = -1
	}
	if ady < 0 {
		ady = -ady
		sy = -1
	}

	deltaMax := adx
	deltaMin := ady
	xMajor := true
	if ady > adx {
		deltaMax = ady
		deltaMin = adx
		xMajor = false
	}

	x, y := x1, y1
	r.writePixel(x, y, c, false)

	oct := 2*deltaMin - deltaMax
	for i := 0; i < deltaMax; i++ {
		if oct >= 0 {
			if xMajor {
				x += sx
				y += sy
			} else {
				y += sy
				x += sx
			}
			oct += 2 * (deltaMin - deltaMax)
		} else {
			if xMajor {
				x += sx
			} else {
				y += sy
			}
			oct += 2 * deltaMin
		}
		r.writePixel(x, y, c, false)
	}
}

// DrawPolygonOutline draws a closed line loop between consecutive
// vertices.
func (r *Rasterizer) DrawPolygonOutline(c Colour, vertices []Point) {
	for i := 0; i < len(vertices); i++ {
		a := vertices[i]
		b := vertices[(i+1)%len(vertices)]
		r.DrawLine(c, a.X, a.Y, b.X, b.Y)
	}
}

// DrawPolygon scanline-fills a polygon. 1 vertex degenerates to a
// point, 2 to a line; everything else walks left/right edges down
// from the topmost vertex using 16.16 fixed-point x accumulators.
func (r *Rasterizer) DrawPolygon(c Colour, alpha bool, vertices []Point) {
	switch len(vertices) {
	case 0:
		return
	case 1:
		r.DrawPoint(c, vertices[0].X, vertices[0].Y)
		return
	case 2:
		r.DrawLine(c, vertices[0].X, vertices[0].Y, vertices[1].X, vertices[1].Y)
		return
	}

	ymin, ymax := vertices[0].Y, vertices[0].Y
	xmin, xmax := vertices[0].X, vertices[0].X
	topIdx := 0
	for i, v := range vertices {
		if v.Y < ymin {
			ymin = v.Y
			topIdx = i
		}
		if v.Y > ymax {
			ymax = v.Y
		}
		if v.X < xmin {
			xmin = v.X
		}
		if v.X > xmax {
			xmax = v.X
		}
	}

	if xmax < 0 || xmin >= r.Clip.W || ymax < 0 || ymin >= r.Clip.H {
		return
	}

	if ymin == ymax {
		r.fillSpan(c, alpha, ymin, xmin, xmax)
		return
	}

	n := len(vertices)
	left := newEdge(vertices, topIdx, -1, true)
	right := newEdge(vertices, topIdx, 1, false)

	if ymin < 0 {
		pre := int32(-ymin)
		left.x += left.step * pre
		right.x += right.step * pre
	}

	yStart := ymin
	if yStart < 0 {
		yStart = 0
	}
	yEnd := ymax
	if yEnd > r.Clip.H-1 {
		yEnd = r.Clip.H - 1
	}

	for y := yStart; y <= yEnd; y++ {
		for y >= left.endY && left.idx != right.idx {
			left.advance(vertices, n, -1, true)
		}
		for y >= right.endY && left.idx != right.idx {
			right.advance(vertices, n, 1, false)
		}

		leftX := int((left.x + 0x8000) >> 16)
		rightX := int((right.x + 0x8000) >> 16)
		r.fillSpan(c, alpha, y, leftX, rightX)

		left.x += left.step
		right.x += right.step
	}
}

// edgeAccum is one side (left or right) of the scanline fill: a
// 16.16 fixed-point x accumulator plus the vertex-index walk state
// needed to cross to the next polygon edge when a row passes endY.
type edgeAccum struct {
	from, idx int
	x, step   int32
	endY      int
}

func newEdge(vertices []Point, topIdx, dir int, isLeft bool) *edgeAccum {
	n := len(vertices)
	e := &edgeAccum{from: topIdx, idx: topIdx}
	e.x = int32(vertices[topIdx].X) << 16
	e.endY = vertices[topIdx].Y
	// Seed idx one step beyond from so the first advance() call (or
	// the logic below) establishes a real segment immediately.
	e.idx = mod(topIdx+dir, n)
	e.step = computeStep(vertices[e.from], vertices[e.idx], isLeft)
	e.endY = vertices[e.idx].Y
	// Skip zero-height leading segments (duplicate top vertices).
	for e.endY <= vertices[e.from].Y && e.from != e.idx {
		next := mod(e.idx+dir, n)
		if next == e.from {
			break
		}
		e.from = e.idx
		e.idx = next
		e.x = int32(vertices[e.from].X) << 16
		e.step = computeStep(vertices[e.from], vertices[e.idx], isLeft)
		e.endY = vertices[e.idx].Y
	}
	return e
}

func (e *edgeAccum) advance(vertices []Point, n, dir int, isLeft bool) {
	if e.from == e.idx {
		return
	}
	e.from = e.idx
	e.idx = mod(e.idx+dir, n)
	e.x = int32(vertices[e.from].X) << 16
	e.step = computeStep(vertices[e.from], vertices[e.idx], isLeft)
	e.endY = vertices[e.idx].Y
}

func mod(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// computeStep reproduces the reference engine's quirked dx/dy fixed
// point step, 16-bit intermediate truncation included. The two
// branches of the "otherwise" case are deliberately asymmetric
// (mask on the left edge, signed shift on the right) to match
// reference behaviour on overflow.
func computeStep(from, to Point, isLeft bool) int32 {
	dx := int32(to.X - from.X)
	dy := int32(to.Y - from.Y)
	if dy <= 0 {
		return 0
	}

	a := dx * 256
	if absInt32(a>>16) < dy {
		a = int32(int16(a/dy)) * 256
		return a
	}
	if isLeft {
		a = ((a / 256) / dy & 0xFFFF) << 16
	} else {
		a = ((a / 256) / dy) << 16
	}
	return a
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// DrawEllipse fills an ellipse using the midpoint algorithm, merging
// spans per row before a final scanline fill pass.
func (r *Rasterizer) DrawEllipse(c Colour, alpha bool, cx, cy, rx, ry int) {
	if rx <= 0 || ry <= 0 {
		r.DrawPoint(c, cx, cy)
		return
	}

	spans := map[int][2]int{}
	setSpan := func(y, x1, x2 int) {
		if x1 > x2 {
			x1, x2 = x2, x1
		}
		if existing, ok := spans[y]; ok {
			if x1 > existing[0] {
				x1 = existing[0]
			}
			if x2 < existing[1] {
				x2 = existing[1]
			}
		}
		spans[y] = [2]int{x1, x2}
	}

	rx2, ry2 := rx*rx, ry*ry
	x, y := 0, ry
	dx, dy := 0, 2*rx2*y
	dErr := ry2 - rx2*ry + rx2/4

	for rx2*(y) > ry2*(x) {
		setSpan(cy+y, cx-x, cx+x)
		setSpan(cy-y, cx-x, cx+x)
		if dErr < 0 {
			x++
			dx += 2 * ry2
			dErr += dx + ry2
		} else {
			x++
			y--
			dx += 2 * ry2
			dy -= 2 * rx2
			dErr += dx - dy + ry2
		}
	}

	dErr = ry2*(x*x+x) + rx2*(y*y-2*y+1) - rx2*ry2
	for y >= 0 {
		setSpan(cy+y, cx-x, cx+x)
		setSpan(cy-y, cx-x, cx+x)
		if dErr > 0 {
			y--
			dy -= 2 * rx2
			dErr += rx2 - dy
		} else {
			y--
			x++
			dx += 2 * ry2
			dy -= 2 * rx2
			dErr += dx - dy + rx2
		}
	}

	for y, span := range spans {
		r.fillSpan(c, alpha, y, span[0], span[1])
	}
}
