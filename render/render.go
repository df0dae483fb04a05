// Package render owns the 256x224 framebuffer, the 32-colour palette,
// and the draw/auxiliary shape lists that together make up one
// displayed frame. It composes primitives via package raster but
// never decodes bytecode itself -- that is the vm package's job.
package render

import (
	"math"

	"flashback/asset"
	"flashback/raster"
)

const (
	ScreenW = 256
	ScreenH = 224

	// The 240x128 cutscene viewport sits inset within the full
	// framebuffer; everything outside it is letterboxed black after
	// every composed frame.
	ViewportX = 8
	ViewportY = 50
	ViewportW = 240
	ViewportH = 128
)

// DrawnShape is a value object describing one shape instance queued
// for the next Present call. It is never mutated after being pushed.
type DrawnShape struct {
	ShapeID         uint16
	X, Y            int32
	Scale           float32
	RotationRad     float32
	OriginX, OriginY int32
	ClearFlagAtDraw uint8
}

// Renderer holds everything needed to compose one frame: the
// framebuffer, the active palette, the loaded shape set, and the
// ordered draw/auxiliary lists.
type Renderer struct {
	fb *raster.Framebuffer

	palette     [32]raster.Colour
	clearScreen uint8

	shapes map[uint16]asset.Shape

	drawList []DrawnShape
	auxList  []DrawnShape
}

// New constructs a Renderer over a fresh 256x224 black framebuffer.
func New() *Renderer {
	r := &Renderer{fb: raster.NewFramebuffer(ScreenW, ScreenH)}
	r.clearScreen = 1
	return r
}

// LoadShapes replaces the current shape set, keyed by shape id.
func (r *Renderer) LoadShapes(shapes map[uint16]asset.Shape) {
	r.shapes = shapes
}

// SetPalette adopts a 32-entry palette for subsequent colour lookups.
func (r *Renderer) SetPalette(pal [32]asset.Colour) {
	for i, c := range pal {
		r.palette[i] = raster.Colour{R: c.R, G: c.G, B: c.B}
	}
}

// SetClearScreen sets the flag that selects which palette half a draw
// samples.
func (r *Renderer) SetClearScreen(flag uint8) {
	r.clearScreen = flag
}

func (r *Renderer) push(ds DrawnShape) {
	r.drawList = append(r.drawList, ds)
	if r.clearScreen != 0 {
		r.auxList = append(r.auxList, ds)
	}
}

// DrawShape queues an unscaled, unrotated shape instance at (x, y).
func (r *Renderer) DrawShape(id uint16, x, y int16) {
	r.push(DrawnShape{
		ShapeID:         id,
		X:               int32(x),
		Y:               int32(y),
		Scale:           1,
		ClearFlagAtDraw: r.clearScreen,
	})
}

// DrawShapeScale queues a shape instance scaled about (originX,
// originY). zoom=0 is 1x; see ZoomToScale.
func (r *Renderer) DrawShapeScale(id uint16, x, y int16, zoom int16, originX, originY uint8) {
	r.push(DrawnShape{
		ShapeID:         id,
		X:               int32(x),
		Y:               int32(y),
		Scale:           ZoomToScale(zoom),
		OriginX:         int32(originX),
		OriginY:         int32(originY),
		ClearFlagAtDraw: r.clearScreen,
	})
}

// DrawShapeScaleRotate queues a shape instance scaled and rotated
// about (originX, originY). Only the primary angle (rotA, degrees)
// is applied; secondary angles B/C are not taken as parameters and
// have no effect here (the VM's Execute rejects a command that sets
// both of them; a single B or C angle is ignored).
func (r *Renderer) DrawShapeScaleRotate(id uint16, x, y int16, zoom int16, hasZoom bool, originX, originY uint8, rotADeg uint16) {
	scale := float32(1)
	if hasZoom {
		scale = ZoomToScale(zoom)
	}
	r.push(DrawnShape{
		ShapeID:         id,
		X:               int32(x),
		Y:               int32(y),
		Scale:           scale,
		RotationRad:     float32(float64(rotADeg) * math.Pi / 180),
		OriginX:         int32(originX),
		OriginY:         int32(originY),
		ClearFlagAtDraw: r.clearScreen,
	})
}

// ZoomToScale converts a signed CMD zoom value into a linear scale
// factor: zoom=0 -> 1x, zoom=-256 -> 0.5x. Reading zoom as unsigned
// instead of signed produces catastrophic scale glitches for negative
// (shrink) values.
func ZoomToScale(zoom int16) float32 {
	return float32(int32(zoom)+512) / 512
}

// ClearDrawnShapes implements the clear-screen/0 vs non-zero split:
// when clear_screen is 0, the draw list is rebuilt from the
// accumulated background (auxiliary list); otherwise both lists are
// emptied.
func (r *Renderer) ClearDrawnShapes() {
	if r.clearScreen == 0 {
		r.drawList = append([]DrawnShape(nil), r.auxList...)
		return
	}
	r.drawList = nil
	r.auxList = nil
}

// ClearAllShapes empties both lists unconditionally.
func (r *Renderer) ClearAllShapes() {
	r.drawList = nil
	r.auxList = nil
}

// Framebuffer exposes the composed RGBA pixels, 256*224*4 bytes.
func (r *Renderer) Framebuffer() []byte {
	return r.fb.Pix
}

// colourFor resolves a primitive's colour index against the 32-entry
// palette, selecting the half the primitive's draw-time clear flag
// names.
func (r *Renderer) colourFor(colourIndex uint8, clearFlagAtDraw uint8) raster.Colour {
	idx := colourIndex & 0x1F
	if clearFlagAtDraw == 0 {
		idx = (idx + 16) % 32
	}
	return r.palette[idx]
}

// Present paints black, composes every queued shape in order, and
// letterboxes the area outside the 240x128 cutscene viewport black.
// It is the only place the owned framebuffer is actually written, so
// it must run while the draw list still holds the frame's shapes --
// before whatever clears it for the next frame.
func (r *Renderer) Present() {
	for i := range r.fb.Pix {
		r.fb.Pix[i] = 0
	}
	for i := 3; i < len(r.fb.Pix); i += 4 {
		r.fb.Pix[i] = 0xFF
	}

	clip := raster.ClipRect{OriginX: 0, OriginY: 0, W: ScreenW, H: ScreenH}
	ras := raster.New(r.fb, clip)

	for _, ds := range r.drawList {
		shape, ok := r.shapes[ds.ShapeID]
		if !ok {
			continue
		}
		r.renderShape(ras, shape, ds)
	}

	r.letterbox()
}

func (r *Renderer) renderShape(ras *raster.Rasterizer, shape asset.Shape, ds DrawnShape) {
	sin, cos := math.Sincos(float64(ds.RotationRad))
	scale := float64(ds.Scale)
	if scale == 0 {
		scale = 1
	}

	transform := func(p asset.Point) raster.Point {
		dx := float64(p.X) - float64(ds.OriginX)
		dy := float64(p.Y) - float64(ds.OriginY)
		dx *= scale
		dy *= scale
		rx := dx*cos - dy*sin
		ry := dx*sin + dy*cos
		x := float64(ds.OriginX) + rx + float64(ds.X) + ViewportX
		y := float64(ds.OriginY) + ry + float64(ds.Y) + ViewportY
		return raster.Point{X: int(math.Round(x)), Y: int(math.Round(y))}
	}

	for _, prim := range shape.Primitives {
		colour := r.colourFor(prim.ColourIndex, ds.ClearFlagAtDraw)
		offX, offY := int16(0), int16(0)
		if prim.HasOffset {
			offX, offY = prim.OffsetX, prim.OffsetY
		}

		switch prim.Kind {
		case asset.PrimitivePoint:
			p := transform(asset.Point{X: prim.X + offX, Y: prim.Y + offY})
			ras.DrawPoint(colour, p.X, p.Y)

		case asset.PrimitiveEllipse:
			c := transform(asset.Point{X: prim.CX + offX, Y: prim.CY + offY})
			edge := transform(asset.Point{X: prim.CX + offX + prim.RX, Y: prim.CY + offY})
			rx := edge.X - c.X
			if rx < 0 {
				rx = -rx
			}
			edgeY := transform(asset.Point{X: prim.CX + offX, Y: prim.CY + offY + prim.RY})
			ry := edgeY.Y - c.Y
			if ry < 0 {
				ry = -ry
			}
			ras.DrawEllipse(colour, prim.Alpha, c.X, c.Y, rx, ry)

		case asset.PrimitivePolygon:
			verts := make([]raster.Point, len(prim.Vertices))
			for i, v := range prim.Vertices {
				verts[i] = transform(asset.Point{X: v.X + offX, Y: v.Y + offY})
			}
			ras.DrawPolygon(colour, prim.Alpha, verts)
		}
	}
}

func (r *Renderer) letterbox() {
	black := raster.Colour{}
	clip := raster.ClipRect{OriginX: 0, OriginY: 0, W: ScreenW, H: ScreenH}
	ras := raster.New(r.fb, clip)

	fillRect := func(x, y, w, h int) {
		for row := y; row < y+h; row++ {
			for col := x; col < x+w; col++ {
				ras.DrawPoint(black, col, row)
			}
		}
	}

	fillRect(0, 0, ScreenW, ViewportY)                                   // top
	fillRect(0, ViewportY+ViewportH, ScreenW, ScreenH-ViewportY-ViewportH) // bottom
	fillRect(0, ViewportY, ViewportX, ViewportH)                          // left
	fillRect(ViewportX+ViewportW, ViewportY, ScreenW-ViewportX-ViewportW, ViewportH) // right
}
