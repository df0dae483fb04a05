package vm

import (
	"testing"

	"flashback/asset"
	"flashback/render"
)

func twoSubsceneCutscene() *asset.Cutscene {
	pal := asset.Palette{}
	for i := range pal {
		pal[i] = asset.Colour{R: uint8(i), G: uint8(i), B: uint8(i)}
	}
	return &asset.Cutscene{
		Name: "TEST",
		Shapes: map[uint16]asset.Shape{
			1: {ID: 1, Primitives: []asset.Primitive{{Kind: asset.PrimitivePoint, X: 1, Y: 1}}},
		},
		Palettes: []asset.Palette{pal},
		Script: asset.Script{
			Subscenes: []asset.Subscene{
				{
					ID: 0,
					Frames: []asset.Frame{
						{Commands: []asset.Command{{Op: asset.OpDrawShape, ShapeID: 1, HasPos: true, X: 2, Y: 3}}},
						{Commands: []asset.Command{{Op: asset.OpSetPalette, PalNum: 0, BufNum: 0}}},
					},
				},
				{
					ID: 1,
					Frames: []asset.Frame{
						{Commands: []asset.Command{{Op: asset.OpNop}}},
					},
				},
			},
		},
	}
}

func TestNewFlattensFramesAcrossSubscenes(t *testing.T) {
	cs := twoSubsceneCutscene()
	v := New(cs, render.New())
	if got := v.TotalFrames(); got != 3 {
		t.Fatalf("expected 3 total frames, got %d", got)
	}
}

func TestNextFrameAdvancesSubscene(t *testing.T) {
	cs := twoSubsceneCutscene()
	v := New(cs, render.New())
	if err := v.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if v.CurrentFrame() != 0 || v.CurrentSubscene() != 0 {
		t.Fatalf("expected frame 0 / subscene 0 after reset, got %d/%d", v.CurrentFrame(), v.CurrentSubscene())
	}
	if err := v.NextFrame(); err != nil {
		t.Fatalf("NextFrame failed: %v", err)
	}
	if v.CurrentFrame() != 1 || v.CurrentSubscene() != 0 {
		t.Fatalf("expected frame 1 / subscene 0, got %d/%d", v.CurrentFrame(), v.CurrentSubscene())
	}
	if err := v.NextFrame(); err != nil {
		t.Fatalf("NextFrame failed: %v", err)
	}
	if v.CurrentFrame() != 2 || v.CurrentSubscene() != 1 {
		t.Fatalf("expected frame 2 / subscene 1, got %d/%d", v.CurrentFrame(), v.CurrentSubscene())
	}
	// already at the last frame: NextFrame is a no-op
	if err := v.NextFrame(); err != nil {
		t.Fatalf("NextFrame at end failed: %v", err)
	}
	if v.CurrentFrame() != 2 {
		t.Fatalf("expected NextFrame at end to be a no-op, got frame %d", v.CurrentFrame())
	}
}

func TestGoToFrameMatchesStepThroughNextFrame(t *testing.T) {
	cs := twoSubsceneCutscene()

	stepped := New(cs, render.New())
	if err := stepped.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := stepped.NextFrame(); err != nil {
			t.Fatalf("NextFrame failed: %v", err)
		}
	}

	jumped := New(cs, render.New())
	if err := jumped.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := jumped.GoToFrame(2); err != nil {
		t.Fatalf("GoToFrame failed: %v", err)
	}

	steppedRenderer := stepped.renderer.Framebuffer()
	jumpedRenderer := jumped.renderer.Framebuffer()
	for i := range steppedRenderer {
		if steppedRenderer[i] != jumpedRenderer[i] {
			t.Fatalf("framebuffer diverged at byte %d: step-through vs go-to-frame", i)
			break
		}
	}
}

func TestGoToFrameOutOfRange(t *testing.T) {
	cs := twoSubsceneCutscene()
	v := New(cs, render.New())
	if err := v.GoToFrame(99); err != ErrFrameOutOfRange {
		t.Fatalf("expected ErrFrameOutOfRange, got %v", err)
	}
}

func TestSetPaletteXorSlot(t *testing.T) {
	cs := twoSubsceneCutscene()
	v := New(cs, render.New())

	v.setPalette(0, 0) // buf_num=0 -> dest_slot=(0^1)&1=1 -> upper half
	for i := 0; i < 16; i++ {
		if v.paletteBuf[16+i] != cs.Palettes[0][i] {
			t.Fatalf("expected upper half written at %d", i)
		}
		if v.paletteBuf[i] != (asset.Colour{}) {
			t.Fatalf("expected lower half untouched at %d", i)
		}
	}

	v.setPalette(0, 1) // buf_num=1 -> dest_slot=0 -> lower half
	for i := 0; i < 16; i++ {
		if v.paletteBuf[i] != cs.Palettes[0][i] {
			t.Fatalf("expected lower half written at %d", i)
		}
	}
}

func TestExecuteRejectsDualRotation(t *testing.T) {
	cs := twoSubsceneCutscene()
	v := New(cs, render.New())
	cmd := asset.Command{
		Op:      asset.OpDrawShapeScaleRot,
		ShapeID: 1,
		HasRotB: true,
		HasRotC: true,
	}
	if err := v.Execute(cmd); err != ErrUnsupportedRotation {
		t.Fatalf("expected ErrUnsupportedRotation, got %v", err)
	}
}

func TestMarkCurPosPresentsBeforeClearing(t *testing.T) {
	var pal asset.Palette
	pal[5] = asset.Colour{R: 200, G: 100, B: 50}
	cs := &asset.Cutscene{
		Name: "TEST",
		Shapes: map[uint16]asset.Shape{
			1: {ID: 1, Primitives: []asset.Primitive{{Kind: asset.PrimitivePoint, ColourIndex: 5}}},
		},
		Palettes: []asset.Palette{pal},
		Script:   asset.Script{Subscenes: []asset.Subscene{{ID: 0}}},
	}
	v := New(cs, render.New())

	// buf_num=1 -> dest_slot=0 -> lower half, where clear_screen=1
	// (the default) reads from.
	if err := v.Execute(asset.Command{Op: asset.OpSetPalette, PalNum: 0, BufNum: 1}); err != nil {
		t.Fatalf("Execute setPalette failed: %v", err)
	}
	if err := v.Execute(asset.Command{Op: asset.OpDrawShape, ShapeID: 1, HasPos: true, X: 10, Y: 10}); err != nil {
		t.Fatalf("Execute drawShape failed: %v", err)
	}
	if err := v.Execute(asset.Command{Op: asset.OpMarkCurPos}); err != nil {
		t.Fatalf("Execute markCurPos failed: %v", err)
	}

	fb := v.renderer.Framebuffer()
	idx := (60*render.ScreenW + 18) * 4
	if fb[idx] != 200 || fb[idx+1] != 100 || fb[idx+2] != 50 {
		t.Fatalf("expected the drawn shape presented before markCurPos cleared it, got rgb(%d,%d,%d)", fb[idx], fb[idx+1], fb[idx+2])
	}
}
