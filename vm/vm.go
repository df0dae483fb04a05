// Package vm interprets a decoded CMD bytecode script against a
// Renderer. It owns no framebuffer of its own -- every opcode either
// mutates the renderer's draw state or the VM's own palette/clear-
// screen bookkeeping.
package vm

import (
	"errors"

	"flashback/asset"
	"flashback/render"
)

// ErrUnsupportedRotation is returned by Execute when a
// drawShapeScaleRotate command sets both the secondary (B) and
// tertiary (C) rotation-angle flags. This core only implements the
// primary angle; both secondaries present at once signals a 3D-style
// rotation the original reserved for a transform this core does not
// model.
var ErrUnsupportedRotation = errors.New("vm: drawShapeScaleRotate with both rotB and rotC angles is unsupported")

// ErrFrameOutOfRange is returned by GoToFrame for an index outside
// [0, TotalFrames).
var ErrFrameOutOfRange = errors.New("vm: frame index out of range")

// flatFrame pairs a decoded Frame with the subscene it belongs to, so
// CurrentSubscene can be tracked as the VM walks a flattened,
// whole-script frame sequence.
type flatFrame struct {
	subscene int
	frame    asset.Frame
}

// VM holds all runtime state that exists only during cutscene
// playback: the current position, the 32-colour palette buffer, the
// clear-screen flag, and the renderer commands are forwarded to.
type VM struct {
	cutscene *asset.Cutscene
	renderer *render.Renderer

	flat        []flatFrame
	paletteBuf  [32]asset.Colour
	clearScreen uint8

	currentSubscene int
	currentFrame    int

	onFrameChange func(frameIndex int)
}

// New constructs a VM over a cutscene and the renderer it drives. The
// VM starts at frame 0 with a black palette and clear_screen = 1,
// matching the renderer's own default.
func New(cutscene *asset.Cutscene, renderer *render.Renderer) *VM {
	v := &VM{
		cutscene:    cutscene,
		renderer:    renderer,
		clearScreen: 1,
	}
	for si, sub := range cutscene.Script.Subscenes {
		for _, f := range sub.Frames {
			v.flat = append(v.flat, flatFrame{subscene: si, frame: f})
		}
	}
	renderer.LoadShapes(cutscene.Shapes)
	renderer.SetClearScreen(1)
	return v
}

// OnFrameChange installs the frame-change notification callback,
// invoked after every frame step (NextFrame, PrevFrame, GoToFrame,
// Reset). A bare Execute call does not invoke it.
func (v *VM) OnFrameChange(fn func(frameIndex int)) {
	v.onFrameChange = fn
}

// TotalFrames is the whole-script frame count, flattened across all
// subscenes.
func (v *VM) TotalFrames() int { return len(v.flat) }

// CurrentFrame is the index of the last frame executed.
func (v *VM) CurrentFrame() int { return v.currentFrame }

// CurrentSubscene is the subscene index the current frame belongs to.
func (v *VM) CurrentSubscene() int { return v.currentSubscene }

func (v *VM) notify() {
	if v.onFrameChange != nil {
		v.onFrameChange(v.currentFrame)
	}
}

// Execute runs a single decoded command against the VM/renderer
// state. Its only error is ErrUnsupportedRotation, returned for a
// drawShapeScaleRotate that sets both the B and C angle flags; every
// other command returns nil.
func (v *VM) Execute(cmd asset.Command) error {
	switch cmd.Op {
	case asset.OpMarkCurPos, asset.OpMarkCurPosAlt:
		// markCurPos is the frame's terminal command (parseCommandStream
		// groups on it): present what the frame just drew before
		// clearing it for the next frame, or the content never reaches
		// the framebuffer at all.
		v.renderer.Present()
		v.renderer.ClearDrawnShapes()

	case asset.OpRefreshScreen:
		v.clearScreen = cmd.ClearMode
		v.renderer.SetClearScreen(cmd.ClearMode)
		if cmd.ClearMode != 0 {
			v.renderer.ClearDrawnShapes()
		}

	case asset.OpDrawShape:
		x, y := cmd.X, cmd.Y
		v.renderer.DrawShape(cmd.ShapeID, x, y)

	case asset.OpDrawShapeScale:
		v.renderer.DrawShapeScale(cmd.ShapeID, cmd.X, cmd.Y, cmd.Zoom, cmd.OriginX, cmd.OriginY)

	case asset.OpDrawShapeScaleRot:
		if cmd.HasRotB && cmd.HasRotC {
			return ErrUnsupportedRotation
		}
		v.renderer.DrawShapeScaleRotate(cmd.ShapeID, cmd.X, cmd.Y, cmd.Zoom, cmd.HasZoom, cmd.OriginX, cmd.OriginY, cmd.RotA)

	case asset.OpSetPalette:
		v.setPalette(cmd.PalNum, cmd.BufNum)

	case asset.OpWaitForSync, asset.OpCopyScreen, asset.OpRefreshAll,
		asset.OpNop, asset.OpSkip3, asset.OpDrawCaptionText,
		asset.OpDrawTextAtPos, asset.OpHandleKeys:
		// No-op in this core: timing is external, and text / interactive
		// choice are both non-goals.
	}
	return nil
}

// setPalette implements the buf_num XOR-slot quirk: buf_num=0 writes
// the upper half (slot 1), buf_num=1 writes the lower half (slot 0).
func (v *VM) setPalette(palNum, bufNum uint8) {
	if int(palNum) >= len(v.cutscene.Palettes) {
		return
	}
	src := v.cutscene.Palettes[palNum]
	destSlot := (bufNum ^ 1) & 1
	base := int(destSlot) * 16
	for i, c := range src {
		v.paletteBuf[base+i] = c
	}
	v.renderer.SetPalette(v.paletteBuf)
}

// NextFrame executes the next frame's commands in place and advances
// the cursor. It is a no-op once the last frame has been reached.
func (v *VM) NextFrame() error {
	if v.currentFrame+1 >= len(v.flat) {
		return nil
	}
	idx := v.currentFrame + 1
	if err := v.runFrame(idx); err != nil {
		return err
	}
	v.currentFrame = idx
	v.currentSubscene = v.flat[idx].subscene
	v.notify()
	return nil
}

// PrevFrame rebuilds state from scratch up to current_frame-1; frame
// scrubbing backward is never implemented as reverse execution (see
// GoToFrame).
func (v *VM) PrevFrame() error {
	if v.currentFrame == 0 {
		return nil
	}
	return v.GoToFrame(v.currentFrame - 1)
}

// GoToFrame resets all state and replays frames 0..=i in order. This
// is the only correct implementation for i < current_frame, and is
// used for any target frame for simplicity and determinism.
func (v *VM) GoToFrame(i int) error {
	if i < 0 || i >= len(v.flat) {
		return ErrFrameOutOfRange
	}
	v.reset()
	for idx := 0; idx <= i; idx++ {
		if err := v.runFrame(idx); err != nil {
			return err
		}
	}
	v.currentFrame = i
	v.currentSubscene = v.flat[i].subscene
	v.notify()
	return nil
}

// Reset rewinds to frame 0 (palette zeroed, clear_screen = 1, both
// renderer lists emptied) and executes frame 0.
func (v *VM) Reset() error {
	return v.GoToFrame(0)
}

func (v *VM) reset() {
	v.paletteBuf = [32]asset.Colour{}
	v.clearScreen = 1
	v.renderer.SetClearScreen(1)
	v.renderer.SetPalette(v.paletteBuf)
	v.renderer.ClearAllShapes()
	v.currentFrame = 0
	v.currentSubscene = 0
}

func (v *VM) runFrame(idx int) error {
	for _, cmd := range v.flat[idx].frame.Commands {
		if err := v.Execute(cmd); err != nil {
			return err
		}
	}
	return nil
}
