package asset

import "testing"

func TestParseCMDImplicitSingleSubscene(t *testing.T) {
	// sub_count = 0 -> base = 2, single implicit subscene.
	data := []byte{
		0x00, 0x00, // sub_count = 0
		byte(OpNop) << 2, // nop
		0x80,             // terminal high-bit byte
	}
	script, err := ParseCMD(data)
	if err != nil {
		t.Fatalf("ParseCMD failed: %v", err)
	}
	if script.BaseOffset != 2 {
		t.Errorf("expected base offset 2, got %d", script.BaseOffset)
	}
	if len(script.Subscenes) != 1 {
		t.Fatalf("expected 1 subscene, got %d", len(script.Subscenes))
	}
	// nop never terminates, so the trailing nop forms one implicit
	// frame with no markCurPos terminator.
	if len(script.Subscenes[0].Frames) != 1 {
		t.Fatalf("expected 1 implicit frame, got %d", len(script.Subscenes[0].Frames))
	}
	if script.Subscenes[0].Frames[0].Commands[0].Op != OpNop {
		t.Errorf("expected nop, got %v", script.Subscenes[0].Frames[0].Commands[0].Op)
	}
}

func TestParseCMDFrameBoundaries(t *testing.T) {
	data := []byte{
		0x00, 0x00,
		byte(OpNop) << 2,
		byte(OpMarkCurPos) << 2,
		byte(OpRefreshAll) << 2,
		byte(OpMarkCurPos) << 2,
		0x80,
	}
	script, err := ParseCMD(data)
	if err != nil {
		t.Fatalf("ParseCMD failed: %v", err)
	}
	frames := script.Subscenes[0].Frames
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames (one per markCurPos), got %d", len(frames))
	}
	if len(frames[0].Commands) != 2 || frames[0].Commands[1].Op != OpMarkCurPos {
		t.Errorf("frame 0 should end with markCurPos, got %+v", frames[0].Commands)
	}
	if len(frames[1].Commands) != 2 || frames[1].Commands[1].Op != OpMarkCurPos {
		t.Errorf("frame 1 should end with markCurPos, got %+v", frames[1].Commands)
	}
}

func TestParseCMDDrawShapeSigned(t *testing.T) {
	// drawShapeScale with zoom = -40: 0xFFD8.
	sw := uint16(0x8000 | 7) // has position, shape id 7
	data := []byte{
		0x00, 0x00,
		byte(OpDrawShapeScale) << 2,
		byte(sw >> 8), byte(sw),
		0x00, 0x01, // x=1
		0x00, 0x02, // y=2
		0xFF, 0xD8, // zoom = -40
		0x00, 0x00, // origin
		0x80,
	}
	script, err := ParseCMD(data)
	if err != nil {
		t.Fatalf("ParseCMD failed: %v", err)
	}
	cmd := script.Subscenes[0].Frames[0].Commands[0]
	if cmd.Zoom != -40 {
		t.Fatalf("expected zoom -40, got %d (unsigned-read regression)", cmd.Zoom)
	}
	if cmd.ShapeID != 7 {
		t.Errorf("expected shape id 7, got %d", cmd.ShapeID)
	}
}

func TestParseCMDBadOpcode(t *testing.T) {
	data := []byte{
		0x00, 0x00,
		15 << 2, // op = 15, > 14 is invalid
		0x80,
	}
	_, err := ParseCMD(data)
	if err == nil {
		t.Fatal("expected error for opcode > 14")
	}
	fe, ok := err.(*FormatError)
	if !ok || fe.Kind != KindBadOpcode {
		t.Errorf("expected BadOpcode FormatError, got %v", err)
	}
}

func TestParseCMDHandleKeysTerminator(t *testing.T) {
	data := []byte{
		0x00, 0x00,
		byte(OpHandleKeys) << 2,
		0x01, 0x00, 0x05, // key_mask=1, target=5
		0xFF, // terminator
		0x80,
	}
	script, err := ParseCMD(data)
	if err != nil {
		t.Fatalf("ParseCMD failed: %v", err)
	}
	cmd := script.Subscenes[0].Frames[0].Commands[0]
	if len(cmd.Keys) != 1 || cmd.Keys[0].KeyMask != 1 || cmd.Keys[0].Target != 5 {
		t.Errorf("unexpected keys: %+v", cmd.Keys)
	}
}

func TestParseCMDExplicitSubscenes(t *testing.T) {
	// sub_count = 2 -> base = (2+1)*2 = 6, two subscene offsets.
	data := []byte{
		0x00, 0x02, // sub_count = 2
		0x00, 0x00, // subscene 0 offset = 0 (relative to base)
		0x00, 0x02, // subscene 1 offset = 2
		byte(OpMarkCurPos) << 2, // subscene 0 @ base+0
		0x80,                    // terminal for subscene 0... but stream is shared
	}
	// Subscenes share one command stream layout per spec: each begins
	// at base+sub_off[k] and reads until the terminal high-bit byte or
	// end of data. With a single terminal byte, only the first
	// subscene decodes meaningfully here; this test checks base offset
	// math and that out-of-range second offsets degrade to empty.
	script, err := ParseCMD(data)
	if err != nil {
		t.Fatalf("ParseCMD failed: %v", err)
	}
	if script.BaseOffset != 6 {
		t.Errorf("expected base offset 6, got %d", script.BaseOffset)
	}
	if len(script.Subscenes) != 2 {
		t.Fatalf("expected 2 subscenes, got %d", len(script.Subscenes))
	}
	if len(script.Subscenes[1].Frames) != 0 {
		t.Errorf("expected out-of-range subscene 1 to have no frames, got %d", len(script.Subscenes[1].Frames))
	}
}
