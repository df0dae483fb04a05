package asset

import "flashback/binreader"

// ParseCMD decodes a .CMD bytecode asset into a Script: an ordered
// list of subscenes, each grouped into frames at markCurPos
// boundaries.
func ParseCMD(data []byte) (Script, error) {
	if len(data) < 2 {
		return Script{}, newFormatError("CMD", KindTooSmall, "need 2 bytes for header", nil)
	}

	subCount, err := binreader.U16BEAt(data, 0)
	if err != nil {
		return Script{}, newFormatError("CMD", KindUnexpectedEOF, "sub_count", err)
	}

	var base int
	var subOffsets []uint16
	if subCount == 0 {
		base = 2
		subOffsets = []uint16{0}
	} else {
		subOffsets = make([]uint16, subCount)
		for i := 0; i < int(subCount); i++ {
			off, err := binreader.U16BEAt(data, 2+2*i)
			if err != nil {
				return Script{}, newFormatError("CMD", KindUnexpectedEOF, "subscene offset table", err)
			}
			subOffsets[i] = off
		}
		base = (int(subCount) + 1) * 2
	}

	script := Script{BaseOffset: base, Subscenes: make([]Subscene, len(subOffsets))}
	for i, off := range subOffsets {
		start := base + int(off)
		frames, err := parseCommandStream(data, start)
		if err != nil {
			return Script{}, err
		}
		script.Subscenes[i] = Subscene{ID: i, Frames: frames}
	}

	return script, nil
}

// parseCommandStream reads commands from start until the terminal
// high-bit byte, grouping them into frames at each markCurPos.
func parseCommandStream(data []byte, start int) ([]Frame, error) {
	var frames []Frame
	var current Frame

	pos := start
	for {
		if pos >= len(data) {
			break
		}
		b := data[pos]
		if b&0x80 != 0 {
			break
		}

		cmd, next, err := parseCommand(data, pos, b)
		if err != nil {
			return nil, err
		}
		pos = next

		current.Commands = append(current.Commands, cmd)
		if cmd.Op == OpMarkCurPos || cmd.Op == OpMarkCurPosAlt {
			frames = append(frames, current)
			current = Frame{}
		}
	}

	if len(current.Commands) > 0 {
		frames = append(frames, current)
	}

	return frames, nil
}

func parseCommand(data []byte, pos int, b byte) (Command, int, error) {
	op := Opcode(b >> 2)
	pos++

	if op > 14 {
		return Command{}, 0, newFormatError("CMD", KindBadOpcode, "opcode > 14", nil)
	}

	u16 := func() (uint16, error) {
		v, err := binreader.U16BEAt(data, pos)
		pos += 2
		return v, err
	}
	i16 := func() (int16, error) {
		v, err := binreader.I16BEAt(data, pos)
		pos += 2
		return v, err
	}
	u8 := func() (uint8, error) {
		v, err := binreader.U8At(data, pos)
		pos++
		return v, err
	}
	i8 := func() (int8, error) {
		v, err := binreader.U8At(data, pos)
		pos++
		return int8(v), err
	}

	cmd := Command{Op: op}

	switch op {
	case OpMarkCurPos, OpMarkCurPosAlt, OpNop, OpRefreshAll, OpCopyScreen:
		// no arguments

	case OpRefreshScreen:
		v, err := u8()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		cmd.ClearMode = v

	case OpWaitForSync:
		v, err := u8()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		cmd.Frames = v

	case OpDrawShape:
		sw, err := u16()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		cmd.ShapeID = sw & 0x7FF
		if sw&0x8000 != 0 {
			x, err := i16()
			if err != nil {
				return Command{}, 0, eof(err)
			}
			y, err := i16()
			if err != nil {
				return Command{}, 0, eof(err)
			}
			cmd.HasPos, cmd.X, cmd.Y = true, x, y
		}

	case OpSetPalette:
		pn, err := u8()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		bn, err := u8()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		cmd.PalNum, cmd.BufNum = pn, bn

	case OpDrawCaptionText:
		sid, err := u16()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		cmd.StringID = sid

	case OpSkip3:
		if err := skip(data, &pos, 3); err != nil {
			return Command{}, 0, eof(err)
		}

	case OpDrawShapeScale:
		sw, err := u16()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		cmd.ShapeID = sw & 0x7FF
		if sw&0x8000 != 0 {
			x, err := i16()
			if err != nil {
				return Command{}, 0, eof(err)
			}
			y, err := i16()
			if err != nil {
				return Command{}, 0, eof(err)
			}
			cmd.HasPos, cmd.X, cmd.Y = true, x, y
		}
		zoom, err := i16()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		cmd.Zoom = zoom
		ox, err := u8()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		oy, err := u8()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		cmd.OriginX, cmd.OriginY = ox, oy

	case OpDrawShapeScaleRot:
		sw, err := u16()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		cmd.ShapeID = sw & 0x7FF
		if sw&0x8000 != 0 {
			x, err := i16()
			if err != nil {
				return Command{}, 0, eof(err)
			}
			y, err := i16()
			if err != nil {
				return Command{}, 0, eof(err)
			}
			cmd.HasPos, cmd.X, cmd.Y = true, x, y
		}
		if sw&0x4000 != 0 {
			zoom, err := i16()
			if err != nil {
				return Command{}, 0, eof(err)
			}
			cmd.HasZoom, cmd.Zoom = true, zoom
		}
		ox, err := u8()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		oy, err := u8()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		cmd.OriginX, cmd.OriginY = ox, oy

		rotA, err := u16()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		cmd.RotA = rotA

		cmd.RotB = 180
		if sw&0x2000 != 0 {
			rotB, err := u16()
			if err != nil {
				return Command{}, 0, eof(err)
			}
			cmd.HasRotB, cmd.RotB = true, rotB
		}

		cmd.RotC = 90
		if sw&0x1000 != 0 {
			rotC, err := u16()
			if err != nil {
				return Command{}, 0, eof(err)
			}
			cmd.HasRotC, cmd.RotC = true, rotC
		}

	case OpDrawTextAtPos:
		v, err := u16()
		if err != nil {
			return Command{}, 0, eof(err)
		}
		if v == 0xFFFF {
			cmd.HasText = false
		} else {
			cmd.HasText = true
			cmd.StringID = v & 0xFFF
			cmd.TextColour = uint8((v >> 12) & 0xF)
			tx, err := i8()
			if err != nil {
				return Command{}, 0, eof(err)
			}
			ty, err := i8()
			if err != nil {
				return Command{}, 0, eof(err)
			}
			cmd.TextX = int16(tx) * 8
			cmd.TextY = int16(ty) * 8
		}

	case OpHandleKeys:
		for {
			mask, err := u8()
			if err != nil {
				return Command{}, 0, eof(err)
			}
			if mask == 0xFF {
				break
			}
			target, err := i16()
			if err != nil {
				return Command{}, 0, eof(err)
			}
			cmd.Keys = append(cmd.Keys, KeyTarget{KeyMask: mask, Target: target})
		}

	default:
		return Command{}, 0, newFormatError("CMD", KindBadOpcode, "unhandled opcode", nil)
	}

	return cmd, pos, nil
}

func skip(data []byte, pos *int, n int) error {
	if *pos+n > len(data) {
		return binreader.ErrOutOfRange
	}
	*pos += n
	return nil
}

func eof(err error) error {
	return newFormatError("CMD", KindUnexpectedEOF, "command argument", err)
}
