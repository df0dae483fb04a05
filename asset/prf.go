package asset

import (
	"strings"

	"flashback/binreader"
)

const prfMinLen = 752

// PrfData is the decoded audio profile: per-slot instrument
// assignment plus the MIDI file that drives playback.
type PrfData struct {
	Instruments         [16]string // empty string = unassigned slot
	AdlibNotes          [16]int16
	AdlibVelocities     [16]int16
	TimerTicks          uint32
	TimerMod            uint16
	MidiFilename        string
	AdlibPrograms       [16]uint16
	HwChannelNum        [16]uint8
	LoopFlag            [16]uint8
	TotalDurationTicks  uint32
}

// ParsePRF decodes a .PRF audio profile asset.
func ParsePRF(data []byte) (PrfData, error) {
	if len(data) < prfMinLen {
		return PrfData{}, newFormatError("PRF", KindTooSmall, "need at least 752 bytes", nil)
	}

	var prf PrfData

	for i := 0; i < 16; i++ {
		name, err := readFixedString(data, i*30, 30)
		if err != nil {
			return PrfData{}, newFormatError("PRF", KindUnexpectedEOF, "instrument name", err)
		}
		prf.Instruments[i] = name
	}

	for i := 0; i < 16; i++ {
		v, err := binreader.I16LEAt(data, 480+i*2)
		if err != nil {
			return PrfData{}, newFormatError("PRF", KindUnexpectedEOF, "adlib_notes", err)
		}
		prf.AdlibNotes[i] = v
	}

	for i := 0; i < 16; i++ {
		v, err := binreader.I16LEAt(data, 512+i*2)
		if err != nil {
			return PrfData{}, newFormatError("PRF", KindUnexpectedEOF, "adlib_velocities", err)
		}
		prf.AdlibVelocities[i] = v
	}

	ticks, err := binreader.U32LEAt(data, 544)
	if err != nil {
		return PrfData{}, newFormatError("PRF", KindUnexpectedEOF, "timer_ticks", err)
	}
	prf.TimerTicks = ticks

	mod, err := binreader.U16LEAt(data, 548)
	if err != nil {
		return PrfData{}, newFormatError("PRF", KindUnexpectedEOF, "timer_mod", err)
	}
	prf.TimerMod = mod

	midiName, err := readFixedString(data, 550, 20)
	if err != nil {
		return PrfData{}, newFormatError("PRF", KindUnexpectedEOF, "midi_filename", err)
	}
	prf.MidiFilename = midiName

	// Bytes 570-571 (adlib_do_notes_lookup) are decoded by the
	// original engine but carry no field in this core's PrfData model.

	for i := 0; i < 16; i++ {
		v, err := binreader.U16LEAt(data, 572+i*2)
		if err != nil {
			return PrfData{}, newFormatError("PRF", KindUnexpectedEOF, "adlib_programs", err)
		}
		prf.AdlibPrograms[i] = v
	}

	for i := 0; i < 16; i++ {
		v, err := binreader.U8At(data, 700+i)
		if err != nil {
			return PrfData{}, newFormatError("PRF", KindUnexpectedEOF, "hw_channel_num", err)
		}
		prf.HwChannelNum[i] = v
	}

	for i := 0; i < 16; i++ {
		v, err := binreader.U8At(data, 732+i)
		if err != nil {
			return PrfData{}, newFormatError("PRF", KindUnexpectedEOF, "loop_flag", err)
		}
		prf.LoopFlag[i] = v
	}

	total, err := binreader.U32LEAt(data, 748)
	if err != nil {
		return PrfData{}, newFormatError("PRF", KindUnexpectedEOF, "total_duration_ticks", err)
	}
	prf.TotalDurationTicks = total

	return prf, nil
}

// readFixedString reads an n-byte NUL-terminated, trimmed string
// field starting at off.
func readFixedString(data []byte, off, n int) (string, error) {
	if off < 0 || off+n > len(data) {
		return "", binreader.ErrOutOfRange
	}
	raw := data[off : off+n]
	end := 0
	for end < len(raw) && raw[end] != 0 {
		end++
	}
	return strings.TrimSpace(string(raw[:end])), nil
}
