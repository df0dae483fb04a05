package asset

import "flashback/binreader"

const insLen = 80

// InsOperator is one FM operator (modulator or carrier) of an AdLib
// instrument patch. Each field is stored in its own 16-bit slot in
// the file and masked down to its documented width on read.
type InsOperator struct {
	KeyScaleLevel uint8 // 0..3
	FreqMult      uint8 // 0..15
	Feedback      uint8 // 0..7
	Attack        uint8 // 0..15
	SustainLevel  uint8 // 0..15
	SustainSound  bool
	Decay         uint8 // 0..15
	Release       uint8 // 0..15
	OutputLevel   uint8 // 0..63
	AM            bool
	Vibrato       bool
	KSR           bool
	Connection    bool
}

// InsData is a fully-decoded 80-byte AdLib instrument patch.
type InsData struct {
	Mode      uint8 // 0 melodic, 1 percussion
	Channel   uint8
	ModWave   uint8 // 0..7
	CarWave   uint8 // 0..7
	Modulator InsOperator
	Carrier   InsOperator
}

// ParseINS decodes an .INS AdLib instrument patch.
func ParseINS(data []byte) (InsData, error) {
	if len(data) < insLen {
		return InsData{}, newFormatError("INS", KindTooSmall, "need 80 bytes", nil)
	}

	mode := data[0]
	if mode != 0 && mode != 1 {
		return InsData{}, newFormatError("INS", KindBadMode, "mode must be 0 or 1", nil)
	}

	mod, err := parseOperator(data, 2)
	if err != nil {
		return InsData{}, err
	}
	car, err := parseOperator(data, 28)
	if err != nil {
		return InsData{}, err
	}

	// Bytes 54..73 are padding. Wave selects live at byte 74 and 76,
	// not in the low bytes of the adjacent u16 slots -- reading the
	// wave from bytes 2-3 instead is a silent, disastrous timbre bug.
	modWave, err := binreader.U8At(data, 74)
	if err != nil {
		return InsData{}, newFormatError("INS", KindUnexpectedEOF, "mod_wave", err)
	}
	carWave, err := binreader.U8At(data, 76)
	if err != nil {
		return InsData{}, newFormatError("INS", KindUnexpectedEOF, "car_wave", err)
	}

	return InsData{
		Mode:      mode,
		Channel:   data[1],
		ModWave:   modWave & 0x07,
		CarWave:   carWave & 0x07,
		Modulator: mod,
		Carrier:   car,
	}, nil
}

// parseOperator reads the 13 little-endian u16 slots of one operator
// starting at off, in the order spec'd in §4.5.
func parseOperator(data []byte, off int) (InsOperator, error) {
	vals := make([]uint16, 13)
	for i := range vals {
		v, err := binreader.U16LEAt(data, off+i*2)
		if err != nil {
			return InsOperator{}, newFormatError("INS", KindUnexpectedEOF, "operator field", err)
		}
		vals[i] = v
	}

	return InsOperator{
		KeyScaleLevel: uint8(vals[0] & 0x3),
		FreqMult:      uint8(vals[1] & 0xF),
		Feedback:      uint8(vals[2] & 0x7),
		Attack:        uint8(vals[3] & 0xF),
		SustainLevel:  uint8(vals[4] & 0xF),
		SustainSound:  vals[5]&1 != 0,
		Decay:         uint8(vals[6] & 0xF),
		Release:       uint8(vals[7] & 0xF),
		OutputLevel:   uint8(vals[8] & 0x3F),
		AM:            vals[9]&1 != 0,
		Vibrato:       vals[10]&1 != 0,
		KSR:           vals[11]&1 != 0,
		Connection:    vals[12]&1 != 0,
	}, nil
}
