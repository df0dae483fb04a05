package asset

import "testing"

func buildINS(t *testing.T, mode byte) []byte {
	t.Helper()
	buf := make([]byte, 80)
	buf[0] = mode
	buf[1] = 3 // channel

	putU16 := func(off int, v uint16) {
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
	}
	// modulator operator fields, in the §4.5 order.
	putU16(2+0*2, 2)  // key_scaling
	putU16(2+1*2, 7)  // freq_mult
	putU16(2+2*2, 4)  // feedback
	putU16(2+3*2, 9)  // attack
	putU16(2+4*2, 3)  // sustain_level
	putU16(2+5*2, 1)  // sustain_sound
	putU16(2+6*2, 11) // decay
	putU16(2+7*2, 6)  // release
	putU16(2+8*2, 40) // output_level
	putU16(2+9*2, 1)  // am
	putU16(2+10*2, 0) // vibrato
	putU16(2+11*2, 1) // ksr
	putU16(2+12*2, 0) // connection

	buf[74] = 5 // mod_wave
	buf[76] = 2 // car_wave
	return buf
}

func TestParseINS(t *testing.T) {
	data := buildINS(t, 0)
	ins, err := ParseINS(data)
	if err != nil {
		t.Fatalf("ParseINS failed: %v", err)
	}
	if ins.Mode != 0 {
		t.Errorf("expected mode 0, got %d", ins.Mode)
	}
	if ins.ModWave != 5 || ins.CarWave != 2 {
		t.Errorf("expected wave 5/2, got %d/%d", ins.ModWave, ins.CarWave)
	}
	m := ins.Modulator
	if m.KeyScaleLevel != 2 || m.FreqMult != 7 || m.Feedback != 4 || m.Attack != 9 ||
		m.SustainLevel != 3 || !m.SustainSound || m.Decay != 11 || m.Release != 6 ||
		m.OutputLevel != 40 || !m.AM || m.Vibrato || !m.KSR || m.Connection {
		t.Errorf("unexpected modulator operator: %+v", m)
	}
}

func TestParseINSBadMode(t *testing.T) {
	data := buildINS(t, 7)
	_, err := ParseINS(data)
	fe, ok := err.(*FormatError)
	if !ok || fe.Kind != KindBadMode {
		t.Fatalf("expected BadMode FormatError, got %v", err)
	}
}

func TestParseINSWaveMasked(t *testing.T) {
	data := buildINS(t, 1)
	data[74] = 0xFF // only low 3 bits should survive
	ins, err := ParseINS(data)
	if err != nil {
		t.Fatalf("ParseINS failed: %v", err)
	}
	if ins.ModWave != 0x07 {
		t.Errorf("expected mod_wave masked to 7, got %d", ins.ModWave)
	}
}
