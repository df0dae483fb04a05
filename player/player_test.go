package player

import (
	"errors"
	"testing"

	"flashback/asset"
	"flashback/instrument"
	"flashback/synth"
)

type fakeCore struct{}

func (fakeCore) Reset()                                               {}
func (fakeCore) SetInstrument(bank, slot int, instr instrument.Instrument) {}
func (fakeCore) SetVolumeModel(model int)                              {}
func (fakeCore) NoteOn(channel, note, velocity int)                    {}
func (fakeCore) NoteOff(channel, note int)                             {}
func (fakeCore) ControlChange(channel, controller, value int)          {}
func (fakeCore) RenderSamples(out []float32)                           {}

// buildMinimalPOL assembles a one-shape, one-palette, single-point POL,
// mirroring package asset's own test fixture construction.
func buildMinimalPOL() []byte {
	buf := make([]byte, 20)
	shapeOffTbl := len(buf)
	buf = append(buf, 0x00, 0x00)
	paletteOff := len(buf)
	for i := 0; i < 16; i++ {
		buf = append(buf, 0x00, 0x00)
	}
	vertsOffTbl := len(buf)
	buf = append(buf, 0x00, 0x00)
	shapeDataTbl := len(buf)
	buf = append(buf, 0x00, 0x01, 0x00, 0x00, 0x07)
	vertsDataTbl := len(buf)
	buf = append(buf, 0x00, 0x00, 0x05, 0x00, 0x0A)

	patch16 := func(at int, v int) {
		buf[at] = byte(v >> 8)
		buf[at+1] = byte(v)
	}
	patch16(0x02, shapeOffTbl)
	patch16(0x06, paletteOff)
	patch16(0x0A, vertsOffTbl)
	patch16(0x0E, shapeDataTbl)
	patch16(0x12, vertsDataTbl)
	return buf
}

func buildMinimalCMD() []byte {
	return []byte{
		0x00, 0x00, // sub_count = 0
		byte(asset.OpNop) << 2,
		0x80, // terminal high-bit byte
	}
}

func fixtureFetcher() AssetFetcher {
	assets := map[string][]byte{
		"LOGOSSSI.CMD": buildMinimalCMD(),
		"LOGOSSSI.POL": buildMinimalPOL(),
	}
	return func(name string) ([]byte, error) {
		data, ok := assets[name]
		if !ok {
			return nil, errors.New("not found")
		}
		return data, nil
	}
}

func TestLoadConstructsCutsceneAndVM(t *testing.T) {
	p := New(fakeCore{}, 44100, fixtureFetcher())
	if err := p.Load("LOGOSSSI"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.FrameCount() != 1 {
		t.Fatalf("expected 1 frame, got %d", p.FrameCount())
	}
	if p.CurrentFrame() != 0 {
		t.Fatalf("expected frame 0, got %d", p.CurrentFrame())
	}
	fb := p.Framebuffer()
	if len(fb) != 256*224*4 {
		t.Fatalf("expected a 256x224 RGBA framebuffer, got %d bytes", len(fb))
	}
}

func TestLoadMissingCMDFails(t *testing.T) {
	p := New(fakeCore{}, 44100, func(name string) ([]byte, error) {
		return nil, errors.New("not found")
	})
	err := p.Load("MISSING")
	if err == nil {
		t.Fatal("expected an error for a missing cutscene")
	}
	perr, ok := err.(*Error)
	if !ok || perr.Kind != KindAssetNotFound {
		t.Fatalf("expected AssetNotFound, got %v", err)
	}
}

func TestAudioGracefulDegradationOnMissingPRF(t *testing.T) {
	p := New(fakeCore{}, 44100, fixtureFetcher())

	var midiErr *synth.Error
	p.OnMidiStateChange(func(e *synth.Error) { midiErr = e })

	if err := p.Load("LOGOSSSI"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	// visual playback proceeds regardless of the audio-load outcome.
	if err := p.NextFrame(); err != nil {
		t.Fatalf("NextFrame failed: %v", err)
	}
	if midiErr == nil || midiErr.Kind != synth.KindInstrumentLoadFailed {
		t.Fatalf("expected an InstrumentLoadFailed callback for the missing PRF, got %v", midiErr)
	}
}

func TestTogglePlaySendsStateChange(t *testing.T) {
	p := New(fakeCore{}, 44100, fixtureFetcher())
	var states []bool
	p.OnStateChange(func(playing bool) { states = append(states, playing) })

	if !p.TogglePlay() {
		t.Fatal("expected TogglePlay to start playback")
	}
	if p.TogglePlay() {
		t.Fatal("expected second TogglePlay to stop playback")
	}
	if len(states) != 2 || states[0] != true || states[1] != false {
		t.Fatalf("expected [true, false] state changes, got %v", states)
	}
}

func TestGoToFrameOutOfRangeIsCoreInvariantViolated(t *testing.T) {
	p := New(fakeCore{}, 44100, fixtureFetcher())
	if err := p.Load("LOGOSSSI"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	err := p.GoToFrame(99)
	perr, ok := err.(*Error)
	if !ok || perr.Kind != KindCoreInvariantViolated {
		t.Fatalf("expected CoreInvariantViolated, got %v", err)
	}
}
