package synth

import (
	"testing"

	"flashback/instrument"
)

func TestSoftCoreSilentUntilNoteOn(t *testing.T) {
	c := NewSoftCore(8000)
	out := make([]float32, 16)
	c.RenderSamples(out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("expected silence before any note-on at %d, got %v", i, v)
		}
	}
}

func TestSoftCoreProducesSignalAfterNoteOn(t *testing.T) {
	c := NewSoftCore(8000)
	c.SetInstrument(0, 0, instrument.Instrument{
		Carrier:  instrument.Operator{Attack: 15, Decay: 0, Sustain: 15, TotalLevel: 63},
		Modulator: instrument.Operator{Attack: 15, Decay: 0, Sustain: 15},
	})
	c.NoteOn(0, 69, 100)

	out := make([]float32, 64)
	c.RenderSamples(out)

	var nonZero bool
	for _, v := range out {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatal("expected a non-silent signal after note-on")
	}
}

func TestNoteOnAppliesOctaveWrap(t *testing.T) {
	c := NewSoftCore(8000)
	c.SetInstrument(0, 3, instrument.Instrument{
		Carrier:   instrument.Operator{Attack: 15, Sustain: 15},
		Modulator: instrument.Operator{Attack: 15, Sustain: 15},
		NoteOffset: 100,
	})
	c.NoteOn(3, 60, 100)

	// note(60) + NoteOffset(100) = 160 -> octave 13 -> one wrap of 8*12,
	// so the injected note should be 60 + (100-96) = 64, not 160.
	want := noteToHz(64)
	if got := c.voices[3].carFreq; got != want {
		t.Fatalf("expected wrapped frequency %v, got %v", want, got)
	}
}

func TestSoftCoreResetSilencesVoices(t *testing.T) {
	c := NewSoftCore(8000)
	c.SetInstrument(0, 0, instrument.Instrument{Carrier: instrument.Operator{Attack: 15, Sustain: 15}})
	c.NoteOn(0, 60, 100)
	c.Reset()

	out := make([]float32, 16)
	c.RenderSamples(out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("expected silence after Reset at %d, got %v", i, v)
		}
	}
}
