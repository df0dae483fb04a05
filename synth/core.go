package synth

import (
	"math"
	"sync"

	"flashback/instrument"
)

// voice is one active two-operator FM voice: a modulator oscillator
// feeding a carrier oscillator (or summed with it, for additive
// connection), each with its own linear ADSR envelope. This mirrors
// the teacher's per-channel oscillator-plus-envelope shape, adapted
// from amplitude/frequency synthesis to two-operator FM.
type voice struct {
	active bool
	instr  instrument.Instrument

	modPhase, carPhase   float64
	modFreq, carFreq     float64
	modLevel, carLevel   float32
	modEnv, carEnv       envelope
	gate                 bool
}

type envelopeStage int

const (
	stageAttack envelopeStage = iota
	stageDecay
	stageSustain
	stageRelease
	stageIdle
)

type envelope struct {
	stage  envelopeStage
	level  float32
	attack, decay, sustain, release float32 // seconds / level fraction
	sampleRate float64
}

func (e *envelope) gateOn() {
	e.stage = stageAttack
}

func (e *envelope) gateOff() {
	if e.stage != stageIdle {
		e.stage = stageRelease
	}
}

func (e *envelope) step() float32 {
	switch e.stage {
	case stageAttack:
		if e.attack <= 0 {
			e.level = 1
			e.stage = stageDecay
		} else {
			e.level += float32(1 / (e.attack * e.sampleRate))
			if e.level >= 1 {
				e.level = 1
				e.stage = stageDecay
			}
		}
	case stageDecay:
		if e.decay <= 0 {
			e.level = e.sustain
			e.stage = stageSustain
		} else {
			e.level -= float32(1 / (e.decay * e.sampleRate))
			if e.level <= e.sustain {
				e.level = e.sustain
				e.stage = stageSustain
			}
		}
	case stageSustain:
		e.level = e.sustain
	case stageRelease:
		if e.release <= 0 {
			e.level = 0
			e.stage = stageIdle
		} else {
			e.level -= float32(1 / (e.release * e.sampleRate))
			if e.level <= 0 {
				e.level = 0
				e.stage = stageIdle
			}
		}
	}
	return e.level
}

// SoftCore is a minimal software OPL3Core: it approximates the two-
// operator FM voice model with sine oscillators and linear envelopes
// rather than emulating YMF262 register timing exactly. It exists so
// flashbackctl has a default audio path with no external chip-emulation
// dependency; a real OPL3 emulator core can implement the same
// interface as a drop-in replacement.
type SoftCore struct {
	mu         sync.Mutex
	sampleRate float64
	voices     [16]voice
	volumeGain float32
}

// NewSoftCore constructs a SoftCore for the given sample rate.
func NewSoftCore(sampleRate int) *SoftCore {
	return &SoftCore{sampleRate: float64(sampleRate), volumeGain: 1}
}

func (c *SoftCore) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.voices {
		c.voices[i] = voice{}
	}
}

func (c *SoftCore) SetInstrument(bank, slot int, instr instrument.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slot < 0 || slot >= len(c.voices) {
		return
	}
	c.voices[slot].instr = instr
}

func (c *SoftCore) SetVolumeModel(model int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if model == 0 {
		c.volumeGain = 1 // native OPL3 logarithmic curve, approximated linearly here
	} else {
		c.volumeGain = 0.75
	}
}

func noteToHz(note int) float64 {
	return 440 * math.Pow(2, (float64(note)-69)/12)
}

func (c *SoftCore) NoteOn(channel, note, velocity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if channel < 0 || channel >= len(c.voices) {
		return
	}
	v := &c.voices[channel]
	// note_offset can push the sounding note into block (octave) >= 8,
	// which a real OPL3 register can't represent; wrap it back per the
	// instrument-map rule before computing the frequency to inject.
	octave := (note + int(v.instr.NoteOffset)) / 12
	noteOffset := instrument.OctaveWrappedNoteOffset(v.instr.NoteOffset, octave)
	effectiveNote := note + int(noteOffset)
	v.carFreq = noteToHz(effectiveNote)
	v.modFreq = v.carFreq * float64(v.instr.Modulator.FreqMult+1)
	level := float32(velocity) / 127
	if v.instr.VelocityOffset != 0 {
		level += float32(v.instr.VelocityOffset) / 127
	}
	v.carLevel = clamp01(level)
	v.modLevel = clamp01(level)
	v.modEnv = newEnvelope(v.instr.Modulator, c.sampleRate)
	v.carEnv = newEnvelope(v.instr.Carrier, c.sampleRate)
	v.modEnv.gateOn()
	v.carEnv.gateOn()
	v.active = true
	v.gate = true
}

func (c *SoftCore) NoteOff(channel, note int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if channel < 0 || channel >= len(c.voices) {
		return
	}
	v := &c.voices[channel]
	v.gate = false
	v.modEnv.gateOff()
	v.carEnv.gateOff()
}

func (c *SoftCore) ControlChange(channel, controller, value int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if channel < 0 || channel >= len(c.voices) {
		return
	}
	switch controller {
	case 7: // channel volume
		c.voices[channel].carLevel = float32(value) / 127
	case 123: // all notes off
		c.voices[channel].gate = false
		c.voices[channel].modEnv.gateOff()
		c.voices[channel].carEnv.gateOff()
	}
}

func newEnvelope(op instrument.Operator, sampleRate float64) envelope {
	return envelope{
		attack:     float32(op.Attack) / 15 * 2,
		decay:      float32(op.Decay) / 15 * 2,
		sustain:    1 - float32(op.Sustain)/15,
		release:    float32(op.Release) / 15 * 2,
		sampleRate: sampleRate,
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RenderSamples fills out with a mono mix of every active voice,
// duplicated across no channels -- callers own interleaving for their
// sink's channel count.
func (c *SoftCore) RenderSamples(out []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range out {
		out[i] = 0
	}
	for vi := range c.voices {
		v := &c.voices[vi]
		if !v.active {
			continue
		}
		for i := range out {
			modEnvLevel := v.modEnv.step()
			modSample := float32(math.Sin(v.modPhase)) * modEnvLevel * v.modLevel
			v.modPhase += 2 * math.Pi * v.modFreq / c.sampleRate

			carPhase := v.carPhase
			if !v.instr.Additive {
				carPhase += float64(modSample) * math.Pi
			}
			carEnvLevel := v.carEnv.step()
			carSample := float32(math.Sin(carPhase)) * carEnvLevel * v.carLevel
			if v.instr.Additive {
				carSample += modSample
			}
			v.carPhase += 2 * math.Pi * v.carFreq / c.sampleRate

			out[i] += carSample * c.volumeGain
			if v.carEnv.stage == stageIdle && v.modEnv.stage == stageIdle {
				v.active = false
			}
		}
	}
}
