// Package synth wraps a pluggable OPL3 core behind the Synth Driver
// API: load a cutscene's PRF-described instrument bank and MIDI
// sequence, and drive note on/off and sample rendering. It never owns
// asset I/O directly -- an AssetFetcher is supplied by the caller, so
// tests can serve fixtures without touching a filesystem.
package synth

import (
	"bytes"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"flashback/asset"
	"flashback/instrument"
)

// OPL3Core is the pluggable synth backend the Driver programs.
// Implementations range from a software OPL3 emulator to a headless
// test double; the Driver never assumes which.
type OPL3Core interface {
	Reset()
	SetInstrument(bank, slot int, instr instrument.Instrument)
	SetVolumeModel(model int)
	NoteOn(channel, note, velocity int)
	NoteOff(channel, note int)
	ControlChange(channel, controller, value int)
	RenderSamples(out []float32)
}

// AssetFetcher loads a named asset's raw bytes (e.g. "INTROL3.PRF").
// Callers typically back this with os.ReadFile against a DATA/
// directory; tests back it with an in-memory map.
type AssetFetcher func(name string) ([]byte, error)

// midiEvent is one flattened, absolute-tick-scheduled SMF event.
type midiEvent struct {
	tick uint32
	msg  midi.Message
}

// Driver is the Synth Driver: a mutex-guarded wrapper around an
// OPL3Core that owns the currently-loaded instrument bank and MIDI
// sequence. The mutex exists for the same reason PSGEngine takes one:
// the audio render callback and control-plane calls (play/stop/seek)
// run on different goroutines.
type Driver struct {
	mu   sync.Mutex
	core OPL3Core
	fetch AssetFetcher

	onError func(*Error)

	instruments    [16]instrument.Instrument
	baseNoteOffset [16]int16 // per-slot note_offset from the PRF, before any octave override
	octaveOffset   [16]int   // set_channel_octave_offset's live delta, in octaves
	loaded         bool
	playing     bool
	looping     bool
	volumeModel int
	muted       [16]bool

	events         []midiEvent
	ticksPerQtr    uint16
	microsPerQtr   uint32
	samplesPerTick float64
	sampleRate     int
	eventCursor    int
	tickPos        float64
}

// New constructs a Driver over a concrete OPL3Core and an
// AssetFetcher for PRF/INS/MID lookups.
func New(core OPL3Core, fetch AssetFetcher, sampleRate int) *Driver {
	return &Driver{
		core:        core,
		fetch:       fetch,
		sampleRate:  sampleRate,
		ticksPerQtr: 96,
		microsPerQtr: 500000, // default 120 BPM until a tempo meta event says otherwise
	}
}

// OnError installs the callback that receives AudioUnavailable and
// InstrumentLoadFailed errors. Never called from Init or LoadForCutscene
// synchronously with a return value: both report failures here instead.
func (d *Driver) OnError(fn func(*Error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onError = fn
}

func (d *Driver) reportError(e *Error) {
	if d.onError != nil {
		d.onError(e)
	}
}

// Init resets the underlying core and selects the native OPL3
// logarithmic volume model, matching what the original hardware used
// (deep vibrato/tremolo are left disabled).
func (d *Driver) Init() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.core.Reset()
	d.volumeModel = 0
	d.core.SetVolumeModel(d.volumeModel)
}

// LoadForCutscene stops playback, resets the core, loads the named
// PRF's instrument bank and MIDI sequence. A missing or malformed PRF,
// or any individual missing/malformed INS, is reported through the
// error callback rather than failing the call: visual playback is
// never gated on audio load success.
func (d *Driver) LoadForCutscene(prfName string) {
	d.StopAndReset()

	data, err := d.fetch(prfName + ".PRF")
	if err != nil {
		d.reportError(&Error{Kind: KindInstrumentLoadFailed, Detail: "missing " + prfName + ".PRF", Err: err})
		return
	}
	prf, err := asset.ParsePRF(data)
	if err != nil {
		d.reportError(&Error{Kind: KindInstrumentLoadFailed, Detail: "malformed " + prfName + ".PRF", Err: err})
		return
	}

	d.mu.Lock()
	for slot, name := range prf.Instruments {
		if name == "" {
			continue
		}
		insData, err := d.fetchInstrument(name)
		if err != nil {
			d.mu.Unlock()
			d.reportError(&Error{Kind: KindInstrumentLoadFailed, Detail: "missing instrument " + name, Err: err})
			d.mu.Lock()
			continue
		}
		ins, err := asset.ParseINS(insData)
		if err != nil {
			d.mu.Unlock()
			d.reportError(&Error{Kind: KindInstrumentLoadFailed, Detail: "malformed instrument " + name, Err: err})
			d.mu.Lock()
			continue
		}
		d.baseNoteOffset[slot] = prf.AdlibNotes[slot]
		d.octaveOffset[slot] = 0
		instr := instrument.Translate(ins, prf.AdlibNotes[slot], prf.AdlibVelocities[slot])
		d.instruments[slot] = instr
		d.core.SetInstrument(0, slot, instr)
	}
	d.loaded = true
	d.mu.Unlock()

	if prf.MidiFilename == "" {
		return
	}
	midiBytes, err := d.fetch(prf.MidiFilename)
	if err != nil {
		d.reportError(&Error{Kind: KindInstrumentLoadFailed, Detail: "missing MIDI " + prf.MidiFilename, Err: err})
		return
	}
	if err := d.loadMIDI(midiBytes); err != nil {
		d.reportError(&Error{Kind: KindInstrumentLoadFailed, Detail: "malformed MIDI " + prf.MidiFilename, Err: err})
	}
}

// fetchInstrument fetches "NAME.INS", retrying with the trailing
// letter stripped if the requested name ends in "a" and the exact
// name is not found -- the PRF-to-INS naming convention sometimes
// records an alternate-voicing suffix that has no corresponding file.
func (d *Driver) fetchInstrument(name string) ([]byte, error) {
	data, err := d.fetch(name + ".INS")
	if err == nil {
		return data, nil
	}
	if strings.HasSuffix(strings.ToLower(name), "a") {
		alt := name[:len(name)-1]
		if altData, altErr := d.fetch(alt + ".INS"); altErr == nil {
			return altData, nil
		}
	}
	return nil, err
}

func (d *Driver) loadMIDI(data []byte) error {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		d.ticksPerQtr = uint16(mt.Ticks4th())
	}

	var events []midiEvent
	for _, track := range s.Tracks {
		var tick uint32
		for _, ev := range track {
			tick += ev.Delta
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) {
				d.microsPerQtr = uint32(60000000 / bpm)
				continue
			}
			events = append(events, midiEvent{tick: tick, msg: ev.Message})
		}
	}
	d.events = events
	d.eventCursor = 0
	d.tickPos = 0
	d.recomputeSamplesPerTick()
	return nil
}

func (d *Driver) recomputeSamplesPerTick() {
	if d.ticksPerQtr == 0 {
		d.ticksPerQtr = 96
	}
	secondsPerTick := float64(d.microsPerQtr) / 1e6 / float64(d.ticksPerQtr)
	d.samplesPerTick = secondsPerTick * float64(d.sampleRate)
}

// Play marks the sequence playing; RenderSamples is a no-op while stopped.
func (d *Driver) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = true
}

// Stop halts playback without resetting position.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
}

// StopAndReset implements the cutscene-switch cancellation semantics:
// stop, silence every channel, reset the core, and rewind to the start
// of the sequence.
func (d *Driver) StopAndReset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
	d.eventCursor = 0
	d.tickPos = 0
	for ch := 0; ch < 16; ch++ {
		d.core.ControlChange(ch, 123, 0) // all notes off
	}
	d.core.Reset()
}

// Seek repositions playback to the given offset in seconds, replaying
// no events (a seek never re-triggers notes already past).
func (d *Driver) Seek(seconds float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.samplesPerTick <= 0 {
		return
	}
	d.tickPos = seconds * float64(d.sampleRate) / d.samplesPerTick
	for d.eventCursor < len(d.events) && float64(d.events[d.eventCursor].tick) < d.tickPos {
		d.eventCursor++
	}
}

// SetLoop toggles whether the sequence rewinds to tick 0 on reaching
// its end instead of stopping.
func (d *Driver) SetLoop(loop bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.looping = loop
}

// SetVolumeModel selects the core's volume curve.
func (d *Driver) SetVolumeModel(model int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volumeModel = model
	d.core.SetVolumeModel(model)
}

// MuteChannel sends MIDI CC 7 (channel volume) = 0.
func (d *Driver) MuteChannel(ch int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.muted[ch&0xF] = true
	d.core.ControlChange(ch, 7, 0)
}

// UnmuteChannel sends MIDI CC 7 (channel volume) = 127.
func (d *Driver) UnmuteChannel(ch int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.muted[ch&0xF] = false
	d.core.ControlChange(ch, 7, 127)
}

// SetChannelInstrument hot-swaps the INS patch programmed onto a
// channel's slot, fetching and translating it fresh while preserving
// that slot's current note/velocity offsets (including any live
// set_channel_octave_offset delta). Per spec.md §7, a failed fetch or
// parse is reported through the error callback and leaves the
// previous instrument in place.
func (d *Driver) SetChannelInstrument(ch int, name string) {
	if ch < 0 || ch >= 16 {
		return
	}
	data, err := d.fetchInstrument(name)
	if err != nil {
		d.reportError(&Error{Kind: KindInstrumentLoadFailed, Detail: "missing instrument " + name, Err: err})
		return
	}
	ins, err := asset.ParseINS(data)
	if err != nil {
		d.reportError(&Error{Kind: KindInstrumentLoadFailed, Detail: "malformed instrument " + name, Err: err})
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	velocity := d.instruments[ch].VelocityOffset
	instr := instrument.Translate(ins, d.effectiveNoteOffsetLocked(ch), velocity)
	d.instruments[ch] = instr
	d.core.SetInstrument(0, ch, instr)
}

// SetChannelOctaveOffset shifts a channel's effective note_offset by
// delta octaves, reprogramming the core immediately so the change
// takes effect on the next note.
func (d *Driver) SetChannelOctaveOffset(ch int, delta int) {
	if ch < 0 || ch >= 16 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.octaveOffset[ch] = delta
	d.instruments[ch].NoteOffset = d.effectiveNoteOffsetLocked(ch)
	d.core.SetInstrument(0, ch, d.instruments[ch])
}

// effectiveNoteOffsetLocked combines a slot's PRF-supplied note_offset
// with its live octave override. Callers must hold d.mu.
func (d *Driver) effectiveNoteOffsetLocked(ch int) int16 {
	return d.baseNoteOffset[ch] + int16(d.octaveOffset[ch]*12)
}

// NoteOn/NoteOff pass a test tone through to the core, bypassing the
// sequence -- used for instrument preview tooling.
func (d *Driver) NoteOn(channel, note, velocity int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.core.NoteOn(channel, note, velocity)
}

func (d *Driver) NoteOff(channel, note int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.core.NoteOff(channel, note)
}

// RenderSamples advances the sequence by len(out) samples' worth of
// ticks, dispatching every event reached to the core, then asks the
// core to fill out. A no-op while stopped.
func (d *Driver) RenderSamples(out []float32) {
	d.mu.Lock()
	if !d.playing || d.samplesPerTick <= 0 {
		d.mu.Unlock()
		for i := range out {
			out[i] = 0
		}
		return
	}

	advanceTicks := float64(len(out)) / d.samplesPerTick
	target := d.tickPos + advanceTicks
	for d.eventCursor < len(d.events) && float64(d.events[d.eventCursor].tick) <= target {
		d.dispatch(d.events[d.eventCursor].msg)
		d.eventCursor++
	}
	d.tickPos = target
	if d.eventCursor >= len(d.events) {
		if d.looping {
			d.eventCursor = 0
			d.tickPos = 0
		} else {
			d.playing = false
		}
	}
	d.mu.Unlock()

	d.core.RenderSamples(out)
}

func (d *Driver) dispatch(msg midi.Message) {
	var ch, key, vel uint8
	if msg.GetNoteOn(&ch, &key, &vel) {
		if !d.muted[ch&0xF] {
			d.core.NoteOn(int(ch), int(key), int(vel))
		}
		return
	}
	if msg.GetNoteOff(&ch, &key, &vel) {
		d.core.NoteOff(int(ch), int(key))
		return
	}
	var cc, val uint8
	if msg.GetControlChange(&ch, &cc, &val) {
		d.core.ControlChange(int(ch), int(cc), int(val))
	}
}
