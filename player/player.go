// Package player is the top-level orchestrator: it owns a loaded
// Cutscene, the VM that interprets its script, and the Synth Driver
// that plays its audio, and exposes the single play/step/goto surface
// a host embeds.
package player

import (
	"fmt"
	"sync"

	"flashback/asset"
	"flashback/render"
	"flashback/synth"
	"flashback/vm"
)

// AssetFetcher loads a named asset's raw bytes, e.g. "LOGOSSSI.CMD".
// A real host backs this with os.ReadFile against a DATA/ directory.
type AssetFetcher func(name string) ([]byte, error)

// AudioSink is the PCM destination a host supplies; the Player feeds
// it samples on whatever cadence the host's callback dispatches from.
// It is intentionally io.Writer-shaped so a real backend (oto, ALSA,
// a WAV file) can implement it directly.
type AudioSink interface {
	Write(samples []float32) (int, error)
}

// Kind enumerates the taxonomy from spec.md §7 that the Player itself
// surfaces (as opposed to the synth's own Kind, delivered only via
// the MIDI-state callback).
type Kind int

const (
	KindInvalidFormat Kind = iota
	KindAssetNotFound
	KindCoreInvariantViolated
)

// Error is the Player's load-time / programmer-error type.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("player: %s", e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// prfNameTable maps a cutscene name to the PRF name carrying its
// audio profile. The mapping is historically fixed and mostly
// identity; INTRO1 -> INTROL3 is the one documented exception.
var prfNameTable = map[string]string{
	"INTRO1": "INTROL3",
}

func prfNameFor(cutsceneName string) string {
	if name, ok := prfNameTable[cutsceneName]; ok {
		return name
	}
	return cutsceneName
}

// ChannelInfo reports one MIDI channel's current mute/instrument state.
type ChannelInfo struct {
	Muted          bool
	InstrumentName string
	OctaveOffset   int
}

// Player is the host-facing orchestrator. All exported methods are
// safe to call from a single host goroutine; audio rendering happens
// on whatever goroutine the host's AudioSink dispatches from, guarded
// internally by the Synth Driver's own mutex.
type Player struct {
	mu sync.Mutex

	fetch AssetFetcher
	synth *synth.Driver

	cutscene *asset.Cutscene
	vm       *vm.VM
	renderer *render.Renderer

	playing      bool
	audioEnabled bool

	channels [16]ChannelInfo

	onStateChange     func(playing bool)
	onMidiStateChange func(*synth.Error)
	onChannelChange   func(ch int, info ChannelInfo)
}

// New constructs a Player. core and sampleRate configure the Synth
// Driver's underlying OPL3 core; fetch resolves named assets.
func New(core synth.OPL3Core, sampleRate int, fetch AssetFetcher) *Player {
	p := &Player{
		fetch:        fetch,
		audioEnabled: true,
	}
	p.synth = synth.New(core, synth.AssetFetcher(fetch), sampleRate)
	p.synth.OnError(func(e *synth.Error) {
		if p.onMidiStateChange != nil {
			p.onMidiStateChange(e)
		}
	})
	p.synth.Init()
	return p
}

// OnStateChange/OnMidiStateChange/OnChannelChange install the three
// host callbacks named in spec.md §6.2.
func (p *Player) OnStateChange(fn func(playing bool))           { p.onStateChange = fn }
func (p *Player) OnMidiStateChange(fn func(*synth.Error))        { p.onMidiStateChange = fn }
func (p *Player) OnChannelChange(fn func(ch int, info ChannelInfo)) { p.onChannelChange = fn }

// Load fetches a cutscene's CMD and POL, constructs a Cutscene,
// installs a fresh VM, and kicks off the synth's (non-fatal) audio
// load for the mapped PRF. A malformed or missing CMD/POL fails the
// call outright and leaves any previously-loaded cutscene in place.
func (p *Player) Load(cutsceneName string) error {
	cmdData, err := p.fetch(cutsceneName + ".CMD")
	if err != nil {
		return &Error{Kind: KindAssetNotFound, Detail: cutsceneName + ".CMD not found", Err: err}
	}
	polData, err := p.fetch(cutsceneName + ".POL")
	if err != nil {
		return &Error{Kind: KindAssetNotFound, Detail: cutsceneName + ".POL not found", Err: err}
	}

	script, err := asset.ParseCMD(cmdData)
	if err != nil {
		return &Error{Kind: KindInvalidFormat, Detail: "invalid " + cutsceneName + ".CMD", Err: err}
	}
	shapes, palettes, err := asset.ParsePOL(polData)
	if err != nil {
		return &Error{Kind: KindInvalidFormat, Detail: "invalid " + cutsceneName + ".POL", Err: err}
	}
	if len(palettes) == 0 {
		return &Error{
			Kind:   KindInvalidFormat,
			Detail: "zero palettes in " + cutsceneName + ".POL",
			Err:    &asset.FormatError{Kind: asset.KindZeroPalettes, Format: "POL", Detail: "zero palettes"},
		}
	}

	shapeMap := make(map[uint16]asset.Shape, len(shapes))
	for _, s := range shapes {
		shapeMap[s.ID] = s
	}

	cutscene := &asset.Cutscene{
		Name:     cutsceneName,
		Shapes:   shapeMap,
		Palettes: palettes,
		Script:   script,
	}

	p.mu.Lock()
	p.stopAndResetLocked()
	p.cutscene = cutscene
	p.renderer = render.New()
	p.vm = vm.New(cutscene, p.renderer)
	if p.vm.TotalFrames() > 0 {
		if err := p.vm.Reset(); err != nil {
			p.mu.Unlock()
			return &Error{Kind: KindCoreInvariantViolated, Detail: "frame 0 rejected", Err: err}
		}
	}
	p.mu.Unlock()

	if p.audioEnabled {
		p.synth.LoadForCutscene(prfNameFor(cutsceneName))
	}

	return nil
}

func (p *Player) stopAndResetLocked() {
	p.playing = false
	p.synth.StopAndReset()
	if p.renderer != nil {
		p.renderer.ClearAllShapes()
	}
}

// Play / Stop / TogglePlay control the cooperative frame-stepping
// cadence; stepping itself is driven by the host calling NextFrame on
// its own clock, not by a goroutine owned here.
func (p *Player) Play() { p.setPlaying(true) }
func (p *Player) Stop() { p.setPlaying(false) }

func (p *Player) TogglePlay() bool {
	p.mu.Lock()
	next := !p.playing
	p.mu.Unlock()
	p.setPlaying(next)
	return next
}

func (p *Player) setPlaying(playing bool) {
	p.mu.Lock()
	p.playing = playing
	p.mu.Unlock()
	if playing {
		p.synth.Play()
	} else {
		p.synth.Stop()
	}
	if p.onStateChange != nil {
		p.onStateChange(playing)
	}
}

// NextFrame / PrevFrame / GoToFrame / Reset delegate to the VM.
func (p *Player) NextFrame() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vm == nil {
		return nil
	}
	return p.vm.NextFrame()
}

func (p *Player) PrevFrame() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vm == nil {
		return nil
	}
	return p.vm.PrevFrame()
}

func (p *Player) GoToFrame(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vm == nil {
		return &Error{Kind: KindCoreInvariantViolated, Detail: "go_to_frame called before load"}
	}
	if err := p.vm.GoToFrame(i); err != nil {
		return &Error{Kind: KindCoreInvariantViolated, Detail: "frame index out of range", Err: err}
	}
	return nil
}

func (p *Player) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vm == nil {
		return nil
	}
	return p.vm.Reset()
}

// FrameCount / CurrentFrame report the VM's whole-script frame index
// state.
func (p *Player) FrameCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vm == nil {
		return 0
	}
	return p.vm.TotalFrames()
}

func (p *Player) CurrentFrame() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vm == nil {
		return 0
	}
	return p.vm.CurrentFrame()
}

// Framebuffer returns the 256x224 RGBA pixels composed as of the last
// markCurPos the VM executed. The VM presents into the renderer's
// owned framebuffer itself, at the point in its command stream where
// the original engine would have flipped the display -- there is
// nothing left to compose here.
func (p *Player) Framebuffer() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renderer == nil {
		return nil
	}
	return p.renderer.Framebuffer()
}

// SetAudioEnabled gates whether Load attempts to initialize audio for
// the cutscene being loaded; it does not retroactively silence audio
// already playing.
func (p *Player) SetAudioEnabled(enabled bool) { p.audioEnabled = enabled }

func (p *Player) SetLoop(loop bool)            { p.synth.SetLoop(loop) }
func (p *Player) SetVolumeModel(model int)     { p.synth.SetVolumeModel(model) }

// PumpAudio renders one buffer's worth of PCM from the synth into buf
// and writes it to sink. The host calls this from whatever goroutine
// its AudioSink dispatches from; the Synth Driver's own mutex is what
// makes this safe to call concurrently with the VM-stepping goroutine.
func (p *Player) PumpAudio(sink AudioSink, buf []float32) error {
	p.synth.RenderSamples(buf)
	_, err := sink.Write(buf)
	return err
}

func (p *Player) GetChannels() [16]ChannelInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels
}

func (p *Player) MuteChannel(ch int) {
	p.synth.MuteChannel(ch)
	p.updateChannel(ch, func(info *ChannelInfo) { info.Muted = true })
}

func (p *Player) UnmuteChannel(ch int) {
	p.synth.UnmuteChannel(ch)
	p.updateChannel(ch, func(info *ChannelInfo) { info.Muted = false })
}

func (p *Player) SetChannelInstrument(ch int, name string) {
	p.synth.SetChannelInstrument(ch, name)
	p.updateChannel(ch, func(info *ChannelInfo) { info.InstrumentName = name })
}

func (p *Player) SetChannelOctaveOffset(ch int, delta int) {
	p.synth.SetChannelOctaveOffset(ch, delta)
	p.updateChannel(ch, func(info *ChannelInfo) { info.OctaveOffset = delta })
}

func (p *Player) updateChannel(ch int, mutate func(*ChannelInfo)) {
	p.mu.Lock()
	if ch < 0 || ch >= len(p.channels) {
		p.mu.Unlock()
		return
	}
	mutate(&p.channels[ch])
	info := p.channels[ch]
	p.mu.Unlock()
	if p.onChannelChange != nil {
		p.onChannelChange(ch, info)
	}
}
