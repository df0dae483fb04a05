// flashbackctl is a command-line exerciser for the cutscene player: it
// loads a named cutscene from a DATA/ directory, renders its frames,
// plays its audio through the system's default output device, and
// optionally drops into an interactive frame-stepping mode.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"golang.org/x/term"

	"flashback/player"
	"flashback/synth"
)

func main() {
	dataDir := flag.String("data", "DATA", "directory containing the cutscene's .CMD/.POL/.PRF/.INS/.MID assets")
	cutscene := flag.String("cutscene", "", "cutscene name, e.g. LOGOSSSI (required)")
	sampleRate := flag.Int("rate", 44100, "audio sample rate in Hz")
	delayMultiplier := flag.Int("delay", 5, "frame cadence as a multiple of the 60Hz base clock (default ~12Hz)")
	interactive := flag.Bool("interactive", false, "step frames manually from the keyboard instead of auto-advancing")
	snapshot := flag.String("snapshot", "", "write the framebuffer as rendered right after loading (frame 0) as a PNG to this path and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: flashbackctl -cutscene NAME [options]\n\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  flashbackctl -data ./DATA -cutscene LOGOSSSI\n")
		fmt.Fprintf(os.Stderr, "  flashbackctl -cutscene INTRO1 -interactive\n")
	}
	flag.Parse()

	if *cutscene == "" {
		flag.Usage()
		os.Exit(1)
	}

	fetch := func(name string) ([]byte, error) {
		return os.ReadFile(filepath.Join(*dataDir, name))
	}

	core := synth.NewSoftCore(*sampleRate)
	p := player.New(core, *sampleRate, fetch)
	p.OnMidiStateChange(func(e *synth.Error) {
		fmt.Fprintf(os.Stderr, "flashbackctl: audio: %v\n", e)
	})

	if err := p.Load(*cutscene); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	sink, err := newOtoSink(*sampleRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flashbackctl: audio unavailable, continuing silently: %v\n", err)
	} else {
		defer sink.Close()
		go pumpAudio(p, sink)
	}

	if *snapshot != "" {
		if err := writeSnapshot(p, *snapshot); err != nil {
			fmt.Fprintf(os.Stderr, "error writing snapshot: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *interactive {
		runInteractive(p)
		return
	}

	runAutoplay(p, *delayMultiplier)
}

// runAutoplay steps every frame at the 60Hz base clock divided by
// delayMultiplier, the canonical cadence (default 5 -> ~12Hz).
func runAutoplay(p *player.Player, delayMultiplier int) {
	p.Play()
	tick := time.Second / 60 * time.Duration(delayMultiplier)
	for p.CurrentFrame()+1 < p.FrameCount() {
		time.Sleep(tick)
		if err := p.NextFrame(); err != nil {
			fmt.Fprintf(os.Stderr, "flashbackctl: %v\n", err)
			return
		}
	}
}

// runInteractive puts the terminal into raw mode and steps frames on
// keypresses: space toggles play/pause, n/p step forward/back, q quits.
func runInteractive(p *player.Player) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flashbackctl: failed to set raw mode: %v\n", err)
		return
	}
	defer term.Restore(fd, oldState)

	fmt.Print("\r\nspace=play/pause  n=next  p=prev  q=quit\r\n")

	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}
		switch buf[0] {
		case ' ':
			p.TogglePlay()
		case 'n':
			_ = p.NextFrame()
		case 'p':
			_ = p.PrevFrame()
		case 'q', 3: // 3 == Ctrl-C
			return
		}
		fmt.Printf("\rframe %d/%d\r\n", p.CurrentFrame(), p.FrameCount())
	}
}

func writeSnapshot(p *player.Player, path string) error {
	pix := p.Framebuffer()
	img := image.NewRGBA(image.Rect(0, 0, 256, 224))
	copy(img.Pix, pix)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// otoSink is a player.AudioSink backed by an oto/v3 playback context.
// Write appends interleaved float32 samples converted to bytes; Read
// (called by oto on its own goroutine) drains them, matching the
// teacher's OtoPlayer pull-based backend shape.
type otoSink struct {
	mu   sync.Mutex
	buf  []byte
	ctx  *oto.Context
	play *oto.Player
}

func newOtoSink(sampleRate int) (*otoSink, error) {
	s := &otoSink{}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready
	s.ctx = ctx
	s.play = ctx.NewPlayer(s)
	s.play.Play()
	return s, nil
}

func (s *otoSink) Write(samples []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range samples {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		s.buf = append(s.buf, b[:]...)
	}
	return len(samples), nil
}

func (s *otoSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}

func (s *otoSink) Close() {
	if s.play != nil {
		s.play.Close()
	}
}

func pumpAudio(p *player.Player, sink *otoSink) {
	buf := make([]float32, 1024)
	for {
		if err := p.PumpAudio(sink, buf); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
