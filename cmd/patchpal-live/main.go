// Command patchpal-live plays a patch from the computer keyboard and an
// optional MIDI input, showing the output level.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/cbegin/patchpal-go"
	"github.com/cbegin/patchpal-go/internal/config"
	"github.com/cbegin/patchpal-go/internal/keymap"
	"github.com/cbegin/patchpal-go/internal/midiin"
	"github.com/cbegin/patchpal-go/patch"
)

const (
	meterInterval = 80 * time.Millisecond
	// Terminals report key presses only, so keyboard notes release on a timer.
	keyHold = 400 * time.Millisecond
)

// logger is the package-wide structured logger. Safe to use before initLogger
// is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML engine config")
		patchPath  = flag.String("patch", "", "patch file (JSON or YAML); default is the init patch")
		backend    = flag.String("backend", "", "audio backend: ebiten|oto|portaudio (overrides config)")
		midiPort   = flag.String("midi", "", `MIDI input name, "first" for the first port, or empty for none`)
		channel    = flag.Int("channel", midiin.Omni, "MIDI channel 0-15, -1 for omni")
		listMIDI   = flag.Bool("list-midi", false, "list MIDI inputs and exit")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	initLogger(*debug || cfg.Debug)

	if *listMIDI {
		names, err := midiInputs()
		if err != nil {
			log.Fatal(err)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}

	if *backend != "" {
		cfg.Backend = *backend
	}
	if *patchPath != "" {
		cfg.Patch = *patchPath
	}
	if *midiPort != "" {
		cfg.MIDIPort = *midiPort
	}

	p := patch.Init()
	if cfg.Patch != "" {
		if p, err = patch.LoadFile(cfg.Patch); err != nil {
			log.Fatal(err)
		}
	}
	policy, err := patchpal.ParseStealPolicy(cfg.StealPolicy)
	if err != nil {
		log.Fatal(err)
	}
	e, err := patchpal.NewEngine(
		patchpal.WithSampleRate(cfg.SampleRate),
		patchpal.WithBackend(cfg.Backend),
		patchpal.WithPolyphony(cfg.Polyphony),
		patchpal.WithStealPolicy(policy),
		patchpal.WithSeed(cfg.Seed),
		patchpal.WithLogger(logger),
	)
	if err != nil {
		log.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		log.Fatal(err)
	}
	defer e.Shutdown()
	if err := e.SetPatch(p); err != nil {
		log.Fatal(err)
	}
	e.SetMasterVolume(cfg.Volume())
	logger.Info("patch loaded", "name", p.Meta.Name, "archetype", p.Meta.Archetype)

	if cfg.MIDIPort != "" {
		closeMIDI, err := openMIDI(cfg.MIDIPort, midiin.NewHandler(e, *channel, logger))
		if err != nil {
			log.Fatal(err)
		}
		defer closeMIDI()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	keys, restore, err := readKeys(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer restore()

	fmt.Print("keys a-; play, z/x octave, space all notes off, q quits\r\n")
	pl := newPlayer(e)
	defer pl.stop()
	ticker := time.NewTicker(meterInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-keys:
			if !ok {
				return
			}
			if !pl.press(r) {
				return
			}
		case <-ticker.C:
			fmt.Printf("\r%s", meterLine(e.OutputLevel(), len(e.Voices()), pl.km.Shift()))
		}
	}
}

// player turns key presses into engine calls.
type player struct {
	e      *patchpal.Engine
	km     keymap.Keymap
	hold   time.Duration
	mu     sync.Mutex
	timers map[int]*time.Timer
}

func newPlayer(e *patchpal.Engine) *player {
	return &player{e: e, hold: keyHold, timers: make(map[int]*time.Timer)}
}

// press handles one key and reports whether to keep running.
func (p *player) press(r rune) bool {
	action, n := p.km.Press(r)
	switch action {
	case keymap.Note:
		if err := p.e.NoteOn(n, keymap.Velocity, nil); err != nil {
			logger.Warn("note on failed", "note", n, "err", err)
			return true
		}
		p.mu.Lock()
		if t, ok := p.timers[n]; ok {
			t.Stop()
		}
		var t *time.Timer
		t = time.AfterFunc(p.hold, func() { p.release(n, t) })
		p.timers[n] = t
		p.mu.Unlock()
	case keymap.OctaveDown, keymap.OctaveUp:
		logger.Debug("octave", "shift", n)
	case keymap.Panic:
		p.stop()
		if err := p.e.AllNotesOff(); err != nil {
			logger.Warn("panic incomplete", "err", err)
		}
	case keymap.Quit:
		return false
	}
	return true
}

// release fires from a key's hold timer. A timer superseded by a later
// press of the same key does nothing.
func (p *player) release(note int, t *time.Timer) {
	p.mu.Lock()
	if p.timers[note] != t {
		p.mu.Unlock()
		return
	}
	delete(p.timers, note)
	p.mu.Unlock()
	if err := p.e.NoteOff(note); err != nil {
		logger.Warn("note off failed", "note", note, "err", err)
	}
}

func (p *player) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n, t := range p.timers {
		t.Stop()
		delete(p.timers, n)
	}
}

func meterLine(level float64, voices, shift int) string {
	const width = 40
	n := int(min(level/0.7, 1) * width)
	return fmt.Sprintf("[%s%s] %.3f voices %2d oct %+d ", strings.Repeat("#", n), strings.Repeat(" ", width-n), level, voices, shift)
}
