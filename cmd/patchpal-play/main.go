package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/cbegin/patchpal-go"
	"github.com/cbegin/patchpal-go/internal/config"
	"github.com/cbegin/patchpal-go/patch"
)

// tailSeconds covers the longest release plus the reverb impulse.
const tailSeconds = 2.0

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML engine config")
		patchPath  = flag.String("patch", "", "patch file (JSON or YAML); default is the init patch")
		sampleRate = flag.Int("sample-rate", 0, "output sample rate (overrides config)")
		backend    = flag.String("backend", "", "audio backend: ebiten|oto|portaudio|null (overrides config)")
		volume     = flag.Float64("volume", -1, "master volume 0..1.2 (overrides config)")
		loops      = flag.Int("loops", 1, "play the demo phrase N times")
		octave     = flag.Int("octave", 0, "octave shift (-4..+4)")
		wavPath    = flag.String("wav", "", "render to a float32 WAV file instead of playing")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *sampleRate > 0 {
		cfg.SampleRate = *sampleRate
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *volume >= 0 {
		cfg.MasterVolume = volume
	}
	if *patchPath != "" {
		cfg.Patch = *patchPath
	}

	p, err := resolvePatch(cfg.Patch)
	if err != nil {
		log.Fatal(err)
	}
	policy, err := patchpal.ParseStealPolicy(cfg.StealPolicy)
	if err != nil {
		log.Fatal(err)
	}
	events := phrase(*loops, *octave)

	if *wavPath != "" {
		samples, err := patchpal.RenderPhrase(p, events, cfg.SampleRate, tailSeconds,
			patchpal.WithPolyphony(cfg.Polyphony),
			patchpal.WithStealPolicy(policy),
			patchpal.WithSeed(cfg.Seed),
			patchpal.WithMasterVolume(cfg.Volume()),
		)
		if err != nil {
			log.Fatal(err)
		}
		if err := os.WriteFile(*wavPath, patchpal.EncodeWAVFloat32LE(samples, cfg.SampleRate, 2), 0o644); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %s (%.2fs)\n", *wavPath, float64(len(samples)/2)/float64(cfg.SampleRate))
		return
	}

	e, err := patchpal.NewEngine(
		patchpal.WithSampleRate(cfg.SampleRate),
		patchpal.WithBackend(cfg.Backend),
		patchpal.WithPolyphony(cfg.Polyphony),
		patchpal.WithStealPolicy(policy),
		patchpal.WithSeed(cfg.Seed),
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := e.PlayPhrase(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	waitForTails(ctx, e)
	fmt.Println("playback completed")
}

func resolvePatch(path string) (*patch.Patch, error) {
	if path == "" {
		return patch.Init(), nil
	}
	return patch.LoadFile(path)
}

// phrase repeats the demo phrase loops times, shifted by octave.
func phrase(loops, octave int) []patchpal.NoteEvent {
	base := patchpal.DemoPhrase()
	const length = 2.0
	octave = min(max(octave, -4), 4)
	var out []patchpal.NoteEvent
	for i := 0; i < max(loops, 1); i++ {
		for _, ev := range base {
			ev.Start += float64(i) * length
			ev.Note += octave * 12
			if ev.Note < 0 || ev.Note > 127 {
				continue
			}
			out = append(out, ev)
		}
	}
	return out
}

func waitForTails(ctx context.Context, e *patchpal.Engine) {
	deadline := time.After(time.Duration(tailSeconds * float64(time.Second)))
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for e.LiveVoices() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-tick.C:
		}
	}
}
