package patchpal

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/cbegin/patchpal-go/patch"
)

func TestRenderPhraseProducesAudio(t *testing.T) {
	const sr = 24000
	samples, err := RenderPhrase(patch.Init(), DemoPhrase(), sr, 0.5)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	// Last note ends at 1.875 s.
	wantFrames := int(math.Round(1.875*sr)) + sr/2
	if len(samples) != wantFrames*2 {
		t.Fatalf("samples = %d, want %d", len(samples), wantFrames*2)
	}
	var peak float32
	for _, s := range samples {
		if s > 1 || s < -1 {
			t.Fatalf("sample %v out of range", s)
		}
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	if peak < 0.01 {
		t.Fatalf("peak = %v, expected audible output", peak)
	}
}

func TestRenderPhraseIsDeterministic(t *testing.T) {
	events := DemoPhrase()[:2]
	a, err := RenderPhrase(patch.Init(), events, 16000, 0.1, WithSeed(7))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	b, err := RenderPhrase(patch.Init(), events, 16000, 0.1, WithSeed(7))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestRenderPhraseUsesMasterVolume(t *testing.T) {
	events := DemoPhrase()[:2]
	full, err := RenderPhrase(patch.Init(), events, 16000, 0.1, WithSeed(7))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	half, err := RenderPhrase(patch.Init(), events, 16000, 0.1, WithSeed(7), WithMasterVolume(0.4))
	if err != nil {
		t.Fatalf("render at 0.4: %v", err)
	}
	var peak float64
	for i := range full {
		if math.Abs(float64(full[i])) >= 0.99 {
			continue
		}
		if d := math.Abs(float64(half[i])*2 - float64(full[i])); d > 1e-6 {
			t.Fatalf("sample %d: %v at 0.4, %v at 0.8", i, half[i], full[i])
		}
		peak = math.Max(peak, math.Abs(float64(half[i])))
	}
	if peak == 0 {
		t.Fatal("render at 0.4 is silent")
	}
}

func TestRenderPhraseErrors(t *testing.T) {
	if _, err := RenderPhrase(nil, DemoPhrase(), 48000, 0); !errors.Is(err, ErrNoPatch) {
		t.Fatalf("nil patch error = %v", err)
	}
	bad := patch.Init()
	bad.Osc1.Wavetable = "supersaw"
	var uw *UnknownWavetableError
	if _, err := RenderPhrase(bad, DemoPhrase(), 48000, 0); !errors.As(err, &uw) {
		t.Fatalf("bad patch error = %v", err)
	}
	out, err := RenderPhrase(patch.Init(), []NoteEvent{{Note: 200, Velocity: 1, Duration: 0.01}}, 8000, 0)
	if !errors.Is(err, ErrNoteOutOfRange) {
		t.Fatalf("out of range error = %v", err)
	}
	if len(out) != 80*2 {
		t.Fatalf("partial render = %d samples", len(out))
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1}
	wav := EncodeWAVFloat32LE(samples, 48000, 2)
	if len(wav) != 44+16 {
		t.Fatalf("len = %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatal("bad chunk ids")
	}
	if format := binary.LittleEndian.Uint16(wav[20:]); format != 3 {
		t.Fatalf("format = %d, want IEEE float", format)
	}
	if rate := binary.LittleEndian.Uint32(wav[24:]); rate != 48000 {
		t.Fatalf("rate = %d", rate)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(wav[48:])); got != 0.5 {
		t.Fatalf("second sample = %v", got)
	}
}
