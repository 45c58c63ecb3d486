package patch

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestInitPatchLoads(t *testing.T) {
	p := Init()
	if p.Osc1.Wavetable != AnalogSaw {
		t.Fatalf("osc1 wavetable = %q, want %q", p.Osc1.Wavetable, AnalogSaw)
	}
	if p.Filter.CutoffHz != 2200 {
		t.Fatalf("cutoff = %v, want 2200", p.Filter.CutoffHz)
	}
	if !p.FX.Chorus.On || p.FX.Delay.On {
		t.Fatalf("unexpected fx flags: %+v", p.FX)
	}
	if p.ModEnv.Attack != 0.01 || p.ModEnv.Target != TargetFilterCutoff {
		t.Fatalf("mod envelope not decoded inline: %+v", p.ModEnv)
	}
	// Each call hands out an independent copy.
	q := Init()
	q.Filter.CutoffHz = 100
	if p.Filter.CutoffHz == 100 {
		t.Fatal("Init should return independent patches")
	}
}

func TestLoadFileJSON(t *testing.T) {
	p, err := LoadFile(filepath.Join("testdata", "pad.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Osc1.Wavetable != Metallic {
		t.Fatalf("osc1 wavetable = %q, want %q", p.Osc1.Wavetable, Metallic)
	}
	if p.AmpEnv.Release != 1.2 {
		t.Fatalf("release = %v, want 1.2", p.AmpEnv.Release)
	}
	if p.LFO1.Target != TargetOsc1Position {
		t.Fatalf("lfo target = %q", p.LFO1.Target)
	}
	if p.Macros != nil {
		t.Fatalf("macros should be absent, got %+v", p.Macros)
	}
}

func TestLoadRejectsUnknownWavetable(t *testing.T) {
	data, err := Marshal(Init())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	p, err := Load(data)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	p.Osc2.Wavetable = "supersaw"
	err = p.Validate()
	var uw *UnknownWavetableError
	if !errors.As(err, &uw) {
		t.Fatalf("expected UnknownWavetableError, got %v", err)
	}
	if uw.Slot != "osc2" || uw.ID != "supersaw" {
		t.Fatalf("unexpected error fields: %+v", uw)
	}
}

func TestWetAndDryLevels(t *testing.T) {
	fx := FX{
		Delay:  Delay{On: true, Mix: 0.2},
		Reverb: Reverb{On: true, Mix: 0.3},
		Chorus: Chorus{On: true, Mix: 0.1},
	}
	wet := fx.WetLevel()
	if math.Abs(wet-0.3) > 1e-12 {
		t.Fatalf("wet = %v, want 0.3", wet)
	}
	if dry := DryLevel(wet); math.Abs(dry-0.895) > 1e-12 {
		t.Fatalf("dry = %v, want 0.895", dry)
	}

	fx.Chorus.On = false
	if wet := fx.WetLevel(); math.Abs(wet-0.25) > 1e-12 {
		t.Fatalf("wet with chorus off = %v, want 0.25", wet)
	}

	loud := FX{Delay: Delay{On: true, Mix: 2}, Reverb: Reverb{On: true, Mix: 2}}
	if wet := loud.WetLevel(); wet != 1 {
		t.Fatalf("wet should clamp to 1, got %v", wet)
	}
	if dry := DryLevel(5); dry != 0.3 {
		t.Fatalf("dry should clamp to 0.3, got %v", dry)
	}
}

func TestDerivedValues(t *testing.T) {
	o := Osc{Fine: 5, Semitone: 7, Octave: -1}
	if got := o.DetuneCents(); got != 5+700-1200 {
		t.Fatalf("detune cents = %v", got)
	}
	if q := (Filter{Resonance: 1}).Q(); math.Abs(q-16.2) > 1e-12 {
		t.Fatalf("q = %v, want 16.2", q)
	}
	for _, tc := range []struct {
		release float64
		want    float64
	}{
		{0, 0.02},
		{1, 1},
		{10, 6},
	} {
		if got := (Envelope{Release: tc.release}).ReleaseSeconds(); got != tc.want {
			t.Errorf("release %v -> %v, want %v", tc.release, got, tc.want)
		}
	}
	if Clamp(math.NaN(), 0, 1) != 0 {
		t.Error("NaN should clamp to the lower bound")
	}
}
