package wavetable

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/cbegin/patchpal-go/patch"
)

func TestCacheReturnsSameWaveform(t *testing.T) {
	c := NewCache()
	a, err := c.Get(patch.AnalogSaw, 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, err := c.Get(patch.AnalogSaw, 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a != b {
		t.Fatal("repeat lookups should return the cached waveform")
	}
	if got := c.Builds(); got != 1 {
		t.Fatalf("builds = %d, want 1", got)
	}
}

func TestCacheConcurrentLookupsBuildOnce(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	results := make([]*Waveform, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := c.Get(patch.Metallic, 5)
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			results[i] = w
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatalf("lookup %d returned a different waveform", i)
		}
	}
	if got := c.Builds(); got != 1 {
		t.Fatalf("builds = %d, want 1", got)
	}
}

func TestCacheWarmAndClear(t *testing.T) {
	c := NewCache()
	c.Warm()
	want := len(patch.WavetableIDs) * Steps
	if got := c.Len(); got != want {
		t.Fatalf("len = %d, want %d", got, want)
	}
	c.Warm()
	if got := c.Builds(); got != int64(want) {
		t.Fatalf("second warm rebuilt entries: builds = %d, want %d", got, want)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatal("clear should drop all entries")
	}
}

func TestUnknownWavetable(t *testing.T) {
	c := NewCache()
	_, err := c.Get("supersaw", 0)
	var uw *patch.UnknownWavetableError
	if !errors.As(err, &uw) || uw.ID != "supersaw" {
		t.Fatalf("expected UnknownWavetableError, got %v", err)
	}
	if _, err := c.Get(patch.Organ, Steps); err == nil {
		t.Fatal("expected error for out-of-range step")
	}
}

func TestSquarePWMSpectrum(t *testing.T) {
	lo, err := Amplitudes(patch.SquarePWM, 0)
	if err != nil {
		t.Fatal(err)
	}
	hi, err := Amplitudes(patch.SquarePWM, 1)
	if err != nil {
		t.Fatal(err)
	}
	for n := 1; n < Harmonics; n++ {
		if n%2 == 0 {
			if lo[n] != 0 || hi[n] != 0 {
				t.Fatalf("even harmonic %d has energy: %v / %v", n, lo[n], hi[n])
			}
			continue
		}
		if math.Abs(hi[n]-lo[n]*0.45) > 1e-12 {
			t.Fatalf("harmonic %d: morph 1 = %v, want %v", n, hi[n], lo[n]*0.45)
		}
	}
}

func TestSpectraRules(t *testing.T) {
	cases := []struct {
		id    patch.WavetableID
		morph float64
		n     int
		want  float64
	}{
		{patch.AnalogSaw, 0.7, 4, 0.25},
		{patch.TriangleSine, 0, 3, 1.0 / 9},
		{patch.TriangleSine, 1, 1, 0},
		{patch.Organ, 0.5, 1, 1},
		{patch.Organ, 0.5, 2, 0.35},
		{patch.Organ, 0.5, 3, 0.28},
		{patch.Organ, 0.5, 6, 0.1},
		{patch.Organ, 0.5, 7, 0.04},
		{patch.HarmonicStack, 0, 4, 0.5},
		{patch.HarmonicStack, 0, 12, 0.01},
		{patch.BrightComplex, 0, 3, (1.0 / 3) * 0.6 * 1.2},
		{patch.BrightComplex, 1, 2, 0.5 * 1.4},
		{patch.Metallic, 0, 4, 0.8 * 0.5 * 0.4},
	}
	for _, tc := range cases {
		s, err := Amplitudes(tc.id, tc.morph)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(s[tc.n]-tc.want) > 1e-12 {
			t.Errorf("%s morph %v harmonic %d = %v, want %v", tc.id, tc.morph, tc.n, s[tc.n], tc.want)
		}
		if s[0] != 0 {
			t.Errorf("%s carries DC energy", tc.id)
		}
	}
}

func TestMorphSteps(t *testing.T) {
	cases := []struct {
		pos   float64
		a, b  int
		blend float64
	}{
		{0, 0, 1, 0},
		{1, 7, 7, 0},
		{0.5, 3, 4, 0.5},
		{-2, 0, 1, 0},
		{3, 7, 7, 0},
	}
	for _, tc := range cases {
		a, b, blend := MorphSteps(tc.pos)
		if a != tc.a || b != tc.b || math.Abs(blend-tc.blend) > 1e-12 {
			t.Errorf("MorphSteps(%v) = %d,%d,%v want %d,%d,%v", tc.pos, a, b, blend, tc.a, tc.b, tc.blend)
		}
	}
}

func TestWaveformIsNormalizedAndBandLimited(t *testing.T) {
	c := NewCache()
	w, err := c.Get(patch.AnalogSaw, 0)
	if err != nil {
		t.Fatal(err)
	}
	var peak float32
	for i := 0; i < TableSize; i++ {
		v := w.levels[0].Sample(float64(i) / TableSize)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if math.Abs(float64(peak)-1) > 1e-3 {
		t.Fatalf("peak = %v, want 1", peak)
	}
	// Sine phase: the cycle starts at zero.
	if v := w.levels[0].Sample(0); math.Abs(float64(v)) > 1e-6 {
		t.Fatalf("sample at phase 0 = %v, want 0", v)
	}

	lv := w.Level(1000, 48000)
	if lv == nil || lv.MaxHarmonic > 24 {
		t.Fatalf("1 kHz at 48 kHz should keep at most 24 harmonics, got %+v", lv)
	}
	if w.Level(100, 48000).MaxHarmonic != Harmonics-1 {
		t.Fatal("low notes should use the full table")
	}
	if w.Level(30000, 48000) != nil {
		t.Fatal("a fundamental above Nyquist should yield no table")
	}
}

func TestSilentSpectrumStaysSilent(t *testing.T) {
	w, err := NewCache().Get(patch.TriangleSine, Steps-1)
	if err != nil {
		t.Fatal(err)
	}
	if w.Scale != 0 {
		t.Fatalf("scale = %v, want 0 for an empty spectrum", w.Scale)
	}
	if v := w.levels[0].Sample(0.25); v != 0 {
		t.Fatalf("sample = %v, want 0", v)
	}
}
