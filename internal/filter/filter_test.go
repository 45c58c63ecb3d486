package filter

import (
	"math"
	"testing"

	"github.com/cbegin/patchpal-go/patch"
)

func sineEnergy(s *SVF, freq, sampleRate float64) float64 {
	s.Reset()
	var sum float64
	n := int(sampleRate / 4)
	for i := 0; i < n; i++ {
		y := s.Process(math.Sin(2*math.Pi*freq*float64(i)/sampleRate), 0)
		if i > n/2 {
			sum += y * y
		}
	}
	return sum
}

func TestModes(t *testing.T) {
	const sr = 48000.0
	var lp, hp, bp SVF
	lp.Set(Lowpass, sr, 1000, 0)
	hp.Set(Highpass, sr, 1000, 0)
	bp.Set(Bandpass, sr, 1000, 2)

	if low, high := sineEnergy(&lp, 100, sr), sineEnergy(&lp, 10000, sr); low < high*10 {
		t.Errorf("lowpass should favour lows: low=%f high=%f", low, high)
	}
	if low, high := sineEnergy(&hp, 100, sr), sineEnergy(&hp, 10000, sr); high < low*10 {
		t.Errorf("highpass should favour highs: low=%f high=%f", low, high)
	}
	center, off := sineEnergy(&bp, 1000, sr), sineEnergy(&bp, 10000, sr)
	if center < off*5 {
		t.Errorf("bandpass should favour its center: center=%f off=%f", center, off)
	}
}

func TestBandpassPeakIsUnity(t *testing.T) {
	const sr = 48000.0
	var bp SVF
	bp.Set(Bandpass, sr, 2000, 8)
	var in float64
	n := int(sr / 4)
	for i := n/2 + 1; i < n; i++ {
		x := math.Sin(2 * math.Pi * 2000 * float64(i) / sr)
		in += x * x
	}
	out := sineEnergy(&bp, 2000, sr)
	if ratio := out / in; math.Abs(ratio-1) > 0.1 {
		t.Fatalf("bandpass peak energy ratio = %f, want ~1", ratio)
	}
}

func TestCutoffClamp(t *testing.T) {
	if got := ClampCutoff(-50, 48000); got != 10 {
		t.Errorf("low clamp = %v", got)
	}
	if got := ClampCutoff(1e6, 48000); got != 48000*0.49 {
		t.Errorf("high clamp = %v", got)
	}
	var s SVF
	s.Set(Lowpass, 48000, 1e6, 16.2)
	for i := 0; i < 1000; i++ {
		if y := s.Process(1, 1); math.IsNaN(y) || math.IsInf(y, 0) {
			t.Fatalf("filter blew up at sample %d", i)
		}
	}
}

func TestModeOf(t *testing.T) {
	if ModeOf(patch.Bandpass) != Bandpass || ModeOf(patch.Highpass) != Highpass || ModeOf("comb") != Lowpass {
		t.Fatal("unexpected mode mapping")
	}
}

func TestDriveCurve(t *testing.T) {
	c := NewDriveCurve(0)
	if got := c.Apply(0); math.Abs(float64(got)) > 1e-3 {
		t.Errorf("curve(0) = %v, want ~0", got)
	}
	if got, want := c.Apply(1), float32(math.Tanh(1)); math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("curve(1) = %v, want %v", got, want)
	}
	if c.Apply(5) != c[CurveSize-1] || c.Apply(-5) != c[0] {
		t.Error("out-of-range inputs should clamp to curve ends")
	}

	hot := NewDriveCurve(1)
	if got := hot.Apply(0.5); got < 0.99 {
		t.Errorf("full drive should saturate: curve(0.5) = %v", got)
	}
	if d := hot.Apply(-0.5) + hot.Apply(0.5); math.Abs(float64(d)) > 1e-6 {
		t.Error("drive curve should be odd-symmetric")
	}
}
