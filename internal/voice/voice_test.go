package voice

import (
	"errors"
	"math"
	"testing"

	"github.com/cbegin/patchpal-go/internal/noise"
	"github.com/cbegin/patchpal-go/internal/wavetable"
	"github.com/cbegin/patchpal-go/patch"
)

const testRate = 1000

func testPatch() *patch.Patch {
	p := patch.Init()
	p.AmpEnv = patch.Envelope{Attack: 0.01, Decay: 0.02, Sustain: 0.5, Release: 1.0}
	return p
}

func prepare(t *testing.T, p *patch.Patch, id uint64, note int, vel float64) *Spec {
	t.Helper()
	s, err := Prepare(p, id, note, vel, wavetable.NewCache(), nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return s
}

func render(m *Manager, now *int64, n int) {
	l := make([]float32, n)
	r := make([]float32, n)
	m.Render(l, r, *now, n)
	*now += int64(n)
}

func TestPrepareUnknownWavetable(t *testing.T) {
	p := patch.Init()
	p.Osc2.Wavetable = "fm_bell"
	_, err := Prepare(p, 1, 60, 1, wavetable.NewCache(), nil)
	var uw *patch.UnknownWavetableError
	if !errors.As(err, &uw) {
		t.Fatalf("err = %v, want UnknownWavetableError", err)
	}
	if uw.Slot != "osc2" || uw.ID != "fm_bell" {
		t.Fatalf("got slot %q id %q", uw.Slot, uw.ID)
	}
}

func TestPrepareNoiseThreshold(t *testing.T) {
	gen := noise.NewGenerator(testRate, 1)
	p := patch.Init()
	p.Mixer.NoiseLevel = 0.001
	s, err := Prepare(p, 1, 60, 1, wavetable.NewCache(), gen)
	if err != nil {
		t.Fatal(err)
	}
	if s.Noise != nil {
		t.Fatal("noise attached at threshold level")
	}
	p.Mixer.NoiseLevel = 0.5
	s, err = Prepare(p, 1, 60, 0.5, wavetable.NewCache(), gen)
	if err != nil {
		t.Fatal(err)
	}
	if s.Noise == nil || s.Noise.Level() != 0.25 {
		t.Fatalf("noise = %+v, want level 0.25", s.Noise)
	}
}

func TestMIDIToFreq(t *testing.T) {
	if f := MIDIToFreq(69); f != 440 {
		t.Fatalf("A4 = %v", f)
	}
	if f := MIDIToFreq(57); math.Abs(f-220) > 1e-9 {
		t.Fatalf("A3 = %v", f)
	}
}

func TestEnvelopeStages(t *testing.T) {
	m := NewManager(testRate, 4, StealOldest, nil)
	var now int64
	m.Start(prepare(t, testPatch(), 1, 60, 0.9), now)
	v, ok := m.Voice(1)
	if !ok {
		t.Fatal("voice not started")
	}
	if v.State() != Attacking {
		t.Fatalf("state = %v, want attacking", v.State())
	}

	render(m, &now, 5)
	if v.State() != Attacking {
		t.Fatalf("state at 5ms = %v, want attacking", v.State())
	}
	render(m, &now, 6)
	if math.Abs(v.Amplitude()-0.9) > 1e-9 {
		t.Fatalf("amplitude after attack = %v, want 0.9", v.Amplitude())
	}
	if v.State() != Decaying {
		t.Fatalf("state after attack = %v, want decaying", v.State())
	}

	render(m, &now, 30)
	if v.State() != Sustaining {
		t.Fatalf("state = %v, want sustaining", v.State())
	}
	if math.Abs(v.Amplitude()-0.45) > 1e-9 {
		t.Fatalf("sustain amplitude = %v, want 0.45", v.Amplitude())
	}
}

func TestReleaseTailDeadline(t *testing.T) {
	m := NewManager(testRate, 4, StealOldest, nil)
	var now int64
	m.Start(prepare(t, testPatch(), 7, 60, 0.9), now)
	render(m, &now, 100)

	releaseAt := now
	if !m.Release(7, now, 1.0) {
		t.Fatal("release refused")
	}
	if m.Release(7, now, 1.0) {
		t.Fatal("second release accepted")
	}
	v, _ := m.Voice(7)
	if v.State() != Releasing {
		t.Fatalf("state = %v, want releasing", v.State())
	}
	if want := releaseAt + 1080; v.Deadline() != want {
		t.Fatalf("deadline = %d, want %d", v.Deadline(), want)
	}

	render(m, &now, 1079)
	if !m.Sounding(7) {
		t.Fatal("voice torn down before release + 0.08s")
	}
	if v.State() != Releasing {
		t.Fatalf("state = %v, want releasing", v.State())
	}
	if v.Amplitude() > 0.9*math.Exp(-2.9) {
		t.Fatalf("amplitude %v did not decay", v.Amplitude())
	}
	render(m, &now, 1)
	if m.Sounding(7) {
		t.Fatal("voice still sounding after its tail")
	}
	if v.State() != Finished {
		t.Fatalf("state = %v, want finished", v.State())
	}
	if m.Live() != 0 {
		t.Fatalf("live = %d, want 0", m.Live())
	}
}

func TestReleaseClampsTime(t *testing.T) {
	m := NewManager(testRate, 1, StealOldest, nil)
	m.Start(prepare(t, testPatch(), 1, 60, 1), 0)
	m.Release(1, 0, 0)
	v, _ := m.Voice(1)
	if want := int64(100); v.Deadline() != want {
		t.Fatalf("deadline = %d, want %d for the 0.02s minimum", v.Deadline(), want)
	}
}

func TestRenderProducesSound(t *testing.T) {
	m := NewManager(48000, 4, StealOldest, nil)
	s, err := Prepare(patch.Init(), 1, 60, 0.9, wavetable.NewCache(), noise.NewGenerator(48000, 1))
	if err != nil {
		t.Fatal(err)
	}
	m.Start(s, 0)
	l := make([]float32, 4800)
	r := make([]float32, 4800)
	m.Render(l, r, 0, len(l))
	var peak float32
	for i := range l {
		if a := float32(math.Abs(float64(l[i]))); a > peak {
			peak = a
		}
		if math.IsNaN(float64(l[i])) || math.IsNaN(float64(r[i])) {
			t.Fatalf("NaN at frame %d", i)
		}
	}
	if peak == 0 {
		t.Fatal("voice rendered silence")
	}
	if peak > 1 {
		t.Fatalf("drive output %v exceeds the curve range", peak)
	}
}

func TestStealOldestPrefersReleasing(t *testing.T) {
	m := NewManager(testRate, 2, StealOldest, nil)
	var now int64
	m.Start(prepare(t, testPatch(), 1, 60, 1), now)
	render(m, &now, 10)
	m.Start(prepare(t, testPatch(), 2, 62, 1), now)
	render(m, &now, 10)

	if stolen := m.Start(prepare(t, testPatch(), 3, 64, 1), now); !stolen {
		t.Fatal("expected a steal")
	}
	if m.Sounding(1) || !m.Sounding(2) || !m.Sounding(3) {
		t.Fatal("oldest voice should have been stolen")
	}

	m.Release(3, now, 1)
	m.Start(prepare(t, testPatch(), 4, 65, 1), now)
	if m.Sounding(3) || !m.Sounding(2) {
		t.Fatal("releasing voice should be stolen before held ones")
	}
	if m.Steals() != 2 {
		t.Fatalf("steals = %d, want 2", m.Steals())
	}
	if m.Live() != 2 {
		t.Fatalf("live = %d, want 2", m.Live())
	}
}

func TestStealQuietest(t *testing.T) {
	m := NewManager(testRate, 2, StealQuietest, nil)
	var now int64
	m.Start(prepare(t, testPatch(), 1, 60, 0.9), now)
	m.Start(prepare(t, testPatch(), 2, 62, 0.1), now)
	render(m, &now, 20)
	m.Start(prepare(t, testPatch(), 3, 64, 0.5), now)
	if m.Sounding(2) || !m.Sounding(1) {
		t.Fatal("quietest voice should have been stolen")
	}
}

func TestSnapshotAndReset(t *testing.T) {
	m := NewManager(testRate, 4, StealOldest, nil)
	m.Start(prepare(t, testPatch(), 5, 60, 1), 0)
	m.Start(prepare(t, testPatch(), 6, 67, 1), 10)
	got := m.Snapshot(nil)
	if len(got) != 2 {
		t.Fatalf("snapshot len = %d, want 2", len(got))
	}
	for _, s := range got {
		if s.State != Attacking {
			t.Fatalf("status %+v, want attacking", s)
		}
		if want := int64(10 * (s.ID - 5)); s.Started != want {
			t.Fatalf("voice %d started at %d, want %d", s.ID, s.Started, want)
		}
	}
	m.Reset()
	if len(m.Snapshot(nil)) != 0 || m.Live() != 0 {
		t.Fatal("reset left voices behind")
	}
}

func TestParseStealPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    StealPolicy
		wantErr bool
	}{
		{"", StealOldest, false},
		{"oldest", StealOldest, false},
		{"Quietest", StealQuietest, false},
		{"newest", StealOldest, true},
	}
	for _, tt := range tests {
		got, err := ParseStealPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseStealPolicy(%q) = %v, %v", tt.in, got, err)
		}
	}
	if StealQuietest.String() != "quietest" {
		t.Errorf("String() = %q", StealQuietest.String())
	}
}

func TestIndex(t *testing.T) {
	x := NewIndex()
	if _, ok := x.Attach(60, 1); ok {
		t.Fatal("fresh note reported a previous voice")
	}
	prev, ok := x.Attach(60, 2)
	if !ok || prev != 1 {
		t.Fatalf("Attach = %d, %v, want 1, true", prev, ok)
	}
	x.Attach(48, 3)
	if n := x.Notes(); len(n) != 2 || n[0] != 48 || n[1] != 60 {
		t.Fatalf("notes = %v", n)
	}
	if id, ok := x.Detach(60); !ok || id != 2 {
		t.Fatalf("Detach = %d, %v", id, ok)
	}
	if _, ok := x.Detach(60); ok {
		t.Fatal("double detach succeeded")
	}
	if x.Len() != 1 {
		t.Fatalf("len = %d, want 1", x.Len())
	}
	x.Clear()
	if x.Len() != 0 {
		t.Fatalf("len after clear = %d", x.Len())
	}
}

func renderWithLFO(t *testing.T, l patch.LFO) []float32 {
	t.Helper()
	p := patch.Init()
	p.Filter.Type = patch.Lowpass
	p.Filter.CutoffHz = 800
	p.LFO1 = l
	m := NewManager(48000, 1, StealOldest, nil)
	m.Start(prepare(t, p, 1, 48, 0.9), 0)
	out := make([]float32, 9600)
	r := make([]float32, len(out))
	m.Render(out, r, 0, len(out))
	return out
}

func TestLFOModulatesCutoff(t *testing.T) {
	dry := renderWithLFO(t, patch.LFO{Shape: patch.ShapeSine, RateHz: 2, Amount: 0.5})

	tests := []struct {
		name    string
		lfo     patch.LFO
		changes bool
	}{
		{"cutoff target", patch.LFO{Shape: patch.ShapeSine, RateHz: 2, Amount: 0.5, Target: patch.TargetFilterCutoff}, true},
		{"amount at threshold", patch.LFO{Shape: patch.ShapeSine, RateHz: 2, Amount: 0.001, Target: patch.TargetFilterCutoff}, false},
		{"other target", patch.LFO{Shape: patch.ShapeSine, RateHz: 2, Amount: 0.5, Target: patch.TargetOsc1Position}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderWithLFO(t, tt.lfo)
			var diff float64
			for i := range got {
				diff = math.Max(diff, math.Abs(float64(got[i]-dry[i])))
			}
			if tt.changes && diff < 1e-3 {
				t.Fatalf("max difference from unmodulated render = %v, want audible change", diff)
			}
			if !tt.changes && diff != 0 {
				t.Fatalf("max difference from unmodulated render = %v, want identical", diff)
			}
		})
	}
}
