package meter

import (
	"math"
	"testing"
)

func TestNilMeterIsSilent(t *testing.T) {
	var m *Meter
	if m.Level() != 0 {
		t.Fatal("nil meter should read 0")
	}
}

func TestLevelOfConstant(t *testing.T) {
	m := New()
	block := make([]float32, 2*Window)
	for i := range block {
		block[i] = 0.5
	}
	m.Write(block)
	if got := m.Level(); math.Abs(got-0.5) > 1e-6 {
		t.Fatalf("level = %v, want 0.5", got)
	}
	m.Reset()
	if m.Level() != 0 {
		t.Fatalf("level after reset = %v", m.Level())
	}
}

func TestLevelOfSine(t *testing.T) {
	m := New()
	block := make([]float32, 2*256)
	for k := 0; k < 4; k++ {
		for i := 0; i < 256; i++ {
			v := float32(math.Sin(2 * math.Pi * float64(k*256+i) / 64))
			block[2*i] = v
			block[2*i+1] = v
		}
		m.Write(block)
	}
	if got := m.Level(); math.Abs(got-math.Sqrt(0.5)) > 1e-3 {
		t.Fatalf("sine level = %v, want %v", got, math.Sqrt(0.5))
	}
}

func TestLevelWindowForgets(t *testing.T) {
	m := New()
	loud := make([]float32, 2*Window)
	for i := range loud {
		loud[i] = 1
	}
	m.Write(loud)
	m.Write(make([]float32, 2*Window))
	if m.Level() != 0 {
		t.Fatalf("level = %v, want 0 once the window has passed", m.Level())
	}
}

func TestRMSClipsOverload(t *testing.T) {
	x := []float32{4, -4, 4, -4}
	if got := rms(x, make([]float32, len(x))); got != 1 {
		t.Fatalf("rms = %v, want 1 for clipped samples", got)
	}
	if rms(nil, nil) != 0 {
		t.Fatal("RMS of nothing should be 0")
	}
}
