package noise

import "testing"

func TestBufferRangeAndLoop(t *testing.T) {
	g := NewGenerator(1000, 1)
	b := g.New(1)
	if b.Len() != 2000 {
		t.Fatalf("len = %d, want 2000", b.Len())
	}
	first := make([]float32, b.Len())
	for i := range first {
		first[i] = b.Next()
		if first[i] < -Amplitude || first[i] > Amplitude {
			t.Fatalf("sample %d = %v outside [-%v,%v]", i, first[i], Amplitude, Amplitude)
		}
	}
	for i := range first {
		if v := b.Next(); v != first[i] {
			t.Fatalf("loop sample %d = %v, want %v", i, v, first[i])
		}
	}
}

func TestLevelScales(t *testing.T) {
	g := NewGenerator(100, 7)
	b := g.New(0.5)
	if b.Level() != 0.5 {
		t.Fatalf("level = %v", b.Level())
	}
	raw := b.samples[0]
	if v := b.Next(); v != raw*0.5 {
		t.Fatalf("scaled sample = %v, want %v", v, raw*0.5)
	}
}

func TestFreshNoisePerBuffer(t *testing.T) {
	g := NewGenerator(100, 3)
	a := g.New(1)
	snapshot := append([]float32(nil), a.samples...)
	g.Release(a)
	b := g.New(1)
	same := true
	for i := range snapshot {
		if b.samples[i] != snapshot[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("each buffer should hold newly generated noise")
	}
	g.Release(nil)
}
