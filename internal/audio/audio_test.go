package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

type rampSource struct{ n float32 }

func (s *rampSource) Process(dst []float32) {
	for i := range dst {
		dst[i] = s.n
		s.n++
	}
}

func TestStreamReaderEncodesFloat32LE(t *testing.T) {
	r := NewStreamReader(&rampSource{})
	p := make([]byte, 8*3+5)
	n, err := r.Read(p)
	if err != nil {
		t.Fatal(err)
	}
	if n != 24 {
		t.Fatalf("n = %d, want 24 (whole frames only)", n)
	}
	for i := 0; i < 6; i++ {
		got := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		if got != float32(i) {
			t.Fatalf("sample %d = %v, want %d", i, got, i)
		}
	}
	if n, _ := r.Read(make([]byte, 7)); n != 0 {
		t.Fatalf("short read returned %d bytes", n)
	}
}

func TestStreamReaderSilentAfterClose(t *testing.T) {
	src := &rampSource{n: 1}
	r := NewStreamReader(src)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	p := make([]byte, 16)
	if _, err := r.Read(p); err != nil {
		t.Fatal(err)
	}
	for i, b := range p {
		if b != 0 {
			t.Fatalf("byte %d = %d after close", i, b)
		}
	}
	if src.n != 1 {
		t.Fatal("closed reader pulled from its source")
	}
}

func TestOpenWrapsFailures(t *testing.T) {
	_, err := Open("cassette", 48000, &rampSource{})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
	Register("broken", func(int, SampleSource) (Output, error) {
		return nil, errors.New("no such card")
	})
	_, err = Open("broken", 48000, &rampSource{})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
	_, err = Open(Null, 0, &rampSource{})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable for a zero rate", err)
	}
}

func TestNullBackend(t *testing.T) {
	out, err := Open(Null, 48000, &rampSource{})
	if err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, name := range Backends() {
		if name == Null {
			found = true
		}
	}
	if !found {
		t.Fatal("null backend not registered")
	}
}
