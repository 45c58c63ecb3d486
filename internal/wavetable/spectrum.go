package wavetable

import (
	"math"

	"github.com/cbegin/patchpal-go/patch"
)

const (
	// Steps is the number of discrete morph positions per wavetable.
	Steps = 8
	// Harmonics is the length of a spectrum. Index 0 is the DC slot and is
	// always empty; all energy sits in sine-phase partials 1..Harmonics-1.
	Harmonics = 32
)

// Spectrum holds sine-phase harmonic amplitudes indexed by harmonic number.
type Spectrum [Harmonics]float64

// MorphOf maps a morph step onto [0,1].
func MorphOf(step int) float64 {
	return float64(step) / float64(Steps-1)
}

// MorphSteps splits a continuous position into the two adjacent table steps
// and the crossfade between them. position is clamped to [0,1].
func MorphSteps(position float64) (a, b int, blend float64) {
	x := patch.Clamp(position, 0, 1) * float64(Steps-1)
	a = int(math.Floor(x))
	b = a + 1
	if b > Steps-1 {
		b = Steps - 1
	}
	return a, b, x - float64(a)
}

// Amplitudes computes the harmonic spectrum of id at the given morph in [0,1].
func Amplitudes(id patch.WavetableID, morph float64) (Spectrum, error) {
	var s Spectrum
	if !id.Known() {
		return s, &patch.UnknownWavetableError{ID: id}
	}
	for n := 1; n < Harmonics; n++ {
		s[n] = amplitude(id, n, morph)
	}
	return s, nil
}

func amplitude(id patch.WavetableID, n int, morph float64) float64 {
	fn := float64(n)
	odd := n%2 == 1
	switch id {
	case patch.AnalogSaw:
		return 1 / fn
	case patch.SquarePWM:
		if !odd {
			return 0
		}
		return (1 / fn) * (1 - morph*0.55)
	case patch.TriangleSine:
		if !odd {
			return 0
		}
		return (1 / (fn * fn)) * (1 - morph)
	case patch.Organ:
		switch {
		case n == 1:
			return 1
		case n == 2:
			return 0.35
		case n == 3:
			return 0.28
		case !odd:
			return 0.1
		default:
			return 0.04
		}
	case patch.HarmonicStack:
		if n <= 8 {
			return 1 / math.Sqrt(fn)
		}
		return 0.12 / fn
	case patch.BrightComplex:
		a := (1 / fn) * (0.6 + morph*0.8)
		if n%3 == 0 {
			a *= 1.2
		}
		return a
	case patch.Metallic:
		a := 0.35
		if !odd {
			a = 0.8
		}
		return a * (1 / math.Sqrt(fn)) * (0.4 + morph*0.8)
	}
	return 0
}
