// Package filter provides the per-voice tone stage: a resonant
// state-variable filter and a saturating drive curve.
package filter

import (
	"math"

	"github.com/cbegin/patchpal-go/patch"
)

// Mode selects the SVF output.
type Mode int

const (
	Lowpass Mode = iota
	Bandpass
	Highpass
)

// ModeOf maps a patch filter type onto a Mode. Unknown types render as
// lowpass.
func ModeOf(t patch.FilterType) Mode {
	switch t {
	case patch.Bandpass:
		return Bandpass
	case patch.Highpass:
		return Highpass
	default:
		return Lowpass
	}
}

// SVF is a stereo zero-delay-feedback state variable filter. Its
// coefficients may change every sample without blowing up, which the
// cutoff LFO relies on.
type SVF struct {
	mode Mode
	g    float64 // frequency coefficient
	k    float64 // damping coefficient (1/Q)
	norm float64 // bandpass output gain

	ic1eq [2]float64
	ic2eq [2]float64
}

// Set configures mode, cutoff and Q. For lowpass and highpass q is a
// resonance in dB; for bandpass it is the linear quality factor.
func (s *SVF) Set(mode Mode, sampleRate, cutoffHz, q float64) {
	s.mode = mode
	linearQ := q
	if mode != Bandpass {
		linearQ = math.Pow(10, q/20)
	}
	if linearQ < 1e-4 {
		linearQ = 1e-4
	}
	s.k = 1 / linearQ
	s.norm = 1
	if mode == Bandpass {
		s.norm = s.k
	}
	s.SetCutoff(sampleRate, cutoffHz)
}

// SetCutoff retunes the filter, keeping mode and Q.
func (s *SVF) SetCutoff(sampleRate, cutoffHz float64) {
	s.g = math.Tan(math.Pi * ClampCutoff(cutoffHz, sampleRate) / sampleRate)
}

// ClampCutoff keeps a cutoff inside the range the filter stays stable in.
func ClampCutoff(cutoffHz, sampleRate float64) float64 {
	return patch.Clamp(cutoffHz, 10, sampleRate*0.49)
}

// Reset clears the filter state.
func (s *SVF) Reset() {
	s.ic1eq = [2]float64{}
	s.ic2eq = [2]float64{}
}

// Process filters one sample of the given channel (0 = left, 1 = right).
func (s *SVF) Process(in float64, ch int) float64 {
	g, k := s.g, s.k
	a1 := 1 / (1 + g*(g+k))
	a2 := g * a1
	a3 := g * a2

	ic1eq := s.ic1eq[ch]
	ic2eq := s.ic2eq[ch]
	v3 := in - ic2eq
	v1 := a1*ic1eq + a2*v3
	v2 := ic2eq + a2*ic1eq + a3*v3
	s.ic1eq[ch] = 2*v1 - ic1eq
	s.ic2eq[ch] = 2*v2 - ic2eq

	switch s.mode {
	case Bandpass:
		return v1 * s.norm
	case Highpass:
		return in - k*v1 - v2
	default:
		return v2
	}
}
