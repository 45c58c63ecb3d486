// Package unison lays out and renders detuned, panned stacks of morphing
// wavetable oscillators.
package unison

import (
	"math"

	"github.com/cbegin/patchpal-go/internal/wavetable"
	"github.com/cbegin/patchpal-go/patch"
)

// MaxVoices caps the unison count of one oscillator slot.
const MaxVoices = 16

// detuneSpanCents is the spread between the outermost voices at detune 1.
const detuneSpanCents = 52

// Member is the placement of one unison voice within a stack.
type Member struct {
	Spread      float64 // position in [-0.5, 0.5]
	DetuneCents float64 // total pitch offset including the slot's octave/semitone/fine
	Pan         float64
	Gain        float64
}

// Count clamps a requested unison voice count.
func Count(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxVoices {
		return MaxVoices
	}
	return n
}

// Spread maps unison index i of n onto [-0.5, 0.5]. A single voice sits at 0.
func Spread(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(i)/float64(n-1) - 0.5
}

// Layout computes member i of the stack described by osc.
func Layout(osc patch.Osc, i, n int, mixLevel, velocity float64) Member {
	s := Spread(i, n)
	return Member{
		Spread:      s,
		DetuneCents: osc.DetuneCents() + s*osc.Detune*detuneSpanCents,
		Pan:         s * osc.StereoSpread,
		Gain:        osc.Level * mixLevel * velocity / math.Max(1, float64(n)),
	}
}

// PanGains returns the equal-power left/right gains for a mono source at pan.
func PanGains(pan float64) (l, r float64) {
	pan = patch.Clamp(pan, -1, 1)
	x := (pan + 1) / 2
	return math.Cos(x * math.Pi / 2), math.Sin(x * math.Pi / 2)
}

// Frequency applies a cents offset to a base frequency.
func Frequency(base, cents float64) float64 {
	return base * math.Pow(2, cents/1200)
}

type oscillator struct {
	phase  float64
	inc    float64
	ta, tb *wavetable.Table
	gl, gr float32
}

// Stack renders one oscillator slot. The two waveforms of the morph pair
// share a phase so their crossfade never comb-filters. A Stack is a value
// with fixed storage and does not allocate once built.
type Stack struct {
	blend float32
	n     int
	oscs  [MaxVoices]oscillator
}

// Build prepares the stack for a note. a and b are the adjacent morph
// waveforms and blend the crossfade between them.
func (s *Stack) Build(osc patch.Osc, a, b *wavetable.Waveform, blend, baseFreq, mixLevel, velocity, sampleRate float64) {
	n := Count(osc.UnisonVoices)
	s.n = n
	s.blend = float32(blend)
	for i := 0; i < n; i++ {
		m := Layout(osc, i, n, mixLevel, velocity)
		freq := Frequency(baseFreq, m.DetuneCents)
		l, r := PanGains(m.Pan)
		o := &s.oscs[i]
		o.phase = 0
		o.inc = freq / sampleRate
		o.ta = a.Level(freq, sampleRate)
		o.tb = b.Level(freq, sampleRate)
		o.gl = float32(m.Gain * l)
		o.gr = float32(m.Gain * r)
	}
}

// Len is the number of live unison voices.
func (s *Stack) Len() int { return s.n }

// Next renders one stereo frame and advances every oscillator.
func (s *Stack) Next() (l, r float32) {
	for i := 0; i < s.n; i++ {
		o := &s.oscs[i]
		var v float32
		if o.ta != nil {
			v = o.ta.Sample(o.phase) * (1 - s.blend)
		}
		if o.tb != nil && s.blend != 0 {
			v += o.tb.Sample(o.phase) * s.blend
		}
		l += v * o.gl
		r += v * o.gr
		o.phase += o.inc
		if o.phase >= 1 {
			o.phase -= math.Floor(o.phase)
		}
	}
	return l, r
}

// Stop silences the stack as a unit.
func (s *Stack) Stop() {
	s.n = 0
}
