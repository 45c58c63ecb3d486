package lfo

import (
	"math"

	"github.com/cbegin/patchpal-go/patch"
)

// Waveform constants. All shapes are sine-phase: they start at zero and
// rise during the first quarter cycle.
const (
	WaveSine     = 0
	WaveTriangle = 1
	WaveSaw      = 2
	WaveSquare   = 3
)

// WaveformOf maps a patch LFO shape onto a waveform constant. Unknown
// shapes fall back to sine.
func WaveformOf(shape patch.LFOShape) int {
	switch shape {
	case patch.ShapeTriangle:
		return WaveTriangle
	case patch.ShapeSaw:
		return WaveSaw
	case patch.ShapeSquare:
		return WaveSquare
	default:
		return WaveSine
	}
}

// LFO is a low-frequency oscillator that produces per-sample modulation.
// Each voice owns its own LFO so the phase restarts with every note.
type LFO struct {
	depth    float64 // modulation depth (units depend on context: Hz of cutoff, seconds of delay)
	rateHz   float64 // oscillation rate in Hz
	waveform int
	phase    float64 // current phase [0, 1)
}

// Set configures the LFO parameters.
func (l *LFO) Set(depth, rateHz float64, waveform int) {
	l.depth = depth
	l.rateHz = rateHz
	if waveform < WaveSine || waveform > WaveSquare {
		waveform = WaveSine
	}
	l.waveform = waveform
}

// Sample advances the LFO by one sample and returns a value in [-depth, +depth].
// Returns 0 if depth or rate is zero.
func (l *LFO) Sample(sampleRate float64) float64 {
	if l.depth == 0 || l.rateHz == 0 || sampleRate == 0 {
		return 0
	}

	var waveVal float64
	switch l.waveform {
	case WaveTriangle:
		switch {
		case l.phase < 0.25:
			waveVal = 4 * l.phase
		case l.phase < 0.75:
			waveVal = 2 - 4*l.phase
		default:
			waveVal = 4*l.phase - 4
		}
	case WaveSaw:
		if l.phase < 0.5 {
			waveVal = 2 * l.phase
		} else {
			waveVal = 2*l.phase - 2
		}
	case WaveSquare:
		if l.phase < 0.5 {
			waveVal = 1.0
		} else {
			waveVal = -1.0
		}
	default:
		waveVal = math.Sin(2 * math.Pi * l.phase)
	}

	l.phase += l.rateHz / sampleRate
	if l.phase >= 1.0 || l.phase < 0 {
		l.phase -= math.Floor(l.phase)
	}

	return waveVal * l.depth
}

// Active returns true if the LFO has non-zero depth and rate.
func (l *LFO) Active() bool {
	return l.depth != 0 && l.rateHz != 0
}

// Reset zeros the LFO phase.
func (l *LFO) Reset() {
	l.phase = 0
}
