package effects

import (
	"math"
	"sync/atomic"
)

// EQBands is the number of bands of the master equalizer.
const EQBands = 5

// MaxEQGain limits a band gain (about +12 dB).
const MaxEQGain = 4

// EQ5Band implements a 5-band equalizer with runtime-adjustable gains.
// Bands are split at 200Hz, 800Hz, 2.5kHz, and 8kHz.
// Gains are stored as uint32 (bit-cast float32) so the control side can set
// them while the render side reads without locking.
type EQ5Band struct {
	gains  [EQBands]atomic.Uint32 // float32 bit patterns; 1.0 = unity
	alphas [EQBands - 1]float32   // crossover filter coefficients
	lpL    [EQBands - 1]float32   // lowpass state per crossover, left
	lpR    [EQBands - 1]float32   // lowpass state per crossover, right
}

// EQCrossovers are the band edges in Hz.
var EQCrossovers = [EQBands - 1]float64{200, 800, 2500, 8000}

// NewEQ5Band creates a 5-band EQ with all gains at unity.
func NewEQ5Band(sampleRate int) *EQ5Band {
	eq := &EQ5Band{}
	dt := 1.0 / float64(sampleRate)
	for i, freq := range EQCrossovers {
		rc := 1.0 / (2.0 * math.Pi * freq)
		eq.alphas[i] = float32(dt / (rc + dt))
	}
	for i := range eq.gains {
		eq.gains[i].Store(math.Float32bits(1.0))
	}
	return eq
}

// SetGain sets the linear gain for band (0-4), clamped to [0, MaxEQGain].
// It reports whether band exists.
func (eq *EQ5Band) SetGain(band int, gain float32) bool {
	if band < 0 || band >= EQBands {
		return false
	}
	if gain != gain {
		gain = 1
	}
	eq.gains[band].Store(math.Float32bits(clamp(gain, 0, MaxEQGain)))
	return true
}

// Gain returns the current gain for band (0-4).
func (eq *EQ5Band) Gain(band int) float32 {
	if band >= 0 && band < EQBands {
		return math.Float32frombits(eq.gains[band].Load())
	}
	return 1.0
}

// Flat reports whether every band is at unity, letting callers bypass the EQ.
func (eq *EQ5Band) Flat() bool {
	for i := range eq.gains {
		if math.Float32frombits(eq.gains[i].Load()) != 1 {
			return false
		}
	}
	return true
}

func (eq *EQ5Band) Process(l, r float32) (float32, float32) {
	// Split into bands with cascaded one-pole crossovers; the last band is
	// whatever remains above the top crossover.
	var bandL, bandR [EQBands]float32
	remL, remR := l, r
	for i := 0; i < EQBands-1; i++ {
		eq.lpL[i] += eq.alphas[i] * (remL - eq.lpL[i])
		eq.lpR[i] += eq.alphas[i] * (remR - eq.lpR[i])
		bandL[i] = eq.lpL[i]
		bandR[i] = eq.lpR[i]
		remL -= bandL[i]
		remR -= bandR[i]
	}
	bandL[EQBands-1] = remL
	bandR[EQBands-1] = remR

	var outL, outR float32
	for i := 0; i < EQBands; i++ {
		g := math.Float32frombits(eq.gains[i].Load())
		outL += bandL[i] * g
		outR += bandR[i] * g
	}
	return outL, outR
}

func (eq *EQ5Band) Reset() {
	for i := range eq.lpL {
		eq.lpL[i] = 0
		eq.lpR[i] = 0
	}
}
