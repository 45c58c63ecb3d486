// Package meter measures the loudness of the master output for UI polling.
package meter

import (
	"math"
	"sync/atomic"

	"github.com/viterin/vek/vek32"
)

// Window is the number of most recent frames the level is computed over.
const Window = 1024

// Meter keeps a ring of the last Window mono frames. Write belongs to the
// render side; Level may be called from any goroutine.
type Meter struct {
	ring    []float32
	scratch []float32
	pos     int
	level   atomic.Uint32
}

func New() *Meter {
	return &Meter{ring: make([]float32, Window), scratch: make([]float32, Window)}
}

// Write records a block of interleaved stereo frames, folded to mono, and
// refreshes the published level.
func (m *Meter) Write(interleaved []float32) {
	for i := 0; i+1 < len(interleaved); i += 2 {
		m.ring[m.pos] = (interleaved[i] + interleaved[i+1]) * 0.5
		m.pos++
		if m.pos == Window {
			m.pos = 0
		}
	}
	m.level.Store(math.Float32bits(rms(m.ring, m.scratch)))
}

// Level returns the RMS of the last Window frames.
func (m *Meter) Level() float64 {
	if m == nil {
		return 0
	}
	return float64(math.Float32frombits(m.level.Load()))
}

// Reset clears the history.
func (m *Meter) Reset() {
	for i := range m.ring {
		m.ring[i] = 0
	}
	m.pos = 0
	m.level.Store(0)
}

// rms returns sqrt(mean(x²)) of x clipped to [-1,1], using scratch as
// working space.
func rms(x, scratch []float32) float32 {
	if len(x) == 0 {
		return 0
	}
	c := scratch[:len(x)]
	for i, v := range x {
		switch {
		case v != v:
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		c[i] = v
	}
	sum := vek32.Dot(c, c)
	return float32(math.Sqrt(float64(sum) / float64(len(x))))
}
