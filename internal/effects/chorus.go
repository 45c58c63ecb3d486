package effects

import "math"

// Chorus is a short delay whose time is swept by a sine LFO. Process
// returns only the modulated copy; the caller mixes it with the dry path.
type Chorus struct {
	bufL, bufR []float32
	pos        int
	size       int
	base       float64 // centre delay in samples
	depth      float64 // modulation depth in samples
	rate       float64 // modulation rate in radians per sample
	phase      float64
}

// NewChorus creates a chorus.
// delayMs: centre delay time in ms
// depthMs: modulation depth in ms either side of the centre
// rateHz: modulation rate in Hz
func NewChorus(sampleRate int, delayMs, depthMs, rateHz float64) *Chorus {
	base := delayMs * float64(sampleRate) / 1000.0
	depth := depthMs * float64(sampleRate) / 1000.0
	if depth > base-1 {
		depth = math.Max(0, base-1)
	}
	size := int(base+depth) + 3
	if size < 4 {
		size = 4
	}
	return &Chorus{
		bufL:  make([]float32, size),
		bufR:  make([]float32, size),
		size:  size,
		base:  base,
		depth: depth,
		rate:  2.0 * math.Pi * rateHz / float64(sampleRate),
	}
}

// Delay returns the current delay time in samples.
func (c *Chorus) Delay() float64 {
	return c.base + math.Sin(c.phase)*c.depth
}

func (c *Chorus) Process(l, r float32) (float32, float32) {
	delay := c.Delay()
	c.phase += c.rate
	if c.phase > 2*math.Pi {
		c.phase -= 2 * math.Pi
	}
	c.bufL[c.pos] = l
	c.bufR[c.pos] = r

	// Read with fractional delay
	readPos := float64(c.pos) - delay
	for readPos < 0 {
		readPos += float64(c.size)
	}
	idx := int(readPos)
	frac := float32(readPos - float64(idx))
	idx2 := idx + 1
	if idx2 >= c.size {
		idx2 = 0
	}
	delL := c.bufL[idx]*(1-frac) + c.bufL[idx2]*frac
	delR := c.bufR[idx]*(1-frac) + c.bufR[idx2]*frac

	c.pos++
	if c.pos >= c.size {
		c.pos = 0
	}
	return delL, delR
}

func (c *Chorus) Reset() {
	for i := range c.bufL {
		c.bufL[i] = 0
		c.bufR[i] = 0
	}
	c.pos = 0
	c.phase = 0
}
