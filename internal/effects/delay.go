package effects

// Delay is a stereo delay line with a feedback loop around it. Its time and
// feedback may change every sample; reads interpolate between samples so a
// ramped delay time glides instead of clicking. Process returns only the
// delayed signal.
type Delay struct {
	bufL, bufR []float32
	pos        int
	sampleRate float64
	delay      float64 // in samples
	feedback   float32
}

// NewDelay creates a delay line able to hold maxSeconds of audio.
func NewDelay(sampleRate int, maxSeconds float64) *Delay {
	size := int(maxSeconds*float64(sampleRate)) + 2
	if size < 4 {
		size = 4
	}
	d := &Delay{
		bufL:       make([]float32, size),
		bufR:       make([]float32, size),
		sampleRate: float64(sampleRate),
	}
	d.delay = 1
	return d
}

// SetTime sets the delay time in seconds, limited to the buffer length.
func (d *Delay) SetTime(seconds float64) {
	s := seconds * d.sampleRate
	if s < 1 {
		s = 1
	}
	if limit := float64(len(d.bufL) - 2); s > limit {
		s = limit
	}
	d.delay = s
}

// SetFeedback sets the gain fed from the output back into the line.
// Values are limited to [0, 0.9].
func (d *Delay) SetFeedback(g float64) {
	d.feedback = clamp(float32(g), 0, 0.9)
}

// Time returns the delay time in seconds.
func (d *Delay) Time() float64 { return d.delay / d.sampleRate }

func (d *Delay) Process(l, r float32) (float32, float32) {
	n := len(d.bufL)
	rp := float64(d.pos) - d.delay
	if rp < 0 {
		rp += float64(n)
	}
	i := int(rp)
	frac := float32(rp - float64(i))
	j := i + 1
	if j >= n {
		j = 0
	}
	delL := d.bufL[i] + (d.bufL[j]-d.bufL[i])*frac
	delR := d.bufR[i] + (d.bufR[j]-d.bufR[i])*frac
	d.bufL[d.pos] = l + delL*d.feedback
	d.bufR[d.pos] = r + delR*d.feedback
	d.pos++
	if d.pos >= n {
		d.pos = 0
	}
	return delL, delR
}

func (d *Delay) Reset() {
	for i := range d.bufL {
		d.bufL[i] = 0
		d.bufR[i] = 0
	}
	d.pos = 0
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
