package effects

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/ktye/fft"
)

// ConvolverBlock is the partition length of the reverb convolution. The
// convolver delays its output by one block.
const ConvolverBlock = 1024

// Impulse response normalization constants. They match the loudness a
// browser ConvolverNode gives the same impulse.
const (
	irGainCalibration = 0.00125893 // -58 dB
	irCalibrationRate = 44100
	irMinPower        = 0.000125
)

// Convolver is a stereo convolution reverb using uniformly partitioned
// overlap-save FFT convolution. Each input channel is convolved with the
// matching impulse response channel.
type Convolver struct {
	block  int
	parts  int
	fft    fft.FFT
	scale  float64 // corrects the FFT round-trip gain
	gain   float32 // impulse normalization
	filter [2][][]complex128
	fdl    [2][][]complex128
	fdlPos int

	prev [2][]float64
	in   [2][]float32
	out  [2][]float32
	pos  int
	work []complex128
	acc  []complex128
}

// RoomImpulse synthesizes a decaying stereo noise impulse: uniform noise
// shaped by (1 - i/len)^2.
func RoomImpulse(sampleRate int, seconds float64, rng *rand.Rand) [2][]float32 {
	n := int(math.Floor(float64(sampleRate) * seconds))
	var ir [2][]float32
	for ch := range ir {
		data := make([]float32, n)
		for i := range data {
			t := 1 - float64(i)/float64(n)
			data[i] = float32((rng.Float64()*2 - 1) * t * t)
		}
		ir[ch] = data
	}
	return ir
}

// ImpulseGain returns the normalization gain applied to ir when rendered
// at sampleRate.
func ImpulseGain(ir [2][]float32, sampleRate int) float64 {
	var sum float64
	var n int
	for _, ch := range ir {
		for _, v := range ch {
			sum += float64(v) * float64(v)
		}
		n += len(ch)
	}
	power := irMinPower
	if n > 0 {
		if p := math.Sqrt(sum / float64(n)); p > irMinPower && !math.IsInf(p, 0) {
			power = p
		}
	}
	return 1 / power * irGainCalibration * irCalibrationRate / float64(sampleRate)
}

// NewConvolver creates a normalized convolver for ir at sampleRate.
func NewConvolver(sampleRate int, ir [2][]float32) (*Convolver, error) {
	c, err := newConvolver(ConvolverBlock, ir)
	if err != nil {
		return nil, err
	}
	c.gain = float32(ImpulseGain(ir, sampleRate))
	return c, nil
}

func newConvolver(block int, ir [2][]float32) (*Convolver, error) {
	if block <= 0 || block&(block-1) != 0 {
		return nil, fmt.Errorf("convolver block %d is not a power of two", block)
	}
	length := len(ir[0])
	if len(ir[1]) > length {
		length = len(ir[1])
	}
	if length == 0 {
		return nil, errors.New("empty impulse response")
	}
	size := 2 * block
	f, err := fft.New(size)
	if err != nil {
		return nil, err
	}
	c := &Convolver{
		block: block,
		parts: (length + block - 1) / block,
		fft:   f,
		gain:  1,
		work:  make([]complex128, size),
		acc:   make([]complex128, size),
	}
	c.scale = c.calibrate()

	for ch := range ir {
		c.prev[ch] = make([]float64, block)
		c.in[ch] = make([]float32, block)
		c.out[ch] = make([]float32, block)
		c.filter[ch] = make([][]complex128, c.parts)
		c.fdl[ch] = make([][]complex128, c.parts)
		for p := 0; p < c.parts; p++ {
			seg := make([]complex128, size)
			for i := 0; i < block; i++ {
				if k := p*block + i; k < len(ir[ch]) {
					seg[i] = complex(float64(ir[ch][k]), 0)
				}
			}
			c.filter[ch][p] = c.fft.Transform(seg)
			c.fdl[ch][p] = make([]complex128, size)
		}
	}
	return c, nil
}

// calibrate measures the gain of a forward transform, a spectral product
// and an inverse transform so output can be scaled back to unity whatever
// normalization the FFT applies.
func (c *Convolver) calibrate() float64 {
	size := 2 * c.block
	delta := make([]complex128, size)
	delta[0] = 1
	spec := c.fft.Transform(delta)
	forward := real(spec[0])
	round := make([]complex128, size)
	copy(round, spec)
	back := c.fft.Inverse(round)
	return 1 / (forward * real(back[0]))
}

// Latency returns the output delay in samples.
func (c *Convolver) Latency() int { return c.block }

func (c *Convolver) Process(l, r float32) (float32, float32) {
	ol := c.out[0][c.pos]
	or := c.out[1][c.pos]
	c.in[0][c.pos] = l
	c.in[1][c.pos] = r
	c.pos++
	if c.pos == c.block {
		c.flush()
		c.pos = 0
	}
	return ol, or
}

func (c *Convolver) flush() {
	b := c.block
	for ch := 0; ch < 2; ch++ {
		for i := 0; i < b; i++ {
			c.work[i] = complex(c.prev[ch][i], 0)
			v := float64(c.in[ch][i])
			c.work[b+i] = complex(v, 0)
			c.prev[ch][i] = v
		}
		spec := c.fft.Transform(c.work)
		copy(c.fdl[ch][c.fdlPos], spec)

		for i := range c.acc {
			c.acc[i] = 0
		}
		for p := 0; p < c.parts; p++ {
			x := c.fdl[ch][(c.fdlPos-p+c.parts)%c.parts]
			h := c.filter[ch][p]
			for i := range c.acc {
				c.acc[i] += x[i] * h[i]
			}
		}
		y := c.fft.Inverse(c.acc)
		g := c.scale * float64(c.gain)
		for i := 0; i < b; i++ {
			c.out[ch][i] = float32(real(y[b+i]) * g)
		}
	}
	c.fdlPos = (c.fdlPos + 1) % c.parts
}

func (c *Convolver) Reset() {
	for ch := 0; ch < 2; ch++ {
		for i := range c.prev[ch] {
			c.prev[ch][i] = 0
			c.in[ch][i] = 0
			c.out[ch][i] = 0
		}
		for _, x := range c.fdl[ch] {
			for i := range x {
				x[i] = 0
			}
		}
	}
	c.pos = 0
	c.fdlPos = 0
}
