// Package effects holds the master bus nodes: a feedback delay, a modulated
// chorus, a partitioned convolution reverb and a five band equalizer. Each
// node owns its state and processes one stereo frame per call.
package effects

// Effector processes one stereo frame.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

var (
	_ Effector = (*Delay)(nil)
	_ Effector = (*Chorus)(nil)
	_ Effector = (*Convolver)(nil)
	_ Effector = (*EQ5Band)(nil)
)

// Chain runs effects in series.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Len() int { return len(c.effects) }

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

// ProcessBlock runs the chain frame by frame from inL/inR into outL/outR.
// Input and output may be the same slices.
func (c *Chain) ProcessBlock(inL, inR, outL, outR []float32) {
	n := min(len(inL), len(inR), len(outL), len(outR))
	for i := 0; i < n; i++ {
		outL[i], outR[i] = c.Process(inL[i], inR[i])
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}
