// Package noise produces looped white-noise buffers for voices.
package noise

import (
	"math/rand"
	"sync"
)

const (
	// Seconds is the loop length of one noise buffer.
	Seconds = 2
	// Amplitude bounds the raw noise samples to [-Amplitude, Amplitude].
	Amplitude = 0.35
)

// Buffer is a looped noise source owned by a single voice.
type Buffer struct {
	samples []float32
	level   float32
	pos     int
}

// Next returns the next scaled sample, wrapping at the end of the loop.
func (b *Buffer) Next() float32 {
	s := b.samples[b.pos] * b.level
	b.pos++
	if b.pos >= len(b.samples) {
		b.pos = 0
	}
	return s
}

func (b *Buffer) Len() int { return len(b.samples) }

func (b *Buffer) Level() float32 { return b.level }

// Generator fills noise buffers. Each voice gets freshly generated noise;
// the backing arrays are recycled through a pool to spare the allocator.
type Generator struct {
	mu   sync.Mutex
	rng  *rand.Rand
	size int
	pool sync.Pool
}

func NewGenerator(sampleRate int, seed int64) *Generator {
	g := &Generator{
		rng:  rand.New(rand.NewSource(seed)),
		size: sampleRate * Seconds,
	}
	g.pool.New = func() any {
		return &Buffer{samples: make([]float32, g.size)}
	}
	return g
}

// New returns a buffer of fresh uniform noise scaled by level.
func (g *Generator) New(level float64) *Buffer {
	b := g.pool.Get().(*Buffer)
	b.level = float32(level)
	b.pos = 0
	g.mu.Lock()
	for i := range b.samples {
		b.samples[i] = float32((g.rng.Float64()*2 - 1) * Amplitude)
	}
	g.mu.Unlock()
	return b
}

// Release hands a buffer back once its voice has finished.
func (g *Generator) Release(b *Buffer) {
	if b == nil {
		return
	}
	g.pool.Put(b)
}
