package wavetable

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cbegin/patchpal-go/patch"
)

// Key identifies one cached waveform.
type Key struct {
	ID   patch.WavetableID
	Step int
}

type entry struct {
	once sync.Once
	wave *Waveform
	err  error
}

// Cache builds each (wavetable, step) waveform at most once. Concurrent
// lookups of the same key wait for the single build and share its result.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	builds  atomic.Int64
}

func NewCache() *Cache {
	return &Cache{entries: make(map[Key]*entry)}
}

// Get returns the waveform for id at the given morph step.
func (c *Cache) Get(id patch.WavetableID, step int) (*Waveform, error) {
	if !id.Known() {
		return nil, &patch.UnknownWavetableError{ID: id}
	}
	if step < 0 || step >= Steps {
		return nil, fmt.Errorf("wavetable %s: morph step %d out of range [0,%d]", id, step, Steps-1)
	}
	key := Key{ID: id, Step: step}
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		c.builds.Add(1)
		e.wave, e.err = newWaveform(id, step)
	})
	return e.wave, e.err
}

// Pair resolves the two adjacent waveforms a morph position blends between.
func (c *Cache) Pair(id patch.WavetableID, position float64) (a, b *Waveform, blend float64, err error) {
	stepA, stepB, blend := MorphSteps(position)
	if a, err = c.Get(id, stepA); err != nil {
		return nil, nil, 0, err
	}
	if b, err = c.Get(id, stepB); err != nil {
		return nil, nil, 0, err
	}
	return a, b, blend, nil
}

// Warm builds every step of every known wavetable so later lookups never
// compute on a latency-sensitive path.
func (c *Cache) Warm() {
	for _, id := range patch.WavetableIDs {
		for step := 0; step < Steps; step++ {
			_, _ = c.Get(id, step)
		}
	}
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Builds returns how many waveforms have been computed since creation.
func (c *Cache) Builds() int64 {
	return c.builds.Load()
}

// Clear drops all cached waveforms. Waveforms already handed out stay valid.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[Key]*entry)
	c.mu.Unlock()
}
