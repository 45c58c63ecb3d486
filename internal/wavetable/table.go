package wavetable

import (
	"math"

	"github.com/cbegin/patchpal-go/patch"
)

// TableSize is the length of one rendered cycle.
const TableSize = 2048

// mipLimits are the highest harmonics kept by each band-limited level,
// finest first.
var mipLimits = [...]int{Harmonics - 1, 16, 8, 4, 2, 1}

var sineTable = func() []float64 {
	t := make([]float64, TableSize)
	for i := range t {
		t[i] = math.Sin(2 * math.Pi * float64(i) / TableSize)
	}
	return t
}()

// Waveform is an immutable band-limited single-cycle waveform for one
// (wavetable, morph step) pair. It is shared read-only between voices.
type Waveform struct {
	ID       patch.WavetableID
	Step     int
	Morph    float64
	Spectrum Spectrum
	// Scale is the peak normalization applied to every table level.
	Scale  float64
	levels [len(mipLimits)]Table
}

// Table is one band-limited cycle with a guard sample for interpolation.
type Table struct {
	MaxHarmonic int
	samples     []float32
}

func newWaveform(id patch.WavetableID, step int) (*Waveform, error) {
	morph := MorphOf(step)
	spec, err := Amplitudes(id, morph)
	if err != nil {
		return nil, err
	}
	w := &Waveform{ID: id, Step: step, Morph: morph, Spectrum: spec}

	full := synthesize(&spec, Harmonics-1)
	var peak float64
	for _, v := range full {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak > 0 {
		w.Scale = 1 / peak
	}
	for i, limit := range mipLimits {
		raw := full
		if limit < Harmonics-1 {
			raw = synthesize(&spec, limit)
		}
		samples := make([]float32, TableSize+1)
		for j, v := range raw {
			samples[j] = float32(v * w.Scale)
		}
		samples[TableSize] = samples[0]
		w.levels[i] = Table{MaxHarmonic: limit, samples: samples}
	}
	return w, nil
}

func synthesize(spec *Spectrum, limit int) []float64 {
	out := make([]float64, TableSize)
	for n := 1; n <= limit; n++ {
		a := spec[n]
		if a == 0 {
			continue
		}
		for i := range out {
			out[i] += a * sineTable[(n*i)%TableSize]
		}
	}
	return out
}

// Level picks the richest table whose partials all stay below Nyquist at
// freq. It returns nil when even the fundamental would alias.
func (w *Waveform) Level(freq, sampleRate float64) *Table {
	if freq <= 0 {
		return &w.levels[0]
	}
	maxHarmonic := int(sampleRate / 2 / freq)
	for i := range w.levels {
		if w.levels[i].MaxHarmonic <= maxHarmonic {
			return &w.levels[i]
		}
	}
	return nil
}

// Sample reads the table at phase in [0,1) with linear interpolation.
func (t *Table) Sample(phase float64) float32 {
	pos := phase * TableSize
	idx := int(pos)
	if idx >= TableSize {
		idx = TableSize - 1
	}
	frac := float32(pos - float64(idx))
	return t.samples[idx] + (t.samples[idx+1]-t.samples[idx])*frac
}
