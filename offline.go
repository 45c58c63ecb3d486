package patchpal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cbegin/patchpal-go/internal/sequencer"
	"github.com/cbegin/patchpal-go/patch"
)

// RenderPhrase plays events through a fresh engine with no output device
// and returns tail seconds past the end of the last note as interleaved
// stereo samples.
func RenderPhrase(p *patch.Patch, events []NoteEvent, sampleRate int, tail float64, opts ...Option) ([]float32, error) {
	if p == nil {
		return nil, ErrNoPatch
	}
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	opts = append(opts, WithSampleRate(sampleRate), WithBackend(BackendNull))
	e, err := NewEngine(opts...)
	if err != nil {
		return nil, err
	}
	if err := e.Initialize(); err != nil {
		return nil, err
	}
	defer e.Shutdown()
	if err := e.SetPatch(p); err != nil {
		return nil, err
	}

	seq := sequencer.New(events, e, sampleRate)
	frames := seq.Length() + int64(math.Round(math.Max(tail, 0)*float64(sampleRate)))
	out := make([]float32, frames*2)
	seq.Process(out)
	if err := seq.Err(); err != nil {
		return out, fmt.Errorf("render phrase: %w", err)
	}
	return out, nil
}

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
