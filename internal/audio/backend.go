package audio

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDeviceUnavailable wraps every failure to open an output device.
var ErrDeviceUnavailable = errors.New("audio output device unavailable")

// Backend names.
const (
	Ebiten    = "ebiten"
	Oto       = "oto"
	PortAudio = "portaudio"
	Null      = "null"
)

// Output is an open device connection pulling from a SampleSource.
type Output interface {
	Close() error
}

// Opener opens an output at sampleRate that pulls audio from source.
type Opener func(sampleRate int, source SampleSource) (Output, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Opener{
		Ebiten: openEbiten,
		Oto:    openOto,
		Null:   openNull,
	}
)

// Register makes an output backend available under name.
func Register(name string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = open
}

// Backends lists the registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open starts the named backend. Any failure, including an unknown name,
// is reported wrapped in ErrDeviceUnavailable.
func Open(name string, sampleRate int, source SampleSource) (Output, error) {
	if name == "" {
		name = Ebiten
	}
	registryMu.RLock()
	open, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend %q", ErrDeviceUnavailable, name)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrDeviceUnavailable, sampleRate)
	}
	out, err := open(sampleRate, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, name, err)
	}
	return out, nil
}

// nullOutput accepts a source and never pulls from it. Hosts using the null
// backend drive rendering themselves.
type nullOutput struct{}

func openNull(int, SampleSource) (Output, error) { return nullOutput{}, nil }

func (nullOutput) Close() error { return nil }
