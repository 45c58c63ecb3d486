package patchpal

import (
	"errors"

	"github.com/cbegin/patchpal-go/internal/audio"
	"github.com/cbegin/patchpal-go/patch"
)

var (
	// ErrDeviceUnavailable reports that the audio output could not be opened.
	ErrDeviceUnavailable = audio.ErrDeviceUnavailable
	// ErrNoPatch is returned by NoteOn when no patch is given or stored.
	ErrNoPatch = errors.New("no patch set")
	// ErrNoteOutOfRange is returned for notes outside 0-127.
	ErrNoteOutOfRange = errors.New("note out of range")
	// ErrCommandQueueFull means the render side is not keeping up; the call
	// was dropped.
	ErrCommandQueueFull = errors.New("render command queue full")
)

// UnknownWavetableError reports an oscillator wavetable the engine cannot
// render. The offending patch is not applied.
type UnknownWavetableError = patch.UnknownWavetableError
