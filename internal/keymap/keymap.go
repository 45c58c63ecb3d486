// Package keymap maps a computer keyboard onto MIDI notes, two rows laid
// out like a piano octave and a bit.
package keymap

// Velocity is the fixed velocity of keyboard notes.
const Velocity = 0.9

// Octave shift bounds, in octaves.
const (
	MinShift = -3
	MaxShift = 4
)

var notes = map[rune]int{
	'a': 48, 'w': 49, 's': 50, 'e': 51, 'd': 52, 'f': 53, 't': 54,
	'g': 55, 'y': 56, 'h': 57, 'u': 58, 'j': 59, 'k': 60, 'o': 61,
	'l': 62, 'p': 63, ';': 64,
}

// Action is what a key press asks for.
type Action int

const (
	None Action = iota
	Note
	OctaveDown
	OctaveUp
	Panic
	Quit
)

// Keymap tracks the octave shift. The zero value plays the base layout.
type Keymap struct {
	shift int
}

// Shift returns the current octave shift.
func (k *Keymap) Shift() int { return k.shift }

// Press interprets a key. For Note actions it returns the shifted MIDI
// note; keys that would leave 0-127 are ignored.
func (k *Keymap) Press(r rune) (Action, int) {
	if n, ok := notes[r]; ok {
		n += k.shift * 12
		if n < 0 || n > 127 {
			return None, 0
		}
		return Note, n
	}
	switch r {
	case 'z':
		if k.shift > MinShift {
			k.shift--
		}
		return OctaveDown, k.shift
	case 'x':
		if k.shift < MaxShift {
			k.shift++
		}
		return OctaveUp, k.shift
	case ' ':
		return Panic, 0
	case 'q', 3, 27: // q, ctrl-c, esc
		return Quit, 0
	}
	return None, 0
}

// BaseNote returns the unshifted note for r.
func BaseNote(r rune) (int, bool) {
	n, ok := notes[r]
	return n, ok
}
