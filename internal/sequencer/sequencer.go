// Package sequencer plays a list of timed note events into an engine while
// pulling its audio, so note boundaries land on exact frames.
package sequencer

import (
	"math"
	"sort"

	"github.com/cbegin/patchpal-go/patch"
)

// Target is the engine surface the sequencer drives.
type Target interface {
	NoteOn(note int, velocity float64, p *patch.Patch) error
	NoteOff(note int) error
	Process(dst []float32)
	// LiveVoices returns the number of voices still sounding, release tails
	// included. Used to detect when playback has fully ended.
	LiveVoices() int
}

// Event is one note. Start and Duration are in seconds; Velocity is 0-1.
type Event struct {
	Note     int
	Velocity float64
	Start    float64
	Duration float64
}

// EventKind identifies sequencer lifecycle events.
type EventKind int

const (
	EventLoopCompleted EventKind = iota
	EventPlaybackEnded
)

type Options struct {
	Loop       bool
	OnEvent    func(EventKind)
	TailFrames int // extra frames to render after last voice ends (0 = use 0.1s default)
	Transpose  int // semitones added to every note
}

type scheduled struct {
	on   int64
	off  int64
	note int
	vel  float64
}

type noteOff struct {
	frame int64
	note  int
	fired bool
}

type Sequencer struct {
	target     Target
	sampleRate int
	events     []scheduled
	period     int64
	cursor     int
	offset     int64
	frame      int64
	noteOffs   []noteOff
	loop       bool
	onEvent    func(EventKind)
	tailFrames int
	tailLeft   int
	exhausted  bool
	ended      bool
	transpose  int
	err        error
}

func New(events []Event, target Target, sampleRate int, opts ...Options) *Sequencer {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	tail := opt.TailFrames
	if tail <= 0 {
		tail = sampleRate / 10
	}
	s := &Sequencer{
		target:     target,
		sampleRate: sampleRate,
		loop:       opt.Loop,
		onEvent:    opt.OnEvent,
		tailFrames: tail,
		tailLeft:   tail,
		transpose:  opt.Transpose,
	}
	s.events = make([]scheduled, 0, len(events))
	for _, ev := range events {
		on := s.frames(ev.Start)
		off := s.frames(ev.Start + math.Max(ev.Duration, 0))
		if off <= on {
			off = on + 1
		}
		s.events = append(s.events, scheduled{on: on, off: off, note: ev.Note, vel: ev.Velocity})
		if off > s.period {
			s.period = off
		}
	}
	sort.SliceStable(s.events, func(i, j int) bool { return s.events[i].on < s.events[j].on })
	s.exhausted = len(s.events) == 0
	return s
}

func (s *Sequencer) frames(seconds float64) int64 {
	if seconds <= 0 {
		return 0
	}
	return int64(math.Round(seconds * float64(s.sampleRate)))
}

// Frame returns the number of frames rendered so far.
func (s *Sequencer) Frame() int64 { return s.frame }

// Length returns the frame at which the last note of one pass ends.
func (s *Sequencer) Length() int64 { return s.period }

// Done reports whether every note has played and its tail has died away.
func (s *Sequencer) Done() bool { return s.ended }

// Err returns the first error the target reported.
func (s *Sequencer) Err() error { return s.err }

// Process renders len(dst)/2 interleaved frames, dispatching note events at
// their frames.
func (s *Sequencer) Process(dst []float32) {
	frames := int64(len(dst) / 2)
	var done int64
	for done < frames {
		s.dispatch()
		n := frames - done
		if next, ok := s.nextBoundary(); ok && next-s.frame < n {
			n = next - s.frame
		}
		s.target.Process(dst[done*2 : (done+n)*2])
		s.frame += n
		done += n
		s.checkEnded(n)
	}
}

// nextBoundary returns the frame of the next pending note on or note off.
func (s *Sequencer) nextBoundary() (int64, bool) {
	next, ok := int64(0), false
	if s.cursor < len(s.events) {
		next, ok = s.events[s.cursor].on+s.offset, true
	}
	for _, no := range s.noteOffs {
		if !no.fired && (!ok || no.frame < next) {
			next, ok = no.frame, true
		}
	}
	return next, ok
}

func (s *Sequencer) dispatch() {
	// Offs first so a repeated note at the same frame retriggers cleanly.
	for i := range s.noteOffs {
		if !s.noteOffs[i].fired && s.noteOffs[i].frame <= s.frame {
			s.record(s.target.NoteOff(s.noteOffs[i].note))
			s.noteOffs[i].fired = true
		}
	}
	for s.cursor < len(s.events) && s.events[s.cursor].on+s.offset <= s.frame {
		ev := s.events[s.cursor]
		note := ev.note + s.transpose
		s.record(s.target.NoteOn(note, ev.vel, nil))
		s.noteOffs = append(s.noteOffs, noteOff{frame: ev.off + s.offset, note: note})
		s.cursor++
	}
	s.compactNoteOffs()
	if s.cursor >= len(s.events) && len(s.noteOffs) == 0 && !s.exhausted {
		if s.loop && s.period > 0 {
			s.offset += s.period
			s.cursor = 0
			if s.onEvent != nil {
				s.onEvent(EventLoopCompleted)
			}
			return
		}
		s.exhausted = true
	}
}

func (s *Sequencer) checkEnded(n int64) {
	if !s.exhausted || s.ended || s.target.LiveVoices() > 0 {
		return
	}
	s.tailLeft -= int(n)
	if s.tailLeft <= 0 {
		s.ended = true
		if s.onEvent != nil {
			s.onEvent(EventPlaybackEnded)
		}
	}
}

func (s *Sequencer) record(err error) {
	if err != nil && s.err == nil {
		s.err = err
	}
}

func (s *Sequencer) compactNoteOffs() {
	if len(s.noteOffs) == 0 {
		return
	}
	j := 0
	for i := range s.noteOffs {
		if !s.noteOffs[i].fired {
			s.noteOffs[j] = s.noteOffs[i]
			j++
		}
	}
	s.noteOffs = s.noteOffs[:j]
	// Insertion sort: entries arrive nearly sorted by frame.
	for i := 1; i < len(s.noteOffs); i++ {
		key := s.noteOffs[i]
		k := i - 1
		for k >= 0 && s.noteOffs[k].frame > key.frame {
			s.noteOffs[k+1] = s.noteOffs[k]
			k--
		}
		s.noteOffs[k+1] = key
	}
}
