package patchpal

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cbegin/patchpal-go/internal/sequencer"
)

// NoteEvent is one note of a phrase. Start and Duration are in seconds.
type NoteEvent = sequencer.Event

// DemoPhrase returns the audition phrase: a rising C major arpeggio at
// 120 bpm, eighth notes played staccato.
func DemoPhrase() []NoteEvent {
	notes := []int{48, 55, 60, 55, 52, 60, 64, 67}
	events := make([]NoteEvent, len(notes))
	for i, n := range notes {
		events[i] = NoteEvent{
			Note:     n,
			Velocity: 100.0 / 127.0,
			Start:    float64(i) * 0.25,
			Duration: 0.125,
		}
	}
	return events
}

type phraseStep struct {
	at time.Duration
	on bool
	ev NoteEvent
}

func phraseSteps(events []NoteEvent) []phraseStep {
	steps := make([]phraseStep, 0, len(events)*2)
	for _, ev := range events {
		on := time.Duration(max(ev.Start, 0) * float64(time.Second))
		off := on + time.Duration(max(ev.Duration, 0)*float64(time.Second))
		steps = append(steps, phraseStep{at: on, on: true, ev: ev}, phraseStep{at: off, ev: ev})
	}
	// Offs sort before ons at the same instant so repeated notes retrigger.
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].at != steps[j].at {
			return steps[i].at < steps[j].at
		}
		return !steps[i].on && steps[j].on
	})
	return steps
}

// PlayPhrase plays events on the wall clock using the stored patch and
// returns once the last note has been released. Cancelling ctx releases
// every sounding note and returns ctx.Err().
func (e *Engine) PlayPhrase(ctx context.Context, events []NoteEvent) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	start := time.Now()
	for _, s := range phraseSteps(events) {
		if d := s.at - time.Since(start); d > 0 {
			timer.Reset(d)
			select {
			case <-ctx.Done():
				return e.abortPhrase(ctx.Err())
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return e.abortPhrase(err)
		}
		var err error
		if s.on {
			err = e.NoteOn(s.ev.Note, s.ev.Velocity, nil)
		} else {
			err = e.NoteOff(s.ev.Note)
		}
		if err != nil {
			return e.abortPhrase(err)
		}
	}
	return nil
}

func (e *Engine) abortPhrase(cause error) error {
	if err := e.AllNotesOff(); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
