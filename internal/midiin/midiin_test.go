package midiin

import (
	"io"
	"log/slog"
	"testing"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/patchpal-go/patch"
)

type recorder struct {
	ons    []int
	vels   []float64
	offs   []int
	volume float64
	panics int
}

func (r *recorder) NoteOn(note int, velocity float64, _ *patch.Patch) error {
	r.ons = append(r.ons, note)
	r.vels = append(r.vels, velocity)
	return nil
}

func (r *recorder) NoteOff(note int) error {
	r.offs = append(r.offs, note)
	return nil
}

func (r *recorder) SetMasterVolume(v float64) { r.volume = v }

func (r *recorder) AllNotesOff() error {
	r.panics++
	return nil
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotes(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(rec, Omni, quiet())
	h.Handle(midi.NoteOn(0, 60, 127), 0)
	h.Handle(midi.NoteOn(3, 64, 0), 0)
	h.Handle(midi.NoteOff(0, 60), 0)

	if len(rec.ons) != 1 || rec.ons[0] != 60 || rec.vels[0] != 1 {
		t.Fatalf("note ons = %v vels = %v", rec.ons, rec.vels)
	}
	if len(rec.offs) != 2 || rec.offs[0] != 64 || rec.offs[1] != 60 {
		t.Fatalf("note offs = %v, want [64 60] (velocity 0 note on ends a note)", rec.offs)
	}
}

func TestChannelFilter(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(rec, 2, quiet())
	h.Handle(midi.NoteOn(1, 60, 100), 0)
	h.Handle(midi.NoteOn(2, 62, 100), 0)
	h.Handle(midi.ControlChange(1, CCVolume, 0), 0)
	if len(rec.ons) != 1 || rec.ons[0] != 62 {
		t.Fatalf("note ons = %v, want [62]", rec.ons)
	}
	if rec.volume != 0 {
		t.Fatalf("volume changed by another channel: %v", rec.volume)
	}
}

func TestControllers(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(rec, Omni, quiet())
	h.Handle(midi.ControlChange(0, CCVolume, 127), 0)
	if rec.volume != 1 {
		t.Fatalf("volume = %v, want 1", rec.volume)
	}
	h.Handle(midi.ControlChange(0, CCAllNotesOff, 0), 0)
	h.Handle(midi.ControlChange(0, 74, 10), 0)
	h.Handle(midi.Pitchbend(0, 100), 0)
	if rec.panics != 1 {
		t.Fatalf("all notes off = %d, want 1", rec.panics)
	}
}
