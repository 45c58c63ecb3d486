package patchpal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cbegin/patchpal-go/patch"
)

func TestDemoPhraseTiming(t *testing.T) {
	events := DemoPhrase()
	if len(events) != 8 {
		t.Fatalf("events = %d", len(events))
	}
	if events[0].Note != 48 || events[7].Note != 67 {
		t.Fatalf("notes = %d..%d", events[0].Note, events[7].Note)
	}
	if events[3].Start != 0.75 || events[3].Duration != 0.125 {
		t.Fatalf("event 3 = %+v", events[3])
	}
}

func TestPhraseStepsOrder(t *testing.T) {
	steps := phraseSteps([]NoteEvent{
		{Note: 60, Start: 0.01, Duration: 0.01},
		{Note: 60, Start: 0, Duration: 0.01},
	})
	if len(steps) != 4 {
		t.Fatalf("steps = %d", len(steps))
	}
	want := []struct {
		at time.Duration
		on bool
	}{
		{0, true},
		{10 * time.Millisecond, false},
		{10 * time.Millisecond, true},
		{20 * time.Millisecond, false},
	}
	for i, w := range want {
		if steps[i].at != w.at || steps[i].on != w.on {
			t.Errorf("step %d = %v/%v, want %v/%v", i, steps[i].at, steps[i].on, w.at, w.on)
		}
	}
}

func TestPlayPhraseReleasesEveryNote(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetPatch(patch.Init()); err != nil {
		t.Fatalf("SetPatch: %v", err)
	}
	events := []NoteEvent{
		{Note: 60, Velocity: 0.8, Start: 0, Duration: 0.002},
		{Note: 64, Velocity: 0.8, Start: 0.004, Duration: 0.002},
	}
	if err := e.PlayPhrase(context.Background(), events); err != nil {
		t.Fatalf("PlayPhrase: %v", err)
	}
	if len(e.ActiveNotes()) != 0 {
		t.Fatalf("active notes = %v", e.ActiveNotes())
	}
	render(e, 128)
	vs := e.Voices()
	if len(vs) != 2 {
		t.Fatalf("voices = %+v", vs)
	}
	for _, v := range vs {
		if v.State != VoiceReleasing {
			t.Fatalf("voice %d state = %v", v.ID, v.State)
		}
	}
}

func TestPlayPhraseCancel(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetPatch(patch.Init()); err != nil {
		t.Fatalf("SetPatch: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.PlayPhrase(ctx, DemoPhrase()) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PlayPhrase ignored cancellation")
	}
	if len(e.ActiveNotes()) != 0 {
		t.Fatalf("active notes after cancel = %v", e.ActiveNotes())
	}
}

func TestPlayPhraseNeedsPatch(t *testing.T) {
	e := newTestEngine(t)
	err := e.PlayPhrase(context.Background(), DemoPhrase()[:1])
	if !errors.Is(err, ErrNoPatch) {
		t.Fatalf("err = %v, want ErrNoPatch", err)
	}
}
