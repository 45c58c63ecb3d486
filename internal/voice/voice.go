// Package voice implements the per-note signal chain and the manager that
// owns every sounding voice.
//
// The package is split along the engine's two timelines. Prepare and Index
// run on the control side: they resolve wavetables, allocate noise and drive
// curves, and track which voice answers to which note. Manager and Voice run
// on the render side and never allocate.
package voice

import (
	"errors"
	"fmt"
	"math"

	"github.com/cbegin/patchpal-go/internal/automation"
	"github.com/cbegin/patchpal-go/internal/filter"
	"github.com/cbegin/patchpal-go/internal/lfo"
	"github.com/cbegin/patchpal-go/internal/noise"
	"github.com/cbegin/patchpal-go/internal/unison"
	"github.com/cbegin/patchpal-go/internal/wavetable"
	"github.com/cbegin/patchpal-go/patch"
)

// Floor is the near-zero level envelopes start from and release toward.
const Floor = 0.0001

// TailPadding is added to the release time before a voice is torn down.
const TailPadding = 0.08

// CutoffModDepth is the filter modulation in Hz at LFO amount 1.
const CutoffModDepth = 1800

// NoiseThreshold is the mixer noise level below which no noise source is
// attached.
const NoiseThreshold = 0.001

type State int32

const (
	Idle State = iota
	Attacking
	Decaying
	Sustaining
	Releasing
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attacking:
		return "attacking"
	case Decaying:
		return "decaying"
	case Sustaining:
		return "sustaining"
	case Releasing:
		return "releasing"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// OscSpec is one oscillator slot resolved against the wavetable cache.
type OscSpec struct {
	Osc      patch.Osc
	A, B     *wavetable.Waveform
	Blend    float64
	MixLevel float64
}

// Spec describes a voice to start. It is built on the control side and
// handed to the render side, which copies it into an arena slot.
type Spec struct {
	ID       uint64
	Note     int
	Velocity float64
	Freq     float64
	Osc      [2]OscSpec
	Noise    *noise.Buffer
	Mode     filter.Mode
	CutoffHz float64
	Q        float64
	Drive    *filter.Curve
	Env      patch.Envelope
	LFO      patch.LFO
}

// MIDIToFreq converts a MIDI note number to Hz, A4 = 440.
func MIDIToFreq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

// Prepare resolves everything a voice for p needs. It is the only place
// tables are looked up or buffers allocated for a note.
func Prepare(p *patch.Patch, id uint64, note int, velocity float64, cache *wavetable.Cache, gen *noise.Generator) (*Spec, error) {
	s := &Spec{
		ID:       id,
		Note:     note,
		Velocity: velocity,
		Freq:     MIDIToFreq(note),
		Mode:     filter.ModeOf(p.Filter.Type),
		CutoffHz: p.Filter.CutoffHz,
		Q:        p.Filter.Q(),
		Drive:    filter.NewDriveCurve(p.Filter.Drive),
		Env:      p.AmpEnv,
		LFO:      p.LFO1,
	}
	slots := [2]struct {
		name  string
		osc   patch.Osc
		level float64
	}{
		{"osc1", p.Osc1, p.Mixer.Osc1Level},
		{"osc2", p.Osc2, p.Mixer.Osc2Level},
	}
	for i, slot := range slots {
		a, b, blend, err := cache.Pair(slot.osc.Wavetable, slot.osc.Position)
		if err != nil {
			var uw *patch.UnknownWavetableError
			if errors.As(err, &uw) {
				uw.Slot = slot.name
			}
			return nil, err
		}
		s.Osc[i] = OscSpec{Osc: slot.osc, A: a, B: b, Blend: blend, MixLevel: slot.level}
	}
	if p.Mixer.NoiseLevel > NoiseThreshold && gen != nil {
		s.Noise = gen.New(p.Mixer.NoiseLevel * velocity)
	}
	return s, nil
}

// Voice is the render-side state of one note.
type Voice struct {
	id       uint64
	note     int
	velocity float64
	state    State

	started   int64
	attackEnd int64
	decayEnd  int64
	releaseAt int64
	deadline  int64

	amp    automation.Param
	stacks [2]unison.Stack
	noise  *noise.Buffer

	svf      filter.SVF
	cutoffHz float64
	drive    *filter.Curve
	lfo      lfo.LFO
	lfoOn    bool
}

func (v *Voice) ID() uint64 { return v.id }

func (v *Voice) Note() int { return v.note }

func (v *Voice) State() State { return v.state }

func (v *Voice) Started() int64 { return v.started }

// Amplitude is the current value of the amplitude control point.
func (v *Voice) Amplitude() float64 { return v.amp.Value() }

// Deadline is the frame the voice finishes at, or -1 before release.
func (v *Voice) Deadline() int64 { return v.deadline }

func frames(seconds, sampleRate float64) int64 {
	if !(seconds > 0) {
		return 0
	}
	return int64(math.Round(seconds * sampleRate))
}

func (v *Voice) start(s *Spec, now int64, sampleRate float64) {
	v.id = s.ID
	v.note = s.Note
	v.velocity = s.Velocity
	v.state = Attacking
	v.started = now
	v.releaseAt = -1
	v.deadline = -1

	v.attackEnd = now + frames(s.Env.Attack, sampleRate)
	v.decayEnd = v.attackEnd + frames(s.Env.Decay, sampleRate)
	v.amp.Reset(Floor, now)
	v.amp.LinearRampTo(s.Velocity, v.attackEnd)
	v.amp.LinearRampTo(math.Max(Floor, s.Env.Sustain*s.Velocity), v.decayEnd)

	for i := range v.stacks {
		o := &s.Osc[i]
		v.stacks[i].Build(o.Osc, o.A, o.B, o.Blend, s.Freq, o.MixLevel, s.Velocity, sampleRate)
	}
	v.noise = s.Noise

	v.svf.Reset()
	v.svf.Set(s.Mode, sampleRate, s.CutoffHz, s.Q)
	v.cutoffHz = s.CutoffHz
	v.drive = s.Drive

	v.lfo.Reset()
	v.lfoOn = s.LFO.ModulatesCutoff()
	if v.lfoOn {
		v.lfo.Set(s.LFO.Amount*CutoffModDepth, s.LFO.RateHz, lfo.WaveformOf(s.LFO.Shape))
	}
}

// release starts the release tail at frame now. Scheduled attack and decay
// ramps are cancelled first so the tail starts from the audible level.
func (v *Voice) release(now int64, releaseSeconds, sampleRate float64) {
	if v.state == Releasing || v.state == Finished || v.state == Idle {
		return
	}
	r := patch.Clamp(releaseSeconds, 0.02, 6)
	v.amp.Hold()
	v.amp.TargetAt(Floor, now, r/3*sampleRate)
	v.state = Releasing
	v.releaseAt = now
	v.deadline = now + frames(r+TailPadding, sampleRate)
}

// updateState advances the envelope stage from the frame clock.
func (v *Voice) updateState(now int64) {
	switch v.state {
	case Attacking, Decaying, Sustaining:
		switch {
		case now < v.attackEnd:
			v.state = Attacking
		case now < v.decayEnd:
			v.state = Decaying
		default:
			v.state = Sustaining
		}
	}
}

// render adds n frames of output starting at the voice's clock into l and r.
func (v *Voice) render(l, r []float32, n int, sampleRate float64) {
	for i := 0; i < n; i++ {
		a1l, a1r := v.stacks[0].Next()
		a2l, a2r := v.stacks[1].Next()
		sl, sr := a1l+a2l, a1r+a2r
		if v.noise != nil {
			ns := v.noise.Next()
			sl += ns
			sr += ns
		}
		if v.lfoOn {
			v.svf.SetCutoff(sampleRate, v.cutoffHz+v.lfo.Sample(sampleRate))
		}
		g := float32(v.amp.Next())
		fl := float32(v.svf.Process(float64(sl*g), 0))
		fr := float32(v.svf.Process(float64(sr*g), 1))
		l[i] += v.drive.Apply(fl)
		r[i] += v.drive.Apply(fr)
	}
}

// finish stops every source of the voice as a unit.
func (v *Voice) finish() *noise.Buffer {
	v.state = Finished
	v.stacks[0].Stop()
	v.stacks[1].Stop()
	buf := v.noise
	v.noise = nil
	v.lfoOn = false
	v.drive = nil
	return buf
}
