// Package patch defines the declarative instrument description consumed by
// the synthesis engine. Patches are produced by an external generator; the
// engine only reads them.
package patch

import (
	"fmt"
	"math"
)

type WavetableID string

const (
	AnalogSaw     WavetableID = "analog_saw"
	SquarePWM     WavetableID = "square_pwm"
	TriangleSine  WavetableID = "triangle_sine"
	Organ         WavetableID = "organ"
	HarmonicStack WavetableID = "harmonic_stack"
	BrightComplex WavetableID = "bright_complex"
	Metallic      WavetableID = "metallic"
)

// WavetableIDs lists every wavetable identity the engine can render.
var WavetableIDs = []WavetableID{
	AnalogSaw,
	SquarePWM,
	TriangleSine,
	Organ,
	HarmonicStack,
	BrightComplex,
	Metallic,
}

// Known reports whether id names a supported wavetable.
func (id WavetableID) Known() bool {
	for _, w := range WavetableIDs {
		if w == id {
			return true
		}
	}
	return false
}

type FilterType string

const (
	Lowpass  FilterType = "lowpass"
	Bandpass FilterType = "bandpass"
	Highpass FilterType = "highpass"
)

type LFOShape string

const (
	ShapeSine     LFOShape = "sine"
	ShapeTriangle LFOShape = "triangle"
	ShapeSaw      LFOShape = "saw"
	ShapeSquare   LFOShape = "square"
)

type ModTarget string

const (
	TargetFilterCutoff ModTarget = "filter_cutoff"
	TargetOsc1Position ModTarget = "osc1_position"
	TargetOsc2Position ModTarget = "osc2_position"
	TargetAmpGain      ModTarget = "amp_gain"
	TargetChorusMix    ModTarget = "fx_chorus_mix"
	TargetDelayMix     ModTarget = "fx_delay_mix"
)

// Osc is one oscillator slot. Position is the wavetable morph position in
// [0,1]; Detune, StereoSpread and Level are also unit ranges.
type Osc struct {
	Wavetable    WavetableID `json:"wavetable" yaml:"wavetable"`
	Position     float64     `json:"position" yaml:"position"`
	UnisonVoices int         `json:"unisonVoices" yaml:"unisonVoices"`
	Detune       float64     `json:"detune" yaml:"detune"`
	StereoSpread float64     `json:"stereoSpread" yaml:"stereoSpread"`
	Level        float64     `json:"level" yaml:"level"`
	Octave       int         `json:"octave" yaml:"octave"`
	Semitone     float64     `json:"semitone" yaml:"semitone"`
	Fine         float64     `json:"fine" yaml:"fine"`
}

// DetuneCents is the static pitch offset of the slot in cents.
func (o Osc) DetuneCents() float64 {
	return o.Fine + o.Semitone*100 + float64(o.Octave)*1200
}

type Mixer struct {
	Osc1Level  float64 `json:"osc1Level" yaml:"osc1Level"`
	Osc2Level  float64 `json:"osc2Level" yaml:"osc2Level"`
	NoiseLevel float64 `json:"noiseLevel" yaml:"noiseLevel"`
}

type Filter struct {
	Type      FilterType `json:"type" yaml:"type"`
	CutoffHz  float64    `json:"cutoffHz" yaml:"cutoffHz"`
	Resonance float64    `json:"resonance" yaml:"resonance"`
	Drive     float64    `json:"drive" yaml:"drive"`
	Keytrack  float64    `json:"keytrack" yaml:"keytrack"`
}

// Q maps resonance onto the filter quality value, 0.2 at rest to 16.2.
func (f Filter) Q() float64 {
	return 0.2 + f.Resonance*16
}

// Envelope times are in seconds, Sustain is a level.
type Envelope struct {
	Attack  float64 `json:"attack" yaml:"attack"`
	Decay   float64 `json:"decay" yaml:"decay"`
	Sustain float64 `json:"sustain" yaml:"sustain"`
	Release float64 `json:"release" yaml:"release"`
}

// ReleaseSeconds is the release time clamped to what the engine will render.
func (e Envelope) ReleaseSeconds() float64 {
	return Clamp(e.Release, 0.02, 6)
}

type ModEnvelope struct {
	Envelope `yaml:",inline"`
	Target   ModTarget `json:"target,omitempty" yaml:"target,omitempty"`
	Amount   float64   `json:"amount,omitempty" yaml:"amount,omitempty"`
}

type LFO struct {
	Shape  LFOShape  `json:"shape" yaml:"shape"`
	RateHz float64   `json:"rateHz" yaml:"rateHz"`
	Sync   bool      `json:"sync,omitempty" yaml:"sync,omitempty"`
	Amount float64   `json:"amount" yaml:"amount"`
	Target ModTarget `json:"target,omitempty" yaml:"target,omitempty"`
}

// ModulatesCutoff reports whether the LFO is routed to the filter cutoff
// with an audible amount.
func (l LFO) ModulatesCutoff() bool {
	return l.Target == TargetFilterCutoff && l.Amount > 0.001
}

type Chorus struct {
	On     bool    `json:"on" yaml:"on"`
	RateHz float64 `json:"rateHz" yaml:"rateHz"`
	Depth  float64 `json:"depth" yaml:"depth"`
	Mix    float64 `json:"mix" yaml:"mix"`
}

type Delay struct {
	On       bool    `json:"on" yaml:"on"`
	Time     float64 `json:"time" yaml:"time"`
	Feedback float64 `json:"feedback" yaml:"feedback"`
	Mix      float64 `json:"mix" yaml:"mix"`
}

type Reverb struct {
	On      bool    `json:"on" yaml:"on"`
	Size    float64 `json:"size" yaml:"size"`
	Damping float64 `json:"damping" yaml:"damping"`
	Mix     float64 `json:"mix" yaml:"mix"`
}

type FX struct {
	Chorus Chorus `json:"chorus" yaml:"chorus"`
	Delay  Delay  `json:"delay" yaml:"delay"`
	Reverb Reverb `json:"reverb" yaml:"reverb"`
}

// WetLevel is the combined wet bus gain: the sum of the enabled effect
// mixes, halved and clamped to [0,1].
func (fx FX) WetLevel() float64 {
	var wet float64
	if fx.Delay.On {
		wet += fx.Delay.Mix
	}
	if fx.Reverb.On {
		wet += fx.Reverb.Mix
	}
	if fx.Chorus.On {
		wet += fx.Chorus.Mix
	}
	return Clamp(wet*0.5, 0, 1)
}

// DryLevel is the dry bus gain paired with the given wet gain.
func DryLevel(wet float64) float64 {
	return Clamp(1-wet*0.35, 0.3, 1)
}

type Meta struct {
	Name      string `json:"name" yaml:"name"`
	Archetype string `json:"archetype" yaml:"archetype"`
	CreatedAt string `json:"createdAt" yaml:"createdAt"`
	Version   string `json:"version" yaml:"version"`
}

type Macros struct {
	Macro1 float64 `json:"macro1" yaml:"macro1"`
	Macro2 float64 `json:"macro2" yaml:"macro2"`
	Macro3 float64 `json:"macro3" yaml:"macro3"`
	Macro4 float64 `json:"macro4" yaml:"macro4"`
}

// Patch is the complete description of one synthesizer sound.
type Patch struct {
	Meta   Meta        `json:"meta" yaml:"meta"`
	Osc1   Osc         `json:"osc1" yaml:"osc1"`
	Osc2   Osc         `json:"osc2" yaml:"osc2"`
	Mixer  Mixer       `json:"mixer" yaml:"mixer"`
	Filter Filter      `json:"filter" yaml:"filter"`
	AmpEnv Envelope    `json:"ampEnv" yaml:"ampEnv"`
	ModEnv ModEnvelope `json:"modEnv" yaml:"modEnv"`
	LFO1   LFO         `json:"lfo1" yaml:"lfo1"`
	FX     FX          `json:"fx" yaml:"fx"`
	Macros *Macros     `json:"macros,omitempty" yaml:"macros,omitempty"`
}

// UnknownWavetableError reports a wavetable identity outside WavetableIDs.
// It means the patch generator and the engine disagree on the data model.
type UnknownWavetableError struct {
	Slot string // "osc1", "osc2", or empty when not tied to a slot
	ID   WavetableID
}

func (e *UnknownWavetableError) Error() string {
	if e.Slot == "" {
		return fmt.Sprintf("unknown wavetable %q", e.ID)
	}
	return fmt.Sprintf("%s: unknown wavetable %q", e.Slot, e.ID)
}

// Validate checks the fields the engine cannot render around. Only the
// oscillator wavetables are checked; numeric ranges are clamped where used.
func (p *Patch) Validate() error {
	if !p.Osc1.Wavetable.Known() {
		return &UnknownWavetableError{Slot: "osc1", ID: p.Osc1.Wavetable}
	}
	if !p.Osc2.Wavetable.Known() {
		return &UnknownWavetableError{Slot: "osc2", ID: p.Osc2.Wavetable}
	}
	return nil
}

// Clamp limits v to [lo, hi]. NaN clamps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
