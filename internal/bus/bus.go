// Package bus implements the shared master bus every voice feeds: a dry
// path, delay, reverb and chorus sends summed into a wet path, the master
// gain and the master EQ.
package bus

import (
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/viterin/vek/vek32"

	"github.com/cbegin/patchpal-go/internal/automation"
	"github.com/cbegin/patchpal-go/internal/effects"
	"github.com/cbegin/patchpal-go/patch"
)

// Quantum is the largest block Process accepts.
const Quantum = 128

const (
	PatchRampSeconds  = 0.05
	MasterRampSeconds = 0.03

	DefaultMaster   = 0.8
	DefaultFeedback = 0.25
	MaxMaster       = 1.2

	DelaySendLevel  = 0.2
	ReverbSendLevel = 0.15
	ChorusSendLevel = 0.2

	MinDelaySeconds = 0.05
	MaxDelaySeconds = 1.0
	MaxFeedback     = 0.9

	ReverbSeconds = 1.6
	ChorusDelayMs = 15
	ChorusDepthMs = 3
	ChorusRateHz  = 0.2
)

// Targets are the steady-state bus values a patch asks for.
type Targets struct {
	DelayTime     float64
	DelayFeedback float64
	Wet           float64
	Dry           float64
	DelayOn       bool
	ReverbOn      bool
	ChorusOn      bool
}

// TargetsFor derives bus targets from a patch, clamping every value to the
// range the bus supports.
func TargetsFor(p *patch.Patch) Targets {
	wet := p.FX.WetLevel()
	return Targets{
		DelayTime:     patch.Clamp(p.FX.Delay.Time, MinDelaySeconds, MaxDelaySeconds),
		DelayFeedback: patch.Clamp(p.FX.Delay.Feedback, 0, MaxFeedback),
		Wet:           wet,
		Dry:           patch.DryLevel(wet),
		DelayOn:       p.FX.Delay.On,
		ReverbOn:      p.FX.Reverb.On,
		ChorusOn:      p.FX.Chorus.On,
	}
}

// ClampMaster limits a master volume request. NaN maps to silence.
func ClampMaster(v float64) float64 {
	return patch.Clamp(v, 0, MaxMaster)
}

// Levels is a snapshot of the bus control points as last rendered.
type Levels struct {
	Master        float64
	Dry           float64
	Wet           float64
	DelayTime     float64
	DelayFeedback float64
	DelaySend     float64
	ReverbSend    float64
	ChorusSend    float64
}

const (
	lvMaster = iota
	lvDry
	lvWet
	lvDelayTime
	lvDelayFeedback
	lvDelaySend
	lvReverbSend
	lvChorusSend
	lvCount
)

// Bus is owned by the render side. Apply, SetMaster and Process must be
// called from one goroutine; Levels and EQ may be used from any.
type Bus struct {
	sampleRate float64

	params [lvCount]automation.Param

	delay  *effects.Delay
	reverb *effects.Convolver
	chorus *effects.Chorus
	eq     *effects.EQ5Band
	post   *effects.Chain

	gains  [lvCount][]float32
	dryL   []float32
	dryR   []float32
	wetL   []float32
	wetR   []float32
	levels [lvCount]atomic.Uint64
}

// New builds the bus and its long-lived effect nodes. rng seeds the reverb
// impulse.
func New(sampleRate int, rng *rand.Rand) (*Bus, error) {
	reverb, err := effects.NewConvolver(sampleRate, effects.RoomImpulse(sampleRate, ReverbSeconds, rng))
	if err != nil {
		return nil, err
	}
	eq := effects.NewEQ5Band(sampleRate)
	b := &Bus{
		sampleRate: float64(sampleRate),
		delay:      effects.NewDelay(sampleRate, MaxDelaySeconds),
		reverb:     reverb,
		chorus:     effects.NewChorus(sampleRate, ChorusDelayMs, ChorusDepthMs, ChorusRateHz),
		eq:         eq,
		post:       effects.NewChain(eq),
		dryL:       make([]float32, Quantum),
		dryR:       make([]float32, Quantum),
		wetL:       make([]float32, Quantum),
		wetR:       make([]float32, Quantum),
	}
	for i := range b.gains {
		b.gains[i] = make([]float32, Quantum)
	}
	b.Reset()
	return b, nil
}

// Reset returns every node to its initial state at frame 0.
func (b *Bus) Reset() {
	initial := [lvCount]float64{
		lvMaster:        DefaultMaster,
		lvDry:           1,
		lvWet:           0,
		lvDelayTime:     MinDelaySeconds,
		lvDelayFeedback: DefaultFeedback,
		lvDelaySend:     DelaySendLevel,
		lvReverbSend:    ReverbSendLevel,
		lvChorusSend:    ChorusSendLevel,
	}
	for i := range b.params {
		b.params[i].Reset(initial[i], 0)
	}
	b.delay.Reset()
	b.reverb.Reset()
	b.chorus.Reset()
	b.post.Reset()
	b.publish()
}

// Apply ramps the bus toward t over PatchRampSeconds, starting from the
// values currently sounding.
func (b *Bus) Apply(t Targets) {
	frames := int64(math.Round(PatchRampSeconds * b.sampleRate))
	send := func(on bool, level float64) float64 {
		if on {
			return level
		}
		return 0
	}
	b.params[lvDelayTime].RampTo(t.DelayTime, frames)
	b.params[lvDelayFeedback].RampTo(t.DelayFeedback, frames)
	b.params[lvWet].RampTo(t.Wet, frames)
	b.params[lvDry].RampTo(t.Dry, frames)
	b.params[lvDelaySend].RampTo(send(t.DelayOn, DelaySendLevel), frames)
	b.params[lvReverbSend].RampTo(send(t.ReverbOn, ReverbSendLevel), frames)
	b.params[lvChorusSend].RampTo(send(t.ChorusOn, ChorusSendLevel), frames)
}

// SetMaster ramps the master gain to the clamped volume over
// MasterRampSeconds.
func (b *Bus) SetMaster(v float64) {
	frames := int64(math.Round(MasterRampSeconds * b.sampleRate))
	b.params[lvMaster].RampTo(ClampMaster(v), frames)
}

// PresetMaster pins the master gain to the clamped volume without a ramp.
func (b *Bus) PresetMaster(v float64) {
	p := &b.params[lvMaster]
	p.Reset(ClampMaster(v), p.Now())
	b.publish()
}

// EQ returns the master equalizer.
func (b *Bus) EQ() *effects.EQ5Band { return b.eq }

// Process mixes n frames of voice output from inL/inR through the bus into
// outL/outR. n must not exceed Quantum.
func (b *Bus) Process(inL, inR, outL, outR []float32, n int) {
	for k := range b.params {
		g := b.gains[k][:n]
		p := &b.params[k]
		if !p.Pending() {
			v := float32(p.Value())
			for i := range g {
				g[i] = v
			}
			p.Skip(int64(n))
			continue
		}
		for i := range g {
			g[i] = float32(p.Next())
		}
	}
	delayTime := b.gains[lvDelayTime]
	delayFeedback := b.gains[lvDelayFeedback]
	delaySend := b.gains[lvDelaySend]
	reverbSend := b.gains[lvReverbSend]
	chorusSend := b.gains[lvChorusSend]

	for i := 0; i < n; i++ {
		xl, xr := inL[i], inR[i]
		b.delay.SetTime(float64(delayTime[i]))
		b.delay.SetFeedback(float64(delayFeedback[i]))
		dl, dr := b.delay.Process(xl, xr)
		rl, rr := b.reverb.Process(xl, xr)
		cl, cr := b.chorus.Process(xl, xr)
		b.wetL[i] = dl*delaySend[i] + rl*reverbSend[i] + cl*chorusSend[i]
		b.wetR[i] = dr*delaySend[i] + rr*reverbSend[i] + cr*chorusSend[i]
	}

	dryL := vek32.Mul_Into(b.dryL, inL[:n], b.gains[lvDry][:n])
	dryR := vek32.Mul_Into(b.dryR, inR[:n], b.gains[lvDry][:n])
	vek32.Mul_Inplace(b.wetL[:n], b.gains[lvWet][:n])
	vek32.Mul_Inplace(b.wetR[:n], b.gains[lvWet][:n])
	vek32.Add_Inplace(dryL, b.wetL[:n])
	vek32.Add_Inplace(dryR, b.wetR[:n])
	vek32.Mul_Inplace(dryL, b.gains[lvMaster][:n])
	vek32.Mul_Inplace(dryR, b.gains[lvMaster][:n])

	if b.eq.Flat() {
		copy(outL[:n], dryL)
		copy(outR[:n], dryR)
	} else {
		b.post.ProcessBlock(dryL, dryR, outL[:n], outR[:n])
	}
	b.publish()
}

func (b *Bus) publish() {
	for i := range b.params {
		b.levels[i].Store(math.Float64bits(b.params[i].Value()))
	}
}

// Levels returns the control point values at the end of the last block.
func (b *Bus) Levels() Levels {
	get := func(i int) float64 { return math.Float64frombits(b.levels[i].Load()) }
	return Levels{
		Master:        get(lvMaster),
		Dry:           get(lvDry),
		Wet:           get(lvWet),
		DelayTime:     get(lvDelayTime),
		DelayFeedback: get(lvDelayFeedback),
		DelaySend:     get(lvDelaySend),
		ReverbSend:    get(lvReverbSend),
		ChorusSend:    get(lvChorusSend),
	}
}
