// Package patchpal is a polyphonic wavetable synthesizer engine. An Engine
// turns a patch and a stream of note events into continuous stereo audio,
// either through an output device or by pulling samples with Process.
package patchpal

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/cbegin/patchpal-go/internal/audio"
	"github.com/cbegin/patchpal-go/internal/bus"
	"github.com/cbegin/patchpal-go/internal/effects"
	"github.com/cbegin/patchpal-go/internal/meter"
	"github.com/cbegin/patchpal-go/internal/noise"
	"github.com/cbegin/patchpal-go/internal/voice"
	"github.com/cbegin/patchpal-go/internal/wavetable"
	"github.com/cbegin/patchpal-go/patch"
)

// Output backends.
const (
	BackendEbiten    = audio.Ebiten
	BackendOto       = audio.Oto
	BackendPortAudio = audio.PortAudio
	BackendNull      = audio.Null
)

const (
	DefaultSampleRate = 48000
	DefaultPolyphony  = voice.DefaultPolyphony
	DefaultQueueSize  = 256
)

// StealPolicy picks the voice cut when polyphony is exhausted.
type StealPolicy = voice.StealPolicy

const (
	StealOldest   = voice.StealOldest
	StealQuietest = voice.StealQuietest
)

// ParseStealPolicy accepts "oldest" or "quietest".
func ParseStealPolicy(s string) (StealPolicy, error) { return voice.ParseStealPolicy(s) }

// VoiceState is the envelope stage of a sounding voice.
type VoiceState = voice.State

const (
	VoiceAttacking  = voice.Attacking
	VoiceDecaying   = voice.Decaying
	VoiceSustaining = voice.Sustaining
	VoiceReleasing  = voice.Releasing
	VoiceFinished   = voice.Finished
)

// VoiceInfo describes one sounding voice.
type VoiceInfo = voice.Status

// BusLevels are the master bus control values as last rendered.
type BusLevels = bus.Levels

// Stats are engine counters for diagnostics.
type Stats struct {
	Frames          int64
	LiveVoices      int
	Steals          int64
	DroppedCommands int64
	CachedWaveforms int
	WaveformBuilds  int64
}

type Option func(*engineConfig)

type engineConfig struct {
	sampleRate int
	backend    string
	polyphony  int
	policy     StealPolicy
	logger     *slog.Logger
	seed       int64
	queueSize  int
	sampleTap  func([]float32)
	volume     float64
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		sampleRate: DefaultSampleRate,
		backend:    BackendEbiten,
		polyphony:  DefaultPolyphony,
		policy:     StealOldest,
		logger:     slog.Default(),
		seed:       1,
		queueSize:  DefaultQueueSize,
		volume:     bus.DefaultMaster,
	}
}

func WithSampleRate(sampleRate int) Option {
	return func(cfg *engineConfig) {
		cfg.sampleRate = sampleRate
	}
}

// WithBackend selects the output device backend. BackendNull opens no
// device; the host drives rendering through Process.
func WithBackend(name string) Option {
	return func(cfg *engineConfig) {
		cfg.backend = name
	}
}

// WithPolyphony caps the number of simultaneously sounding voices,
// release tails included.
func WithPolyphony(n int) Option {
	return func(cfg *engineConfig) {
		cfg.polyphony = n
	}
}

func WithStealPolicy(p StealPolicy) Option {
	return func(cfg *engineConfig) {
		cfg.policy = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *engineConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithSeed seeds the noise sources and the reverb impulse.
func WithSeed(seed int64) Option {
	return func(cfg *engineConfig) {
		cfg.seed = seed
	}
}

// WithQueueSize sizes the note command queue between callers and the
// render side.
func WithQueueSize(n int) Option {
	return func(cfg *engineConfig) {
		cfg.queueSize = n
	}
}

// WithMasterVolume sets the master gain the engine starts at on each
// Initialize, clamped to [0, 1.2].
func WithMasterVolume(v float64) Option {
	return func(cfg *engineConfig) {
		cfg.volume = bus.ClampMaster(v)
	}
}

// WithSampleTap installs a callback invoked with each rendered stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) Option {
	return func(cfg *engineConfig) {
		cfg.sampleTap = tap
	}
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdRelease
)

type command struct {
	kind    commandKind
	spec    *voice.Spec
	id      uint64
	release float64
}

// renderState is everything the render side owns. It exists between
// Initialize and Shutdown.
type renderState struct {
	mu     sync.Mutex
	closed bool

	cmds    chan command
	targets atomic.Pointer[bus.Targets]
	master  atomic.Pointer[float64]

	voices *voice.Manager
	bus    *bus.Bus
	meter  *meter.Meter
	tap    func([]float32)

	frame     int64
	published atomic.Int64
	mixL      []float32
	mixR      []float32
	outL      []float32
	outR      []float32
}

// Engine is one synthesizer instance bound to at most one output device.
// Its methods are safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	cfg    engineConfig
	logger *slog.Logger

	cache  *wavetable.Cache
	noise  *noise.Generator
	index  *voice.Index
	patch  *patch.Patch
	nextID uint64
	volume float64
	eq     [effects.EQBands]float32

	out     audio.Output
	state   atomic.Pointer[renderState]
	dropped atomic.Int64
}

// NewEngine creates an engine. No device is opened until Initialize.
func NewEngine(opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if cfg.polyphony <= 0 {
		return nil, errors.New("polyphony must be positive")
	}
	if cfg.queueSize < 2 {
		return nil, errors.New("queue size must be at least 2")
	}
	e := &Engine{
		cfg:    cfg,
		logger: cfg.logger,
		cache:  wavetable.NewCache(),
		noise:  noise.NewGenerator(cfg.sampleRate, cfg.seed),
		index:  voice.NewIndex(),
		volume: cfg.volume,
	}
	for i := range e.eq {
		e.eq[i] = 1
	}
	return e, nil
}

func (e *Engine) SampleRate() int { return e.cfg.sampleRate }

// Initialized reports whether Initialize has completed and Shutdown has
// not been called since.
func (e *Engine) Initialized() bool { return e.state.Load() != nil }

// Initialize builds the master bus and opens the output device. Calling it
// on an initialized engine does nothing.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Load() != nil {
		return nil
	}
	sr := e.cfg.sampleRate
	b, err := bus.New(sr, rand.New(rand.NewSource(e.cfg.seed)))
	if err != nil {
		return fmt.Errorf("build master bus: %w", err)
	}
	for band, g := range e.eq {
		b.EQ().SetGain(band, g)
	}
	b.PresetMaster(e.cfg.volume)
	e.cache.Warm()
	rs := &renderState{
		cmds:   make(chan command, e.cfg.queueSize),
		voices: voice.NewManager(float64(sr), e.cfg.polyphony, e.cfg.policy, e.noise),
		bus:    b,
		meter:  meter.New(),
		tap:    e.cfg.sampleTap,
		mixL:   make([]float32, bus.Quantum),
		mixR:   make([]float32, bus.Quantum),
		outL:   make([]float32, bus.Quantum),
		outR:   make([]float32, bus.Quantum),
	}
	if e.patch != nil {
		t := bus.TargetsFor(e.patch)
		rs.targets.Store(&t)
	}
	e.volume = e.cfg.volume
	e.state.Store(rs)

	out, err := audio.Open(e.cfg.backend, sr, e)
	if err != nil {
		e.state.Store(nil)
		e.logger.Error("audio output unavailable", "backend", e.cfg.backend, "err", err)
		return err
	}
	e.out = out
	e.logger.Info("engine initialized",
		"sampleRate", sr,
		"backend", e.cfg.backend,
		"polyphony", rs.voices.Polyphony(),
		"stealPolicy", e.cfg.policy.String(),
	)
	return nil
}

// Shutdown closes the device and tears down every voice and bus node. The
// stored patch survives; the engine may be initialized again.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rs := e.state.Load()
	if rs == nil {
		return nil
	}
	var err error
	if e.out != nil {
		err = e.out.Close()
		e.out = nil
	}
	e.state.Store(nil)

	rs.mu.Lock()
	rs.closed = true
drain:
	for {
		select {
		case c := <-rs.cmds:
			if c.kind == cmdStart {
				e.noise.Release(c.spec.Noise)
			}
		default:
			break drain
		}
	}
	rs.voices.Reset()
	rs.bus.Reset()
	rs.meter.Reset()
	rs.mu.Unlock()

	e.index.Clear()
	e.logger.Info("engine shut down", "frames", rs.published.Load(), "steals", rs.voices.Steals())
	return err
}

// SetPatch stores p for later notes and ramps the master bus toward its
// effect settings. A patch naming an unknown wavetable is rejected.
func (e *Engine) SetPatch(p *patch.Patch) error {
	if p == nil {
		return ErrNoPatch
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setPatchLocked(p)
}

func (e *Engine) setPatchLocked(p *patch.Patch) error {
	if err := p.Validate(); err != nil {
		e.logger.Warn("patch rejected", "name", p.Meta.Name, "err", err)
		return err
	}
	cp := *p
	e.patch = &cp
	if rs := e.state.Load(); rs != nil {
		t := bus.TargetsFor(&cp)
		rs.targets.Store(&t)
	}
	return nil
}

// Patch returns a copy of the stored patch, or nil.
func (e *Engine) Patch() *patch.Patch {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.patch == nil {
		return nil
	}
	cp := *e.patch
	return &cp
}

// SetMasterVolume ramps the master gain to v, clamped to [0, 1.2].
func (e *Engine) SetMasterVolume(v float64) {
	v = bus.ClampMaster(v)
	e.mu.Lock()
	defer e.mu.Unlock()
	rs := e.state.Load()
	if rs == nil {
		return
	}
	e.volume = v
	rs.master.Store(&v)
}

// MasterVolume returns the master gain most recently requested.
func (e *Engine) MasterVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// NoteOn starts a voice for note. A non-nil p is applied as with SetPatch
// first; a nil p plays the stored patch. A note that is already sounding
// is released before the new voice starts.
func (e *Engine) NoteOn(note int, velocity float64, p *patch.Patch) error {
	if note < 0 || note > 127 {
		return fmt.Errorf("%w: %d", ErrNoteOutOfRange, note)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rs := e.state.Load()
	if rs == nil {
		return nil
	}
	if p != nil {
		if err := e.setPatchLocked(p); err != nil {
			return err
		}
	}
	if e.patch == nil {
		return ErrNoPatch
	}
	if cap(rs.cmds)-len(rs.cmds) < 2 {
		return e.drop("note on", note)
	}

	e.nextID++
	id := e.nextID
	spec, err := voice.Prepare(e.patch, id, note, patch.Clamp(velocity, 0, 1), e.cache, e.noise)
	if err != nil {
		return err
	}
	if prev, ok := e.index.Attach(note, id); ok {
		rs.cmds <- command{kind: cmdRelease, id: prev, release: e.patch.AmpEnv.Release}
	}
	rs.cmds <- command{kind: cmdStart, spec: spec}
	return nil
}

// NoteOff begins the release tail of the voice playing note, if any. The
// note can be started again at once; the old voice keeps sounding until
// its tail ends.
func (e *Engine) NoteOff(note int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.noteOffLocked(note)
}

func (e *Engine) noteOffLocked(note int) error {
	rs := e.state.Load()
	if rs == nil || e.patch == nil {
		return nil
	}
	id, ok := e.index.Lookup(note)
	if !ok {
		return nil
	}
	select {
	case rs.cmds <- command{kind: cmdRelease, id: id, release: e.patch.AmpEnv.Release}:
		e.index.Detach(note)
		return nil
	default:
		return e.drop("note off", note)
	}
}

// AllNotesOff releases every active note. Notes whose release did not fit
// in the command queue stay active and are reported in the returned error.
func (e *Engine) AllNotesOff() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	dropped := 0
	for _, n := range e.index.Notes() {
		if err := e.noteOffLocked(n); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("all notes off: %d notes still sounding: %w", dropped, ErrCommandQueueFull)
	}
	return nil
}

func (e *Engine) drop(what string, note int) error {
	e.dropped.Add(1)
	e.logger.Warn("command dropped", "op", what, "note", note)
	return ErrCommandQueueFull
}

// ActiveNotes returns the notes a NoteOff would currently address.
func (e *Engine) ActiveNotes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Notes()
}

// OutputLevel returns the RMS level of the most recent 1024 output frames,
// or 0 before Initialize.
func (e *Engine) OutputLevel() float64 {
	rs := e.state.Load()
	if rs == nil {
		return 0
	}
	return rs.meter.Level()
}

// Voices returns every sounding voice, release tails included.
func (e *Engine) Voices() []VoiceInfo {
	rs := e.state.Load()
	if rs == nil {
		return nil
	}
	return rs.voices.Snapshot(nil)
}

// BusLevels returns the master bus control values, or zero values before
// Initialize.
func (e *Engine) BusLevels() BusLevels {
	rs := e.state.Load()
	if rs == nil {
		return BusLevels{}
	}
	return rs.bus.Levels()
}

// SetEQBand sets the gain for a master EQ band (0-4). 1.0 = unity.
// Band frequencies: 0=<200Hz, 1=200-800Hz, 2=800-2.5kHz, 3=2.5-8kHz, 4=>8kHz.
// The setting survives Shutdown and Initialize.
func (e *Engine) SetEQBand(band int, gain float32) {
	if band < 0 || band >= effects.EQBands {
		return
	}
	if gain != gain {
		gain = 1
	}
	gain = min(max(gain, 0), effects.MaxEQGain)
	e.mu.Lock()
	defer e.mu.Unlock()
	if rs := e.state.Load(); rs != nil {
		rs.bus.EQ().SetGain(band, gain)
	}
	e.eq[band] = gain
}

// EQBand returns the gain for a master EQ band (0-4).
func (e *Engine) EQBand(band int) float32 {
	if band < 0 || band >= effects.EQBands {
		return 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eq[band]
}

// LiveVoices returns the number of sounding voices, release tails included.
func (e *Engine) LiveVoices() int {
	rs := e.state.Load()
	if rs == nil {
		return 0
	}
	return rs.voices.Live()
}

func (e *Engine) Stats() Stats {
	s := Stats{
		DroppedCommands: e.dropped.Load(),
		CachedWaveforms: e.cache.Len(),
		WaveformBuilds:  e.cache.Builds(),
	}
	if rs := e.state.Load(); rs != nil {
		s.Frames = rs.published.Load()
		s.LiveVoices = rs.voices.Live()
		s.Steals = rs.voices.Steals()
	}
	return s
}

// Process renders len(dst)/2 interleaved stereo frames. It is called by the
// output device, or directly by hosts using BackendNull. Before Initialize
// it produces silence.
func (e *Engine) Process(dst []float32) {
	rs := e.state.Load()
	if rs == nil {
		clear(dst)
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		clear(dst)
		return
	}
	frames := len(dst) / 2
	for off := 0; off < frames; {
		n := min(bus.Quantum, frames-off)
		rs.quantum(dst[off*2:(off+n)*2], n)
		off += n
	}
	if len(dst)%2 == 1 {
		dst[len(dst)-1] = 0
	}
	if rs.tap != nil {
		rs.tap(dst)
	}
}

func (rs *renderState) quantum(dst []float32, n int) {
	rs.drain()
	if t := rs.targets.Swap(nil); t != nil {
		rs.bus.Apply(*t)
	}
	if v := rs.master.Swap(nil); v != nil {
		rs.bus.SetMaster(*v)
	}

	mixL, mixR := rs.mixL[:n], rs.mixR[:n]
	clear(mixL)
	clear(mixR)
	rs.voices.Render(mixL, mixR, rs.frame, n)
	rs.bus.Process(mixL, mixR, rs.outL, rs.outR, n)
	for i := 0; i < n; i++ {
		dst[2*i] = rs.outL[i]
		dst[2*i+1] = rs.outR[i]
	}
	rs.meter.Write(dst)
	for i, v := range dst {
		if v > 1 {
			dst[i] = 1
		} else if v < -1 {
			dst[i] = -1
		}
	}
	rs.frame += int64(n)
	rs.published.Store(rs.frame)
}

func (rs *renderState) drain() {
	for {
		select {
		case c := <-rs.cmds:
			switch c.kind {
			case cmdStart:
				rs.voices.Start(c.spec, rs.frame)
			case cmdRelease:
				rs.voices.Release(c.id, rs.frame, c.release)
			}
		default:
			return
		}
	}
}
