package voice

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/cbegin/patchpal-go/internal/noise"
)

// DefaultPolyphony is the voice cap used when none is configured.
const DefaultPolyphony = 32

// StealPolicy chooses which voice gives way when every slot is busy.
type StealPolicy int

const (
	StealOldest StealPolicy = iota
	StealQuietest
)

func (p StealPolicy) String() string {
	switch p {
	case StealOldest:
		return "oldest"
	case StealQuietest:
		return "quietest"
	}
	return fmt.Sprintf("StealPolicy(%d)", int(p))
}

// ParseStealPolicy accepts "oldest" or "quietest". An empty string selects
// the default.
func ParseStealPolicy(s string) (StealPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "oldest":
		return StealOldest, nil
	case "quietest":
		return StealQuietest, nil
	}
	return StealOldest, fmt.Errorf("unknown steal policy %q", s)
}

// Status is a snapshot of one voice for callers outside the render side.
type Status struct {
	ID        uint64
	Note      int
	State     State
	Amplitude float64
	Started   int64 // frame the voice started at
}

// slot mirrors a voice's public state with atomics so the control side can
// read it while the render side writes.
type slot struct {
	id    atomic.Uint64
	note  atomic.Int32
	state atomic.Int32
	amp   atomic.Uint64
	start atomic.Int64
}

func (s *slot) publish(v *Voice) {
	s.note.Store(int32(v.note))
	s.state.Store(int32(v.state))
	s.amp.Store(math.Float64bits(v.amp.Value()))
	s.start.Store(v.Started())
	s.id.Store(v.id)
}

func (s *slot) clear() {
	s.id.Store(0)
	s.state.Store(int32(Idle))
	s.amp.Store(0)
}

// Manager owns a fixed arena of voices. All methods except Snapshot, Live
// and Steals belong to the render side and must be called from one
// goroutine.
type Manager struct {
	sampleRate float64
	policy     StealPolicy
	voices     []Voice
	slots      []slot
	noise      *noise.Generator

	steals atomic.Int64
	live   atomic.Int32
}

// NewManager creates a manager with room for polyphony voices. Finished
// voices hand their noise buffers back to gen, which may be nil.
func NewManager(sampleRate float64, polyphony int, policy StealPolicy, gen *noise.Generator) *Manager {
	if polyphony <= 0 {
		polyphony = DefaultPolyphony
	}
	return &Manager{
		sampleRate: sampleRate,
		policy:     policy,
		voices:     make([]Voice, polyphony),
		slots:      make([]slot, polyphony),
		noise:      gen,
	}
}

func (m *Manager) Polyphony() int { return len(m.voices) }

// Start places a voice in a free slot, stealing one when none is free.
// It reports whether a voice was stolen.
func (m *Manager) Start(s *Spec, now int64) (stolen bool) {
	idx := m.free()
	if idx < 0 {
		idx = m.victim()
		m.teardown(idx)
		m.steals.Add(1)
		stolen = true
	}
	v := &m.voices[idx]
	v.start(s, now, m.sampleRate)
	m.slots[idx].publish(v)
	m.live.Add(1)
	return stolen
}

// Release begins the release tail of the voice with the given id. It
// returns false when no such voice is sounding or it is already releasing.
func (m *Manager) Release(id uint64, now int64, releaseSeconds float64) bool {
	for i := range m.voices {
		v := &m.voices[i]
		if v.id != id || v.state == Idle || v.state == Finished {
			continue
		}
		if v.state == Releasing {
			return false
		}
		v.release(now, releaseSeconds, m.sampleRate)
		m.slots[i].publish(v)
		return true
	}
	return false
}

// Render mixes n frames starting at frame now into l and r. Voices whose
// release tail ends inside the block stop at their deadline frame and are
// torn down.
func (m *Manager) Render(l, r []float32, now int64, n int) {
	end := now + int64(n)
	for i := range m.voices {
		v := &m.voices[i]
		if v.state == Idle || v.state == Finished {
			continue
		}
		count := n
		if v.deadline >= 0 && v.deadline < end {
			count = int(v.deadline - now)
			if count < 0 {
				count = 0
			}
		}
		if count > 0 {
			v.render(l, r, count, m.sampleRate)
		}
		v.updateState(now + int64(count))
		if v.deadline >= 0 && v.deadline <= end {
			m.teardown(i)
			continue
		}
		m.slots[i].publish(v)
	}
}

// Reset tears down every voice immediately.
func (m *Manager) Reset() {
	for i := range m.voices {
		if m.voices[i].state != Idle && m.voices[i].state != Finished {
			m.teardown(i)
		}
	}
}

// Voice returns the arena voice with the given id, if it is sounding.
func (m *Manager) Voice(id uint64) (*Voice, bool) {
	for i := range m.voices {
		v := &m.voices[i]
		if v.id == id && v.state != Idle && v.state != Finished {
			return v, true
		}
	}
	return nil, false
}

// Snapshot appends the status of every sounding voice to dst.
func (m *Manager) Snapshot(dst []Status) []Status {
	for i := range m.slots {
		s := &m.slots[i]
		id := s.id.Load()
		if id == 0 {
			continue
		}
		dst = append(dst, Status{
			ID:        id,
			Note:      int(s.note.Load()),
			State:     State(s.state.Load()),
			Amplitude: math.Float64frombits(s.amp.Load()),
			Started:   s.start.Load(),
		})
	}
	return dst
}

// Sounding reports whether the voice with the given id still occupies a
// slot. Safe to call from any goroutine.
func (m *Manager) Sounding(id uint64) bool {
	for i := range m.slots {
		if m.slots[i].id.Load() == id {
			return true
		}
	}
	return false
}

// Live returns the number of occupied slots.
func (m *Manager) Live() int { return int(m.live.Load()) }

// Steals returns how many voices have been cut to make room.
func (m *Manager) Steals() int64 { return m.steals.Load() }

func (m *Manager) free() int {
	for i := range m.voices {
		if s := m.voices[i].state; s == Idle || s == Finished {
			return i
		}
	}
	return -1
}

// victim picks the slot to steal. Releasing voices are preferred over held
// ones under either policy.
func (m *Manager) victim() int {
	best := -1
	bestReleasing := false
	for i := range m.voices {
		v := &m.voices[i]
		releasing := v.state == Releasing
		if best < 0 {
			best, bestReleasing = i, releasing
			continue
		}
		if releasing != bestReleasing {
			if releasing {
				best, bestReleasing = i, true
			}
			continue
		}
		b := &m.voices[best]
		switch m.policy {
		case StealQuietest:
			if v.amp.Value() < b.amp.Value() {
				best = i
			}
		default:
			if v.started < b.started {
				best = i
			}
		}
	}
	return best
}

func (m *Manager) teardown(i int) {
	v := &m.voices[i]
	if buf := v.finish(); buf != nil && m.noise != nil {
		m.noise.Release(buf)
	}
	m.slots[i].clear()
	m.live.Add(-1)
}
