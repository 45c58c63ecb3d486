// Package automation schedules smooth value changes on control points.
//
// A Param is owned by the render timeline. Its clock is the frame index of
// the next value it will produce; segments are scheduled in frames.
package automation

import "math"

const maxSegments = 8

type segmentKind int

const (
	segSet segmentKind = iota
	segLinear
	segTarget
)

type segment struct {
	kind    segmentKind
	at      int64 // set: jump frame; linear: end frame; target: start frame
	value   float64
	tau     float64 // target time constant in frames
	started bool
}

// Param is a control point whose value follows scheduled segments, in the
// manner of a Web Audio AudioParam. It never allocates after creation.
type Param struct {
	value  float64
	now    int64
	from   float64 // value at the start of the front segment
	fromAt int64
	queue  [maxSegments]segment
	head   int
	n      int
}

// Reset drops all segments and pins the value at frame now.
func (p *Param) Reset(value float64, now int64) {
	p.value = value
	p.now = now
	p.from = value
	p.fromAt = now
	p.head = 0
	p.n = 0
}

// Value returns the most recently produced value.
func (p *Param) Value() float64 { return p.value }

// Now returns the frame of the next value Next will produce.
func (p *Param) Now() int64 { return p.now }

// Pending reports whether any segment is still scheduled.
func (p *Param) Pending() bool { return p.n > 0 }

// SetValueAt jumps to value at frame at.
func (p *Param) SetValueAt(value float64, at int64) bool {
	return p.push(segment{kind: segSet, at: at, value: value})
}

// LinearRampTo ramps linearly from the end of the previous segment (or the
// current value) to value, arriving at frame end.
func (p *Param) LinearRampTo(value float64, end int64) bool {
	return p.push(segment{kind: segLinear, at: end, value: value})
}

// TargetAt approaches target exponentially from frame start with time
// constant tau frames. A target segment runs until Hold is called.
func (p *Param) TargetAt(target float64, start int64, tau float64) bool {
	if tau <= 0 {
		return p.SetValueAt(target, start)
	}
	return p.push(segment{kind: segTarget, at: start, value: target, tau: tau})
}

// Hold cancels every scheduled segment and freezes the value where it is,
// so a following ramp starts from the audible value instead of jumping.
func (p *Param) Hold() {
	p.head = 0
	p.n = 0
	p.from = p.value
	p.fromAt = p.now
}

// RampTo holds the current value and ramps linearly to value over frames.
func (p *Param) RampTo(value float64, frames int64) {
	p.Hold()
	if frames <= 0 {
		p.SetValueAt(value, p.now)
		return
	}
	p.LinearRampTo(value, p.now+frames)
}

func (p *Param) push(s segment) bool {
	if p.n == maxSegments {
		return false
	}
	if p.n == 0 {
		p.from = p.value
		p.fromAt = p.now
	}
	p.queue[(p.head+p.n)%maxSegments] = s
	p.n++
	return true
}

func (p *Param) pop() {
	s := &p.queue[p.head]
	p.from = s.value
	p.fromAt = s.at
	p.head = (p.head + 1) % maxSegments
	p.n--
}

// Next produces the value at the current frame and advances one frame.
func (p *Param) Next() float64 {
	v := p.valueAt(p.now)
	p.now++
	return v
}

// Skip advances frames without producing values.
func (p *Param) Skip(frames int64) {
	if frames <= 0 {
		return
	}
	p.valueAt(p.now + frames - 1)
	p.now += frames
}

func (p *Param) valueAt(t int64) float64 {
	for p.n > 0 {
		s := &p.queue[p.head]
		switch s.kind {
		case segSet:
			if t < s.at {
				return p.value
			}
			p.value = s.value
			p.pop()
		case segLinear:
			if t >= s.at {
				p.value = s.value
				p.pop()
				continue
			}
			if t < p.fromAt {
				return p.value
			}
			frac := float64(t-p.fromAt) / float64(s.at-p.fromAt)
			p.value = p.from + (s.value-p.from)*frac
			return p.value
		case segTarget:
			if t < s.at {
				return p.value
			}
			if !s.started {
				s.started = true
				p.from = p.value
				p.fromAt = s.at
			}
			p.value = s.value + (p.from-s.value)*math.Exp(-float64(t-s.at)/s.tau)
			return p.value
		}
	}
	return p.value
}
