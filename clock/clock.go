// Package clock provides the playback position shared between the
// scheduler and the render loop. One Controller writes; any number of
// Listeners read through the same lock.
package clock

import (
	"sync"
	"time"
)

// RealTime is the scale at which the clock follows the wall clock.
const RealTime uint16 = 1000

// Position is the clock record. While running, the effective position
// is PosUS plus the wall time elapsed since Anchor, scaled by
// ScalePermille/1000.
type Position struct {
	PosUS         int64
	Anchor        time.Time // zero while stopped
	ScalePermille uint16
}

// Running reports whether the position advances with wall time
func (p Position) Running() bool { return !p.Anchor.IsZero() }

// At evaluates the effective position at the given instant
func (p Position) At(now time.Time) int64 {
	if p.Anchor.IsZero() {
		return p.PosUS
	}
	elapsed := now.Sub(p.Anchor)
	return p.PosUS + int64(elapsed/time.Microsecond)*int64(p.ScalePermille)/1000
}

// collapse folds the elapsed time into PosUS and re-anchors at now
func (p *Position) collapse(now time.Time) {
	if p.Anchor.IsZero() {
		return
	}
	p.PosUS = p.At(now)
	p.Anchor = now
}

type shared struct {
	mu  sync.Mutex
	pos Position
	now func() time.Time
}

func (s *shared) read(fn func(p Position, now time.Time) int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.pos, s.now())
}

// Controller is the writing side of the clock. Only the scheduler holds one.
type Controller struct {
	Listener
}

// New creates a stopped clock at position 0 and real-time scale
func New() *Controller {
	return NewWithSource(time.Now)
}

// NewWithSource creates a clock reading time from now. Used by tests to
// drive the clock deterministically.
func NewWithSource(now func() time.Time) *Controller {
	return &Controller{Listener{s: &shared{
		pos: Position{ScalePermille: RealTime},
		now: now,
	}}}
}

// NewListener returns a read-only handle over the same position
func (c *Controller) NewListener() Listener {
	return c.Listener
}

// SetPosition sets the absolute position. A running clock keeps running
// from the new position.
func (c *Controller) SetPosition(us int64) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos.PosUS = us
	if s.pos.Running() {
		s.pos.Anchor = s.now()
	}
}

// SetScale freezes the position reached at the old scale, then applies
// the new one.
func (c *Controller) SetScale(permille uint16) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos.collapse(s.now())
	s.pos.ScalePermille = permille
}

// Start lets the position advance. Starting a running clock does nothing.
func (c *Controller) Start() {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pos.Running() {
		s.pos.Anchor = s.now()
	}
}

// Stop freezes the position. Repeated calls do not move it.
func (c *Controller) Stop() {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos.collapse(s.now())
	s.pos.Anchor = time.Time{}
}

// Listener reads the clock. Copies share the underlying position.
type Listener struct {
	s *shared
}

// Position returns the effective position in microseconds
func (l Listener) Position() int64 {
	return l.s.read(func(p Position, now time.Time) int64 {
		return p.At(now)
	})
}

// PositionAfter returns the position the clock will have once d has
// elapsed, assuming nothing changes in between.
func (l Listener) PositionAfter(d time.Duration) int64 {
	return l.s.read(func(p Position, now time.Time) int64 {
		return p.At(now.Add(d))
	})
}

// IsRunning reports whether the clock is advancing
func (l Listener) IsRunning() bool {
	return l.Snapshot().Running()
}

// Scale returns the rate in permille
func (l Listener) Scale() uint16 {
	return l.Snapshot().ScalePermille
}

// Snapshot returns a copy of the position record
func (l Listener) Snapshot() Position {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.pos
}

// Until returns the wall time until the clock reaches pos at the current
// scale. It returns false when pos has been reached or less than a
// microsecond remains.
func (l Listener) Until(pos int64) (time.Duration, bool) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	cur := l.s.pos.At(l.s.now())
	scale := int64(l.s.pos.ScalePermille)
	if cur >= pos || scale == 0 {
		return 0, false
	}
	wait := (pos - cur) * 1000 / scale
	if wait == 0 {
		return 0, false
	}
	return time.Duration(wait) * time.Microsecond, true
}
