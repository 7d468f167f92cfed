// Package player maps user actions onto the playback scheduler.
package player

import (
	"io"
	"time"

	"go.uber.org/multierr"

	"go-pianofall/clock"
	"go-pianofall/debug"
	"go-pianofall/merge"
	"go-pianofall/midi"
)

// Rate limits and step, in permille
const (
	MinScale  uint16 = 250
	MaxScale  uint16 = 4000
	ScaleStep uint16 = 50
)

// DefaultSeekStep is the distance of one seek
const DefaultSeekStep = 5 * time.Second

// Transport is the part of the scheduler the controls drive
type Transport interface {
	Play(pos int64)
	Seek(pos int64)
	Stop()
	SetScale(permille uint16)
	SetEvents(events []midi.TimedEvent)
	IsFinished() bool
	Listener() clock.Listener
	Close()
	Done() <-chan struct{}
	Err() error
}

// Options configure a Control
type Options struct {
	Scale     uint16        // initial rate, 1000 if zero
	SeekStep  time.Duration // DefaultSeekStep if zero
	LeadIn    time.Duration // playback starts this long before 0
	Transpose int
}

// Control holds the user facing playback state
type Control struct {
	transport Transport
	listener  clock.Listener
	events    []midi.TimedEvent // untransposed

	paused   bool
	scale    uint16
	shift    int
	seekStep int64
	leadIn   int64
}

// New creates controls over a transport and the events to play
func New(t Transport, events []midi.TimedEvent, opts Options) *Control {
	if opts.Scale == 0 {
		opts.Scale = clock.RealTime
	}
	if opts.SeekStep <= 0 {
		opts.SeekStep = DefaultSeekStep
	}
	return &Control{
		transport: t,
		listener:  t.Listener(),
		events:    events,
		scale:     clampScale(opts.Scale),
		shift:     clampShift(opts.Transpose),
		seekStep:  opts.SeekStep.Microseconds(),
		leadIn:    opts.LeadIn.Microseconds(),
	}
}

func clampScale(s uint16) uint16 {
	return min(max(s, MinScale), MaxScale)
}

func clampShift(s int) int {
	return min(max(s, -127), 127)
}

// Start loads the events and begins playback after the lead-in
func (c *Control) Start() {
	c.transport.SetScale(c.scale)
	c.transport.SetEvents(c.playEvents())
	if !c.paused {
		c.transport.Play(-c.leadIn)
	} else {
		c.transport.Seek(-c.leadIn)
	}
	debug.Log("control", "start: %d events scale=%d shift=%d", len(c.events), c.scale, c.shift)
}

func (c *Control) playEvents() []midi.TimedEvent {
	if c.shift == 0 {
		return merge.FilterTracks(c.events, nil)
	}
	return merge.Transpose(c.events, c.shift)
}

// Position returns the playback position in microseconds
func (c *Control) Position() int64 { return c.listener.Position() }

// PositionAfter predicts the position once d has elapsed
func (c *Control) PositionAfter(d time.Duration) int64 { return c.listener.PositionAfter(d) }

// Paused reports whether playback is paused by the user
func (c *Control) Paused() bool { return c.paused }

// Scale returns the playback rate in permille
func (c *Control) Scale() uint16 { return c.scale }

// Shift returns the transposition in semitones
func (c *Control) Shift() int { return c.shift }

// TogglePause pauses or continues at the current position
func (c *Control) TogglePause() {
	c.paused = !c.paused
	if c.paused {
		c.transport.Stop()
	} else {
		c.transport.Play(c.Position())
	}
	debug.Log("control", "paused=%v at %d", c.paused, c.Position())
}

// Faster raises the rate by one step
func (c *Control) Faster() { c.setScale(c.scale + ScaleStep) }

// Slower lowers the rate by one step
func (c *Control) Slower() { c.setScale(c.scale - ScaleStep) }

func (c *Control) setScale(s uint16) {
	c.scale = clampScale(s)
	c.transport.SetScale(c.scale)
}

// SeekForward jumps ahead by one seek step
func (c *Control) SeekForward() { c.seekTo(c.Position() + c.seekStep) }

// SeekBackward jumps back by one seek step, not before 0
func (c *Control) SeekBackward() { c.seekTo(max(c.Position()-c.seekStep, 0)) }

func (c *Control) seekTo(pos int64) {
	if c.paused {
		c.transport.Seek(pos)
	} else {
		c.transport.Play(pos)
	}
	debug.Log("control", "seek to %d", pos)
}

// TransposeUp shifts all notes a semitone up
func (c *Control) TransposeUp() { c.transpose(c.shift + 1) }

// TransposeDown shifts all notes a semitone down
func (c *Control) TransposeDown() { c.transpose(c.shift - 1) }

func (c *Control) transpose(shift int) {
	shift = clampShift(shift)
	if shift == c.shift {
		return
	}
	c.shift = shift
	c.transport.SetEvents(c.playEvents())
	debug.Log("control", "transpose %+d", c.shift)
}

// Finished reports whether the scheduler has exited
func (c *Control) Finished() bool { return c.transport.IsFinished() }

// Close shuts the scheduler down, waits for it and closes the extra
// resources. All errors are combined.
func (c *Control) Close(closers ...io.Closer) error {
	c.transport.Close()
	<-c.transport.Done()
	err := c.transport.Err()
	for _, cl := range closers {
		err = multierr.Append(err, cl.Close())
	}
	return err
}
