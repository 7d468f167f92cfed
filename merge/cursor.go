package merge

import "go-pianofall/midi"

// TrackCursor walks one track's events, tracking the absolute tick of
// the pending event. The events slice is owned by the loaded file; the
// cursor only indexes into it.
type TrackCursor struct {
	track  int
	events []midi.TrackEvent
	next   int
	tick   uint64
}

// NewTrackCursor positions a cursor on the first event of a track
func NewTrackCursor(track int, events []midi.TrackEvent) *TrackCursor {
	c := &TrackCursor{track: track, events: events}
	if len(events) > 0 {
		c.tick = uint64(events[0].Delta)
	}
	return c
}

// Track returns the track index
func (c *TrackCursor) Track() int { return c.track }

// Exhausted reports whether all events have been pulled
func (c *TrackCursor) Exhausted() bool { return c.next >= len(c.events) }

// Peek returns the pending event and its absolute tick without consuming it
func (c *TrackCursor) Peek() (uint64, midi.Event, bool) {
	if c.Exhausted() {
		return 0, midi.Event{}, false
	}
	return c.tick, c.events[c.next].Event, true
}

// Pull consumes the pending event and advances to the next one
func (c *TrackCursor) Pull() (uint64, midi.Event, bool) {
	tick, ev, ok := c.Peek()
	if !ok {
		return 0, midi.Event{}, false
	}
	c.next++
	if c.next < len(c.events) {
		c.tick += uint64(c.events[c.next].Delta)
	}
	return tick, ev, true
}

// Remaining returns the number of events not yet pulled
func (c *TrackCursor) Remaining() int {
	return len(c.events) - c.next
}
