// Package merge combines per-track tick streams into one time ordered
// stream and places it on a microsecond timeline.
package merge

import (
	"container/heap"
	"errors"
	"fmt"

	"go-pianofall/midi"
	"go-pianofall/midifile"
)

// DefaultTempo applies until the first tempo event (120 BPM).
const DefaultTempo uint32 = 500000

var ErrZeroResolution = errors.New("zero ticks per quarter note")

// RawEvent is a merged event still expressed in ticks. Tempo events are
// included.
type RawEvent struct {
	Tick  uint64
	Track int
	Event midi.Event
}

// -------------------- Cursor heap --------------------

type cursorHeap []*TrackCursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	ti, ei, _ := h[i].Peek()
	tj, ej, _ := h[j].Peek()
	if ti != tj {
		return ti < tj
	}
	// tempo changes at the same tick apply before performance events
	if ei.IsTempo() != ej.IsTempo() {
		return ei.IsTempo()
	}
	return h[i].track < h[j].track
}
func (h cursorHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x interface{}) { *h = append(*h, x.(*TrackCursor)) }
func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Merger yields the events of all tracks in ascending tick order. It is
// single pass; build a new one to start over.
type Merger struct {
	cursors cursorHeap
}

// NewMerger creates a merger over the given tracks. Track indexes are
// the slice positions; empty tracks are skipped.
func NewMerger(tracks [][]midi.TrackEvent) *Merger {
	m := &Merger{}
	for i, events := range tracks {
		c := NewTrackCursor(i, events)
		if !c.Exhausted() {
			m.cursors = append(m.cursors, c)
		}
	}
	heap.Init(&m.cursors)
	return m
}

// Next returns the next event, or false when all tracks are exhausted
func (m *Merger) Next() (RawEvent, bool) {
	if len(m.cursors) == 0 {
		return RawEvent{}, false
	}
	c := m.cursors[0]
	tick, ev, _ := c.Pull()
	if c.Exhausted() {
		heap.Pop(&m.cursors)
	} else {
		heap.Fix(&m.cursors, 0)
	}
	return RawEvent{Tick: tick, Track: c.track, Event: ev}, true
}

// Timeline converts merged ticks to microseconds through the running
// tempo. Each tick delta uses the tempo in effect before it. The sub-
// microsecond remainder is carried, so the running total never drifts
// from the exact value.
type Timeline struct {
	merger *Merger
	ppq    uint64
	tempo  uint32

	lastTick uint64
	us       uint64
	rem      uint64 // in 1/ppq microseconds
	tempos   int
}

// NewTimeline creates a timeline with the given resolution and starting
// tempo (0 selects DefaultTempo).
func NewTimeline(tracks [][]midi.TrackEvent, ppq uint16, tempo uint32) (*Timeline, error) {
	if ppq == 0 {
		return nil, ErrZeroResolution
	}
	if tempo == 0 {
		tempo = DefaultTempo
	}
	return &Timeline{
		merger: NewMerger(tracks),
		ppq:    uint64(ppq),
		tempo:  tempo,
	}, nil
}

// FromFile builds a timeline over all tracks of a loaded file
func FromFile(f *midifile.File) (*Timeline, error) {
	tl, err := NewTimeline(Tracks(f), f.Resolution, DefaultTempo)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	return tl, nil
}

// Tracks returns the event slices of a file in track order
func Tracks(f *midifile.File) [][]midi.TrackEvent {
	tracks := make([][]midi.TrackEvent, len(f.Tracks))
	for i, t := range f.Tracks {
		tracks[i] = t.Events
	}
	return tracks
}

// Next returns the next non-tempo event with its time in microseconds
func (t *Timeline) Next() (midi.TimedEvent, bool) {
	for {
		raw, ok := t.merger.Next()
		if !ok {
			return midi.TimedEvent{}, false
		}
		t.advance(raw.Tick)
		if raw.Event.IsTempo() {
			t.tempos++
			if raw.Event.Tempo > 0 {
				t.tempo = raw.Event.Tempo
			}
			continue
		}
		return midi.TimedEvent{TimeUS: t.us, Track: raw.Track, Event: raw.Event}, true
	}
}

func (t *Timeline) advance(tick uint64) {
	elapsed := tick - t.lastTick
	t.lastTick = tick
	n := elapsed*uint64(t.tempo) + t.rem
	t.us += n / t.ppq
	t.rem = n % t.ppq
}

// Tempo returns the tempo currently in effect
func (t *Timeline) Tempo() uint32 { return t.tempo }

// TempoChanges returns the number of tempo events absorbed so far
func (t *Timeline) TempoChanges() int { return t.tempos }

// Collect drains the timeline into a slice
func (t *Timeline) Collect() []midi.TimedEvent {
	var events []midi.TimedEvent
	for {
		ev, ok := t.Next()
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

// CollectRaw drains a merger into a slice
func CollectRaw(m *Merger) []RawEvent {
	var events []RawEvent
	for {
		ev, ok := m.Next()
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}
