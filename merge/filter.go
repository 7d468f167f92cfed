package merge

import "go-pianofall/midi"

// FilterTracks keeps the events of the listed tracks. A nil list keeps
// everything. The result is always a new slice.
func FilterTracks(events []midi.TimedEvent, tracks []int) []midi.TimedEvent {
	if tracks == nil {
		return append([]midi.TimedEvent(nil), events...)
	}
	keep := make(map[int]bool, len(tracks))
	for _, t := range tracks {
		keep[t] = true
	}
	out := make([]midi.TimedEvent, 0, len(events))
	for _, ev := range events {
		if keep[ev.Track] {
			out = append(out, ev)
		}
	}
	return out
}

// Transpose shifts keyed events by the given number of semitones.
// Events whose key leaves 0..127 are dropped.
func Transpose(events []midi.TimedEvent, shift int) []midi.TimedEvent {
	out := make([]midi.TimedEvent, 0, len(events))
	for _, ev := range events {
		switch ev.Event.Type {
		case midi.NoteOn, midi.NoteOff, midi.PolyAftertouch:
			key := int(ev.Event.Note) + shift
			if key < 0 || key > 127 {
				continue
			}
			ev.Event.Note = uint8(key)
		}
		out = append(out, ev)
	}
	return out
}

// EndUS returns the time of the last event, or 0 for an empty list
func EndUS(events []midi.TimedEvent) uint64 {
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].TimeUS
}
