package widgets

import "go-pianofall/midi"

// Note is a sounding interval of one key, built from a note start and
// its matching end.
type Note struct {
	Key      uint8
	Channel  uint8
	Track    int
	Velocity uint8
	StartUS  int64
	EndUS    int64
}

// Notes pairs note starts with note ends. A start on a key that is
// already sounding ends the previous note. Notes never ended last until
// the final event. The result is ordered by start time.
func Notes(events []midi.TimedEvent) []Note {
	var notes []Note
	open := make(map[midi.Key]int)
	var last int64
	for _, te := range events {
		ev := te.Event
		last = int64(te.TimeUS)
		k := midi.Key{Track: te.Track, Channel: ev.Channel, Note: ev.Note}
		switch {
		case ev.IsNoteStart():
			if i, ok := open[k]; ok {
				notes[i].EndUS = last
			}
			open[k] = len(notes)
			notes = append(notes, Note{
				Key:      ev.Note,
				Channel:  ev.Channel,
				Track:    te.Track,
				Velocity: ev.Velocity,
				StartUS:  last,
				EndUS:    -1,
			})
		case ev.IsNoteEnd():
			if i, ok := open[k]; ok {
				notes[i].EndUS = last
				delete(open, k)
			}
		}
	}
	for _, i := range open {
		notes[i].EndUS = last
	}
	return notes
}

// IsBlack reports whether a MIDI key is a black piano key
func IsBlack(key uint8) bool {
	switch key % 12 {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}
