package midi

import "sort"

// Key identifies a sounding note by the track that started it.
type Key struct {
	Track   int
	Channel uint8
	Note    uint8
}

// KeySet tracks currently sounding keys so they can be released on
// stop or seek. Not safe for concurrent use; the scheduler owns it.
type KeySet struct {
	keys map[Key]struct{}
}

// NewKeySet creates an empty set
func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[Key]struct{})}
}

// Apply records the effect of a dispatched event.
func (s *KeySet) Apply(te TimedEvent) {
	e := te.Event
	k := Key{Track: te.Track, Channel: e.Channel, Note: e.Note}
	switch {
	case e.IsNoteStart():
		s.keys[k] = struct{}{}
	case e.IsNoteEnd():
		delete(s.keys, k)
	}
}

// Len returns the number of sounding keys
func (s *KeySet) Len() int {
	return len(s.keys)
}

// Contains reports whether the key is sounding
func (s *KeySet) Contains(k Key) bool {
	_, ok := s.keys[k]
	return ok
}

// Release empties the set and returns one note-off per key, ordered by
// track, channel and note.
func (s *KeySet) Release() []TimedEvent {
	if len(s.keys) == 0 {
		return nil
	}
	keys := make([]Key, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Track != b.Track {
			return a.Track < b.Track
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.Note < b.Note
	})

	offs := make([]TimedEvent, len(keys))
	for i, k := range keys {
		offs[i] = TimedEvent{
			Track: k.Track,
			Event: Event{Type: NoteOff, Channel: k.Channel, Note: k.Note},
		}
	}
	s.keys = make(map[Key]struct{})
	return offs
}
