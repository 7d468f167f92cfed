// Package midifile loads standard MIDI files into per-track event lists.
package midifile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/mitchellh/go-homedir"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-pianofall/midi"
)

// Configuration errors. Both are fatal before merging starts.
var (
	ErrUnsupportedTiming = errors.New("unsupported time format")
	ErrNoTracks          = errors.New("midi file has no tracks")
)

// File is a parsed MIDI file. Tracks own their event slices; cursors
// built by the merge package only index into them.
type File struct {
	Resolution uint16 // ticks per quarter note
	Tracks     []Track
}

// Track holds one track's delta-timed events and descriptive metadata
type Track struct {
	Name   string
	Texts  []string
	Events []midi.TrackEvent
}

// Load reads a file from disk ("~" is expanded)
func Load(path string) (*File, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	file, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Read parses a file from r
func Read(r io.Reader) (*File, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return FromSMF(s)
}

// FromSMF converts an already parsed SMF. Only metrical (ticks per
// quarter note) timing is accepted.
func FromSMF(s *smf.SMF) (*File, error) {
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedTiming, s.TimeFormat)
	}
	if ticks == 0 {
		return nil, fmt.Errorf("%w: zero ticks per quarter note", ErrUnsupportedTiming)
	}
	if len(s.Tracks) == 0 {
		return nil, ErrNoTracks
	}

	file := &File{
		Resolution: uint16(ticks),
		Tracks:     make([]Track, len(s.Tracks)),
	}
	for i, tr := range s.Tracks {
		file.Tracks[i] = convertTrack(tr)
	}
	return file, nil
}

func convertTrack(tr smf.Track) Track {
	t := Track{Events: make([]midi.TrackEvent, 0, len(tr))}
	for _, ev := range tr {
		var name, text string
		switch {
		case ev.Message.GetMetaTrackName(&name):
			if t.Name == "" {
				t.Name = name
			}
		case ev.Message.GetMetaText(&text):
			t.Texts = append(t.Texts, text)
		}
		t.Events = append(t.Events, midi.TrackEvent{
			Delta: ev.Delta,
			Event: Convert(ev.Message),
		})
	}
	return t
}

// Convert maps a file message onto the event model. Meta and sysex
// messages other than set-tempo become midi.Other.
func Convert(msg smf.Message) midi.Event {
	var bpm float64
	if msg.GetMetaTempo(&bpm) && bpm > 0 {
		return midi.TempoEvent(uint32(math.Round(60_000_000 / bpm)))
	}
	return midi.Decode(msg)
}

// Channels returns the channels used by channel messages of the track
func (t Track) Channels() []uint8 {
	var used [16]bool
	for _, ev := range t.Events {
		switch ev.Event.Type {
		case midi.Other, midi.Tempo:
		default:
			used[ev.Event.Channel&0x0F] = true
		}
	}
	var chans []uint8
	for c, u := range used {
		if u {
			chans = append(chans, uint8(c))
		}
	}
	return chans
}

// NoteCount returns the number of note starts in the track
func (t Track) NoteCount() int {
	n := 0
	for _, ev := range t.Events {
		if ev.Event.IsNoteStart() {
			n++
		}
	}
	return n
}

// TickLength returns the absolute tick of the last event
func (t Track) TickLength() uint64 {
	var tick uint64
	for _, ev := range t.Events {
		tick += uint64(ev.Delta)
	}
	return tick
}

// TempoChanges lists the distinct tempo values in the file, sorted
func (f *File) TempoChanges() []uint32 {
	seen := make(map[uint32]bool)
	var tempos []uint32
	for _, t := range f.Tracks {
		for _, ev := range t.Events {
			if ev.Event.IsTempo() && !seen[ev.Event.Tempo] {
				seen[ev.Event.Tempo] = true
				tempos = append(tempos, ev.Event.Tempo)
			}
		}
	}
	sort.Slice(tempos, func(i, j int) bool { return tempos[i] < tempos[j] })
	return tempos
}
