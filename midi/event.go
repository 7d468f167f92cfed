package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDI message types (status nibble of channel messages)
const (
	NoteOff         uint8 = 0x80
	NoteOn          uint8 = 0x90
	PolyAftertouch  uint8 = 0xA0
	CC              uint8 = 0xB0
	ProgramChange   uint8 = 0xC0
	ChannelPressure uint8 = 0xD0
	PitchBend       uint8 = 0xE0
)

// Non-channel types. These never reach an output port.
const (
	Other uint8 = 0x00 // meta/sysex we do not act on
	Tempo uint8 = 0x51 // set-tempo meta event
)

// PitchBendCenter is the 14-bit pitch bend rest position.
const PitchBendCenter uint16 = 0x2000

// Event is one file event. Fields are reused across types:
//
//	NoteOn/NoteOff/PolyAftertouch: Note = key, Velocity = velocity/pressure
//	CC:                            Note = controller, Velocity = value
//	ProgramChange:                 Note = program
//	ChannelPressure:               Velocity = pressure
//	PitchBend:                     Bend = 14-bit value
//	Tempo:                         Tempo = microseconds per quarter note
type Event struct {
	Type     uint8
	Channel  uint8
	Note     uint8
	Velocity uint8
	Bend     uint16
	Tempo    uint32
}

// TrackEvent is one event of a track, delta-timed in ticks relative to
// the previous event of the same track.
type TrackEvent struct {
	Delta uint32
	Event Event
}

// TimedEvent is an event placed on the global microsecond timeline.
type TimedEvent struct {
	TimeUS uint64
	Track  int
	Event  Event
}

// IsTempo reports whether the event changes the tempo map.
func (e Event) IsTempo() bool {
	return e.Type == Tempo
}

// IsNoteStart reports a note-on with non-zero velocity.
func (e Event) IsNoteStart() bool {
	return e.Type == NoteOn && e.Velocity > 0
}

// IsNoteEnd reports a note-off or a note-on with zero velocity.
func (e Event) IsNoteEnd() bool {
	return e.Type == NoteOff || (e.Type == NoteOn && e.Velocity == 0)
}

// Encode returns the wire bytes of a channel message, or nil for events
// that are not sent (tempo, meta, sysex).
func (e Event) Encode() []byte {
	switch e.Type {
	case NoteOn:
		return gomidi.NoteOn(e.Channel, e.Note, e.Velocity)
	case NoteOff:
		return gomidi.NoteOffVelocity(e.Channel, e.Note, e.Velocity)
	case PolyAftertouch:
		return gomidi.PolyAfterTouch(e.Channel, e.Note, e.Velocity)
	case CC:
		return gomidi.ControlChange(e.Channel, e.Note, e.Velocity)
	case ProgramChange:
		return gomidi.ProgramChange(e.Channel, e.Note)
	case ChannelPressure:
		return gomidi.AfterTouch(e.Channel, e.Velocity)
	case PitchBend:
		return gomidi.Pitchbend(e.Channel, int16(e.Bend&0x3FFF)-int16(PitchBendCenter))
	}
	return nil
}

// Decode builds an Event from raw bytes of a channel message. Anything
// else (running status already expanded by the reader) yields Other.
func Decode(data []byte) Event {
	if len(data) == 0 || data[0] < 0x80 || data[0] >= 0xF0 {
		return Event{Type: Other}
	}
	e := Event{Type: data[0] & 0xF0, Channel: data[0] & 0x0F}
	switch e.Type {
	case ProgramChange:
		if len(data) < 2 {
			return Event{Type: Other}
		}
		e.Note = data[1]
	case ChannelPressure:
		if len(data) < 2 {
			return Event{Type: Other}
		}
		e.Velocity = data[1]
	case PitchBend:
		if len(data) < 3 {
			return Event{Type: Other}
		}
		e.Bend = uint16(data[1]&0x7F) | uint16(data[2]&0x7F)<<7
	default:
		if len(data) < 3 {
			return Event{Type: Other}
		}
		e.Note = data[1]
		e.Velocity = data[2]
	}
	return e
}

// TempoEvent builds a tempo change.
func TempoEvent(usPerQuarter uint32) Event {
	return Event{Type: Tempo, Tempo: usPerQuarter}
}

func (e Event) String() string {
	switch e.Type {
	case NoteOn:
		return fmt.Sprintf("NoteOn ch=%d key=%d vel=%d", e.Channel, e.Note, e.Velocity)
	case NoteOff:
		return fmt.Sprintf("NoteOff ch=%d key=%d vel=%d", e.Channel, e.Note, e.Velocity)
	case PolyAftertouch:
		return fmt.Sprintf("Aftertouch ch=%d key=%d pressure=%d", e.Channel, e.Note, e.Velocity)
	case CC:
		return fmt.Sprintf("Controller ch=%d cc=%d value=%d", e.Channel, e.Note, e.Velocity)
	case ProgramChange:
		return fmt.Sprintf("ProgramChange ch=%d program=%d", e.Channel, e.Note)
	case ChannelPressure:
		return fmt.Sprintf("ChannelAftertouch ch=%d pressure=%d", e.Channel, e.Velocity)
	case PitchBend:
		return fmt.Sprintf("PitchBend ch=%d value=%d", e.Channel, e.Bend)
	case Tempo:
		return fmt.Sprintf("Tempo %dus/quarter", e.Tempo)
	}
	return "Other"
}
