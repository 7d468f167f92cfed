package player

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"go-pianofall/clock"
	"go-pianofall/midi"
)

type fakeTransport struct {
	clk    *clock.Controller
	calls  []string
	events []midi.TimedEvent
	done   chan struct{}
	err    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{clk: clock.New(), done: make(chan struct{})}
}

func (f *fakeTransport) Play(pos int64) {
	f.calls = append(f.calls, fmt.Sprintf("play %d", pos))
	f.clk.SetPosition(pos)
}

func (f *fakeTransport) Seek(pos int64) {
	f.calls = append(f.calls, fmt.Sprintf("seek %d", pos))
	f.clk.SetPosition(pos)
}

func (f *fakeTransport) Stop() { f.calls = append(f.calls, "stop") }

func (f *fakeTransport) SetScale(s uint16) {
	f.calls = append(f.calls, fmt.Sprintf("scale %d", s))
}

func (f *fakeTransport) SetEvents(events []midi.TimedEvent) {
	f.calls = append(f.calls, fmt.Sprintf("events %d", len(events)))
	f.events = events
}

func (f *fakeTransport) IsFinished() bool         { return false }
func (f *fakeTransport) Listener() clock.Listener { return f.clk.NewListener() }
func (f *fakeTransport) Close()                   { close(f.done) }
func (f *fakeTransport) Done() <-chan struct{}    { return f.done }
func (f *fakeTransport) Err() error               { return f.err }

func (f *fakeTransport) last() string {
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func sampleEvents() []midi.TimedEvent {
	return []midi.TimedEvent{
		{TimeUS: 0, Event: midi.Event{Type: midi.NoteOn, Note: 0, Velocity: 10}},
		{TimeUS: 0, Event: midi.Event{Type: midi.NoteOn, Note: 60, Velocity: 10}},
		{TimeUS: 1000, Event: midi.Event{Type: midi.NoteOff, Note: 60}},
		{TimeUS: 1000, Event: midi.Event{Type: midi.NoteOff, Note: 0}},
	}
}

func TestStartWithLeadIn(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, sampleEvents(), Options{LeadIn: 3 * time.Second})
	c.Start()

	want := []string{"scale 1000", "events 4", "play -3000000"}
	if fmt.Sprint(tr.calls) != fmt.Sprint(want) {
		t.Fatalf("calls = %v, want %v", tr.calls, want)
	}
	if c.Position() != -3_000_000 {
		t.Fatalf("position = %d", c.Position())
	}
}

func TestPauseToggle(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, sampleEvents(), Options{})
	c.Start()
	tr.clk.SetPosition(7000)

	c.TogglePause()
	if !c.Paused() || tr.last() != "stop" {
		t.Fatalf("pause: paused=%v last=%q", c.Paused(), tr.last())
	}
	c.TogglePause()
	if c.Paused() || tr.last() != "play 7000" {
		t.Fatalf("continue: paused=%v last=%q", c.Paused(), tr.last())
	}
}

func TestScaleBounds(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, nil, Options{Scale: 300})
	c.Slower()
	if c.Scale() != 250 {
		t.Fatalf("scale = %d, want 250", c.Scale())
	}
	c.Slower()
	if c.Scale() != 250 || tr.last() != "scale 250" {
		t.Fatalf("scale = %d last=%q", c.Scale(), tr.last())
	}

	c = New(tr, nil, Options{Scale: 3980})
	c.Faster()
	c.Faster()
	if c.Scale() != MaxScale {
		t.Fatalf("scale = %d, want %d", c.Scale(), MaxScale)
	}
}

func TestSeek(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, sampleEvents(), Options{SeekStep: 2 * time.Second})
	c.Start()

	c.SeekForward()
	if tr.last() != "play 2000000" {
		t.Fatalf("forward: %q", tr.last())
	}
	c.SeekBackward()
	c.SeekBackward()
	if tr.last() != "play 0" {
		t.Fatalf("backward past zero: %q", tr.last())
	}

	c.TogglePause()
	c.SeekForward()
	if tr.last() != "seek 2000000" {
		t.Fatalf("paused forward: %q", tr.last())
	}
}

func TestTranspose(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, sampleEvents(), Options{})
	c.Start()

	c.TransposeDown()
	if c.Shift() != -1 || tr.last() != "events 2" {
		t.Fatalf("shift=%d last=%q", c.Shift(), tr.last())
	}
	for _, ev := range tr.events {
		if ev.Event.Note != 59 {
			t.Fatalf("note = %d, want 59", ev.Event.Note)
		}
	}
	c.TransposeUp()
	if c.Shift() != 0 || tr.last() != "events 4" {
		t.Fatalf("shift=%d last=%q", c.Shift(), tr.last())
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestCloseCombinesErrors(t *testing.T) {
	tr := newFakeTransport()
	tr.err = errors.New("send failed")
	c := New(tr, nil, Options{})
	closeErr := errors.New("close failed")

	err := c.Close(closerFunc(func() error { return closeErr }), closerFunc(func() error { return nil }))
	if !errors.Is(err, tr.err) || !errors.Is(err, closeErr) {
		t.Fatalf("err = %v, want both errors", err)
	}
}
