package sequencer

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"go-pianofall/midi"
)

type recordingSink struct {
	mu     sync.Mutex
	msgs   [][]byte
	fail   error
	closed bool
}

func (r *recordingSink) Send(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.msgs = append(r.msgs, append([]byte(nil), data...))
	return nil
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) Messages() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.msgs...)
}

func (r *recordingSink) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recordingSink) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func newScheduler(t *testing.T, sink *recordingSink, exitOnEnd bool) *Scheduler {
	t.Helper()
	s := New(Options{
		Open:      func() (midi.Sink, error) { return sink, nil },
		ExitOnEnd: exitOnEnd,
	})
	t.Cleanup(func() {
		s.Close()
		<-s.Done()
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func note(us uint64, on bool, key uint8) midi.TimedEvent {
	ev := midi.Event{Type: midi.NoteOff, Note: key}
	if on {
		ev = midi.Event{Type: midi.NoteOn, Note: key, Velocity: 100}
	}
	return midi.TimedEvent{TimeUS: us, Event: ev}
}

func TestPlayToEnd(t *testing.T) {
	sink := &recordingSink{}
	s := newScheduler(t, sink, false)

	s.SetEvents([]midi.TimedEvent{
		note(0, true, 60),
		{TimeUS: 5000, Event: midi.Event{Type: midi.Other}},
		note(10000, false, 60),
		{TimeUS: 15000, Event: midi.Event{Type: midi.CC, Note: 64, Velocity: 0}},
	})
	s.Play(0)

	waitFor(t, "end of stream", func() bool { return sink.Len() == 3 && s.State() == EndOfStream })

	want := [][]byte{{0x90, 60, 100}, {0x80, 60, 0}, {0xB0, 64, 0}}
	got := sink.Messages()
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("message %d = % X, want % X", i, got[i], want[i])
		}
	}
	if s.Listener().IsRunning() {
		t.Error("clock still running at end of stream")
	}
	if s.IsFinished() {
		t.Error("scheduler finished without exit-on-end")
	}
}

func TestPlayPastEnd(t *testing.T) {
	sink := &recordingSink{}
	s := newScheduler(t, sink, false)

	s.SetEvents([]midi.TimedEvent{note(0, true, 60), note(1000, false, 60)})
	waitFor(t, "stopped", func() bool { return s.State() == Stopped })
	s.Play(5_000_000)
	waitFor(t, "end of stream", func() bool { return s.State() == EndOfStream })

	if n := sink.Len(); n != 0 {
		t.Fatalf("dispatched %d messages, want 0", n)
	}
	if s.Listener().IsRunning() {
		t.Fatal("clock started for a position past the end")
	}
	if pos := s.Listener().Position(); pos != 5_000_000 {
		t.Fatalf("position = %d, want 5000000", pos)
	}
}

func TestSeekSkipsEarlierEvents(t *testing.T) {
	sink := &recordingSink{}
	s := newScheduler(t, sink, false)

	s.SetEvents([]midi.TimedEvent{
		{TimeUS: 0, Event: midi.Event{Type: midi.ProgramChange, Note: 1}},
		{TimeUS: 2000, Event: midi.Event{Type: midi.ProgramChange, Note: 2}},
		{TimeUS: 4000, Event: midi.Event{Type: midi.ProgramChange, Note: 3}},
	})
	s.Play(2000)
	waitFor(t, "end of stream", func() bool { return s.State() == EndOfStream })

	got := sink.Messages()
	if len(got) != 2 || got[0][1] != 2 || got[1][1] != 3 {
		t.Fatalf("messages = % X, want programs 2 and 3", got)
	}
}

func TestSeekBackReleasesActiveNotes(t *testing.T) {
	sink := &recordingSink{}
	s := newScheduler(t, sink, false)

	s.SetEvents([]midi.TimedEvent{note(0, true, 60), note(10_000_000, false, 60)})
	s.Play(0)
	waitFor(t, "note on", func() bool { return sink.Len() == 1 })

	s.Seek(0)
	waitFor(t, "replayed note on", func() bool { return sink.Len() == 3 })

	got := sink.Messages()
	want := [][]byte{{0x90, 60, 100}, {0x80, 60, 0}, {0x90, 60, 100}}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("message %d = % X, want % X", i, got[i], want[i])
		}
	}
	if s.State() != Playing {
		t.Errorf("state = %s, want playing", s.State())
	}
}

func TestStopReleasesActiveNotes(t *testing.T) {
	sink := &recordingSink{}
	s := newScheduler(t, sink, false)

	s.SetEvents([]midi.TimedEvent{
		note(0, true, 60),
		{TimeUS: 0, Track: 1, Event: midi.Event{Type: midi.NoteOn, Channel: 9, Note: 36, Velocity: 1}},
		note(10_000_000, false, 60),
	})
	s.Play(0)
	waitFor(t, "note ons", func() bool { return sink.Len() == 2 })

	s.Stop()
	waitFor(t, "note offs", func() bool { return sink.Len() == 4 })
	waitFor(t, "stopped", func() bool { return s.State() == Stopped })

	got := sink.Messages()
	if !bytes.Equal(got[2], []byte{0x80, 60, 0}) || !bytes.Equal(got[3], []byte{0x89, 36, 0}) {
		t.Errorf("release = % X % X", got[2], got[3])
	}
	if s.Listener().IsRunning() {
		t.Error("clock running after stop")
	}

	// stopping again is idempotent
	pos := s.Listener().Position()
	s.Stop()
	time.Sleep(5 * time.Millisecond)
	if sink.Len() != 4 || s.Listener().Position() != pos {
		t.Error("second stop changed output or position")
	}
}

func TestSetScale(t *testing.T) {
	sink := &recordingSink{}
	s := newScheduler(t, sink, false)
	s.SetScale(2000)
	waitFor(t, "scale", func() bool { return s.Listener().Scale() == 2000 })
	s.SetScale(0)
	s.SetScale(1500)
	waitFor(t, "scale", func() bool { return s.Listener().Scale() == 1500 })
}

func TestOpenFailure(t *testing.T) {
	openErr := errors.New("no such port")
	s := New(Options{Open: func() (midi.Sink, error) { return nil, openErr }})

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit")
	}
	if !errors.Is(s.Err(), openErr) {
		t.Fatalf("err = %v, want %v", s.Err(), openErr)
	}
	if !s.IsFinished() {
		t.Fatal("IsFinished = false after exit")
	}
	s.Play(0) // must not block or panic
}

func TestSendFailureEndsScheduler(t *testing.T) {
	sendErr := errors.New("device unplugged")
	sink := &recordingSink{fail: sendErr}
	s := New(Options{Open: func() (midi.Sink, error) { return sink, nil }})

	s.SetEvents([]midi.TimedEvent{note(0, true, 60)})
	s.Play(0)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit")
	}
	if !errors.Is(s.Err(), sendErr) {
		t.Fatalf("err = %v, want %v", s.Err(), sendErr)
	}
	if !sink.IsClosed() {
		t.Error("sink not closed")
	}
}

func TestExitOnEnd(t *testing.T) {
	sink := &recordingSink{}
	s := New(Options{
		Open:      func() (midi.Sink, error) { return sink, nil },
		ExitOnEnd: true,
	})
	s.SetEvents([]midi.TimedEvent{note(0, true, 60), note(3000, false, 60)})
	s.Play(0)

	waitFor(t, "finish", s.IsFinished)
	if err := s.Err(); err != nil {
		t.Fatalf("err = %v", err)
	}
	if sink.Len() != 2 {
		t.Fatalf("messages = %d, want 2", sink.Len())
	}
	if !sink.IsClosed() {
		t.Error("sink not closed")
	}
}

func TestExitOnEndWithoutDueEvents(t *testing.T) {
	tests := []struct {
		name   string
		events []midi.TimedEvent
		start  int64
	}{
		{"start past last event", []midi.TimedEvent{note(0, true, 60), note(1000, false, 60)}, 5_000_000},
		{"empty event list", nil, -3_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			s := New(Options{
				Open:      func() (midi.Sink, error) { return sink, nil },
				ExitOnEnd: true,
			})
			s.SetEvents(tt.events)
			s.Play(tt.start)

			waitFor(t, "finish", s.IsFinished)
			if err := s.Err(); err != nil {
				t.Fatalf("err = %v", err)
			}
			if n := sink.Len(); n != 0 {
				t.Errorf("dispatched %d messages, want 0", n)
			}
			if !sink.IsClosed() {
				t.Error("sink not closed")
			}
		})
	}
}

// gateSink blocks the first Send until released
type gateSink struct {
	recordingSink
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gateSink) Send(data []byte) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.recordingSink.Send(data)
}

func TestQueuedSeeksLastWins(t *testing.T) {
	sink := &gateSink{entered: make(chan struct{}), release: make(chan struct{})}
	s := New(Options{Open: func() (midi.Sink, error) { return sink, nil }})
	t.Cleanup(func() {
		s.Close()
		<-s.Done()
	})

	s.SetEvents([]midi.TimedEvent{
		{TimeUS: 0, Event: midi.Event{Type: midi.ProgramChange, Note: 1}},
		{TimeUS: 1_000_000, Event: midi.Event{Type: midi.ProgramChange, Note: 2}},
		{TimeUS: 2_000_000, Event: midi.Event{Type: midi.ProgramChange, Note: 3}},
		{TimeUS: 3_000_000, Event: midi.Event{Type: midi.ProgramChange, Note: 4}},
	})
	s.Play(0)

	// queue a burst while the scheduler is stuck in the first send
	<-sink.entered
	s.Seek(1_000_000)
	s.Seek(2_000_000)
	s.Seek(3_000_000)
	close(sink.release)

	waitFor(t, "end of stream", func() bool { return s.State() == EndOfStream })
	got := sink.Messages()
	if len(got) != 2 || got[0][1] != 1 || got[1][1] != 4 {
		t.Fatalf("messages = % X, want programs 1 and 4", got)
	}
	if pos := s.Listener().Position(); pos < 3_000_000 {
		t.Errorf("position = %d, want >= 3000000", pos)
	}
}

func TestCloseReleasesNotes(t *testing.T) {
	sink := &recordingSink{}
	s := New(Options{Open: func() (midi.Sink, error) { return sink, nil }})
	s.SetEvents([]midi.TimedEvent{note(0, true, 72), note(10_000_000, false, 72)})
	s.Play(0)
	waitFor(t, "note on", func() bool { return sink.Len() == 1 })

	s.Close()
	<-s.Done()
	if !s.IsFinished() {
		t.Fatal("IsFinished = false after Close")
	}
	got := sink.Messages()
	if len(got) != 2 || !bytes.Equal(got[1], []byte{0x80, 72, 0}) {
		t.Fatalf("messages = % X", got)
	}
	s.Close()
}
