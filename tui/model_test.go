package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"go-pianofall/clock"
	"go-pianofall/display"
	"go-pianofall/midi"
	"go-pianofall/player"
	"go-pianofall/theme"
	"go-pianofall/widgets"
)

type stubTransport struct {
	clk      *clock.Controller
	stops    int
	plays    int
	finished bool
}

func (s *stubTransport) Play(pos int64)                 { s.plays++; s.clk.SetPosition(pos) }
func (s *stubTransport) Seek(pos int64)                 { s.clk.SetPosition(pos) }
func (s *stubTransport) Stop()                          { s.stops++ }
func (s *stubTransport) SetScale(uint16)                {}
func (s *stubTransport) SetEvents([]midi.TimedEvent)    {}
func (s *stubTransport) IsFinished() bool               { return s.finished }
func (s *stubTransport) Listener() clock.Listener       { return s.clk.NewListener() }
func (s *stubTransport) Close()                         {}
func (s *stubTransport) Done() <-chan struct{}          { return nil }
func (s *stubTransport) Err() error                     { return nil }

func newTestModel(t *testing.T) (Model, *stubTransport) {
	t.Helper()
	tr := &stubTransport{clk: clock.New()}
	events := []midi.TimedEvent{
		{TimeUS: 0, Event: midi.Event{Type: midi.NoteOn, Note: 60, Velocity: 80}},
		{TimeUS: 2_000_000, Event: midi.Event{Type: midi.NoteOff, Note: 60}},
	}
	ctl := player.New(tr, events, player.Options{})
	ctl.Start()

	p, err := theme.Load("")
	if err != nil {
		t.Fatal(err)
	}
	fc := display.New(Canvas{}, display.Config{MeasureWindow: 5 * time.Millisecond})
	m := NewModel(ctl, fc, theme.New(p), widgets.Notes(events), Options{
		Title: "test.mid",
		Left:  48,
		Right: 72,
		EndUS: 2_000_000,
	})
	return m, tr
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestKeysDriveControl(t *testing.T) {
	m, tr := newTestModel(t)

	next, _ := m.Update(runes("p"))
	m = next.(Model)
	if !m.Control.Paused() || tr.stops != 1 {
		t.Fatalf("pause: paused=%v stops=%d", m.Control.Paused(), tr.stops)
	}

	next, _ = m.Update(runes("+"))
	m = next.(Model)
	if m.Control.Scale() != 1050 {
		t.Errorf("scale = %d, want 1050", m.Control.Scale())
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m = next.(Model)
	if m.Control.Shift() != 1 {
		t.Errorf("shift = %d, want 1", m.Control.Shift())
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(Model)
	if pos := m.Control.Position(); pos != 5_000_000 {
		t.Errorf("position after seek = %d", pos)
	}

	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("quit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("quit command does not quit")
	}
}

func TestFrameUpdatesPosition(t *testing.T) {
	m, tr := newTestModel(t)
	tr.clk.SetPosition(1_000_000)

	next, cmd := m.Update(frameMsg{ahead: 10 * time.Millisecond})
	m = next.(Model)
	if m.pos != 1_000_000 {
		t.Errorf("pos = %d, want 1000000 on a stopped clock", m.pos)
	}
	if cmd == nil {
		t.Fatal("no next frame scheduled")
	}

	tr.finished = true
	_, cmd = m.Update(frameMsg{})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("finished scheduler does not end the view")
	}
}

func TestNextFrameCalibrates(t *testing.T) {
	m, _ := newTestModel(t)
	msg := m.nextFrame()()
	fm, ok := msg.(frameMsg)
	if !ok || fm.err != nil {
		t.Fatalf("msg = %#v", msg)
	}
	if m.Frames.HasVsync() {
		t.Error("terminal canvas reported vsync")
	}
}

func TestNextFrameSkipsCalibrationInStats(t *testing.T) {
	m, _ := newTestModel(t)
	m.nextFrame()()
	for _, st := range m.Frames.Stats() {
		if st.Name != "tui: frame" {
			t.Errorf("calibration stat %q kept", st.Name)
		}
	}
}

func TestStopFramesReleasesClock(t *testing.T) {
	m, _ := newTestModel(t)
	m.nextFrame()()
	before := len(m.Frames.Stats())

	pending := m.nextFrame()
	m.StopFrames()
	if msg := pending(); msg != nil {
		t.Fatalf("frame ran after StopFrames: %#v", msg)
	}
	if got := len(m.Frames.Stats()); got != before {
		t.Errorf("stats changed after StopFrames: %d -> %d", before, got)
	}
}

func TestStopFramesWaitsForRunningFrame(t *testing.T) {
	m, _ := newTestModel(t)
	m.pace.mu.Lock() // a frame in progress

	stopped := make(chan struct{})
	go func() {
		m.StopFrames()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("StopFrames returned while a frame was running")
	case <-time.After(20 * time.Millisecond):
	}

	m.pace.mu.Unlock()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("StopFrames did not return after the frame finished")
	}
}

func TestView(t *testing.T) {
	m, _ := newTestModel(t)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m = next.(Model)

	out := m.View()
	for _, want := range []string{"test.mid", "PLAY", "1.00x", "00:00 / 00:02", "C4"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if got := len(strings.Split(out, "\n")); got > 30 {
		t.Errorf("view has %d lines for a 30 line terminal", got)
	}
}
