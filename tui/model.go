package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-pianofall/debug"
	"go-pianofall/display"
	"go-pianofall/player"
	"go-pianofall/theme"
	"go-pianofall/widgets"
)

// Canvas is the terminal as seen by the frame clock. bubbletea flushes
// the view itself, so both calls return at once.
type Canvas struct{}

func (Canvas) Clear() error   { return nil }
func (Canvas) Present() error { return nil }

// Options describe what the view shows
type Options struct {
	Title       string
	Left, Right uint8
	Horizon     time.Duration // time from top row to keyboard
	EndUS       int64
}

type Model struct {
	Control *player.Control
	Frames  *display.FrameClock
	Theme   *theme.Theme

	pace     *pacer
	opts     Options
	roll     *widgets.Waterfall
	keys     keyMap
	help     help.Model
	width    int
	height   int
	pos      int64
	frames   int
	err      error
	quitting bool
}

// frameMsg arrives once per frame, after the frame deadline
type frameMsg struct {
	ahead time.Duration // until the frame after this one
	err   error
}

func NewModel(ctl *player.Control, frames *display.FrameClock, th *theme.Theme, notes []widgets.Note, opts Options) Model {
	if opts.Horizon <= 0 {
		opts.Horizon = 3 * time.Second
	}
	h := help.New()
	h.Styles.ShortKey = lipgloss.NewStyle().Foreground(th.Accent())
	h.Styles.ShortDesc = lipgloss.NewStyle().Foreground(th.Muted())
	h.Styles.FullKey = h.Styles.ShortKey
	h.Styles.FullDesc = h.Styles.ShortDesc
	return Model{
		Control: ctl,
		Frames:  frames,
		Theme:   th,
		pace:    &pacer{},
		opts:    opts,
		roll:    widgets.NewWaterfall(notes, opts.Left, opts.Right, opts.Horizon, th),
		keys:    defaultKeys(),
		help:    h,
	}
}

// pacer owns the frame clock while frame commands run. bubbletea does
// not wait for a running command when the program exits.
type pacer struct {
	mu      sync.Mutex
	stopped bool
	frames  int
}

// nextFrame waits for the next frame deadline on the frame clock. Only
// one frame command is in flight at a time.
func (m Model) nextFrame() tea.Cmd {
	fc, p := m.Frames, m.pace
	return func() tea.Msg {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.stopped {
			return nil
		}
		err := fc.PresentThenClear()
		p.frames++
		if p.frames == 1 {
			// calibration frame
			fc.ResetStats()
		}
		fc.Sample("tui: frame")
		return frameMsg{ahead: fc.TimeUntilNextFrame(), err: err}
	}
}

// StopFrames waits for a frame command that is still running and keeps
// later ones away from the frame clock. Call it before reading the clock
// once the program has exited.
func (m Model) StopFrames() {
	m.pace.mu.Lock()
	defer m.pace.mu.Unlock()
	m.pace.stopped = true
}

func (m Model) Init() tea.Cmd {
	return m.nextFrame()
}

// Err returns the error that ended the view, if any
func (m Model) Err() error { return m.err }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.Control.TogglePause()
		case key.Matches(msg, m.keys.Faster):
			m.Control.Faster()
		case key.Matches(msg, m.keys.Slower):
			m.Control.Slower()
		case key.Matches(msg, m.keys.Forward):
			m.Control.SeekForward()
		case key.Matches(msg, m.keys.Back):
			m.Control.SeekBackward()
		case key.Matches(msg, m.keys.TuneUp):
			m.Control.TransposeUp()
		case key.Matches(msg, m.keys.TuneDown):
			m.Control.TransposeDown()
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width

	case frameMsg:
		if msg.err != nil {
			m.err = msg.err
			debug.Error("tui", msg.err, "frame")
			return m, tea.Quit
		}
		m.frames++
		m.pos = m.Control.PositionAfter(msg.ahead)
		if m.Control.Finished() {
			debug.Log("tui", "scheduler finished after %d frames", m.frames)
			m.quitting = true
			return m, tea.Quit
		}
		return m, m.nextFrame()
	}

	return m, nil
}

func formatPos(us int64) string {
	sign := ""
	if us < 0 {
		sign = "-"
		us = -us
	}
	s := us / 1_000_000
	return fmt.Sprintf("%s%02d:%02d", sign, s/60, s%60)
}

func (m Model) header() string {
	state := "PLAY"
	if m.Control.Paused() {
		state = "PAUSE"
	}
	return fmt.Sprintf("%s  %s  %.2fx  %+d  %s / %s",
		m.opts.Title, state, float64(m.Control.Scale())/1000, m.Control.Shift(),
		formatPos(m.pos), formatPos(m.opts.EndUS))
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())

	header := headerStyle.Render(m.header())
	labels := dimStyle.Render(widgets.RenderOctaveLabels(m.opts.Left, m.opts.Right))
	keyboard := widgets.RenderKeyboard(m.opts.Left, m.opts.Right, m.roll.Pressed(m.pos), m.Theme)
	helpView := m.help.View(m.keys)

	// rows left for the waterfall
	rows := m.height - lipgloss.Height(header) - lipgloss.Height(helpView) - 4
	if m.height == 0 {
		rows = 16
	}
	rows = max(rows, 1)

	var out strings.Builder
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(m.roll.Render(m.pos, rows))
	out.WriteString("\n")
	out.WriteString(keyboard)
	out.WriteString("\n")
	out.WriteString(labels)
	out.WriteString("\n")
	out.WriteString(helpView)
	return out.String()
}
