package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"go-pianofall/config"
	"go-pianofall/debug"
	"go-pianofall/display"
	"go-pianofall/merge"
	"go-pianofall/midi"
	"go-pianofall/midifile"
	"go-pianofall/player"
	"go-pianofall/sequencer"
	"go-pianofall/theme"
	"go-pianofall/tui"
	"go-pianofall/widgets"
)

// finishPoll is how often headless playback checks the scheduler
const finishPoll = 100 * time.Millisecond

// song is a loaded file merged onto the microsecond timeline
type song struct {
	file   *midifile.File
	events []midi.TimedEvent
}

func loadSong(path string) (*song, error) {
	f, err := midifile.Load(path)
	if err != nil {
		return nil, err
	}
	tl, err := merge.FromFile(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	events := tl.Collect()
	debug.Log("main", "%s: %d tracks, %d events, %d tempo changes, ends at %dus",
		path, len(f.Tracks), len(events), tl.TempoChanges(), merge.EndUS(events))
	return &song{file: f, events: events}, nil
}

// tracksOrAll turns an unset track flag into nil (all tracks)
func tracksOrAll(tracks []int) []int {
	if len(tracks) == 0 {
		return nil
	}
	return tracks
}

func newScheduler(cfg *config.Config, exitOnEnd bool) *sequencer.Scheduler {
	target := cfg.Output.Target
	return sequencer.New(sequencer.Options{
		Open: func() (midi.Sink, error) {
			return midi.Open(target)
		},
		LatencyCap: cfg.Playback.LatencyCap(),
		ExitOnEnd:  exitOnEnd,
	})
}

func newControl(cfg *config.Config, sched *sequencer.Scheduler, events []midi.TimedEvent) *player.Control {
	return player.New(sched, events, player.Options{
		Scale:     uint16(cfg.Playback.ScalePermille),
		SeekStep:  cfg.Playback.SeekStep(),
		LeadIn:    cfg.Playback.LeadIn(),
		Transpose: flags.transpose,
	})
}

// runShow plays a file with the waterfall view until the user quits or,
// with exitOnEnd, until the last event.
func runShow(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := loadSong(path)
	if err != nil {
		return err
	}
	palette, err := theme.Load(flags.palette)
	if err != nil {
		return err
	}
	th := theme.New(palette)

	playEvents := merge.FilterTracks(s.events, tracksOrAll(flags.playTracks))
	showEvents := merge.FilterTracks(s.events, tracksOrAll(flags.showTracks))

	sched := newScheduler(cfg, cfg.Playback.ExitOnEnd)
	ctl := newControl(cfg, sched, playEvents)
	frames := display.New(tui.Canvas{}, display.Config{
		FallbackFPS:     cfg.Display.FallbackFPS,
		MeasureWindow:   cfg.Display.MeasureWindow(),
		PresentOverhead: cfg.Display.PresentOverhead(),
	})

	m := tui.NewModel(ctl, frames, th, widgets.Notes(showEvents), tui.Options{
		Title:   filepath.Base(path),
		Left:    uint8(cfg.Keyboard.LeftKey),
		Right:   uint8(cfg.Keyboard.RightKey),
		EndUS:   int64(merge.EndUS(s.events)),
		Horizon: 3 * time.Second,
	})
	ctl.Start()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithFPS(cfg.Display.FallbackFPS))
	final, runErr := p.Run()
	if fm, ok := final.(tui.Model); ok && runErr == nil {
		runErr = fm.Err()
	}

	m.StopFrames()
	closeErr := ctl.Close()
	frames.Report(os.Stdout)
	if runErr != nil {
		return runErr
	}
	return closeErr
}

// runPlay sends a file to the output without a display and returns once
// the last event has been sent or the process is interrupted.
func runPlay(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := loadSong(path)
	if err != nil {
		return err
	}

	events := merge.FilterTracks(s.events, tracksOrAll(flags.playTracks))
	sched := newScheduler(cfg, true)
	ctl := newControl(cfg, sched, events)
	ctl.Start()

	end := time.Duration(merge.EndUS(events)) * time.Microsecond
	fmt.Printf("Playing %s (%s, %d events)\n", filepath.Base(path), end.Round(time.Second), len(events))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	ticker := time.NewTicker(finishPoll)
	defer ticker.Stop()
	for !ctl.Finished() {
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return ctl.Close()
		case <-ticker.C:
		}
	}
	return ctl.Close()
}
