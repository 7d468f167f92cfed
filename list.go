package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go-pianofall/merge"
	"go-pianofall/midi"
)

const portScanTimeout = 3 * time.Second

// runList prints the tracks of a file with the numbers --play-tracks and
// --show-tracks accept.
func runList(w io.Writer, path string) error {
	s, err := loadSong(path)
	if err != nil {
		return err
	}
	f := s.file
	length := time.Duration(merge.EndUS(s.events)) * time.Microsecond

	fmt.Fprintf(w, "%s: %d tracks, %d ticks/quarter, %s, %d events\n",
		filepath.Base(path), len(f.Tracks), f.Resolution, length.Round(time.Millisecond), len(s.events))

	if tempos := f.TempoChanges(); len(tempos) > 0 {
		bpm := make([]string, len(tempos))
		for i, t := range tempos {
			bpm[i] = fmt.Sprintf("%.1f", 60e6/float64(t))
		}
		fmt.Fprintf(w, "tempo: %s bpm\n", strings.Join(bpm, ", "))
	}

	for i, tr := range f.Tracks {
		name := tr.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%3d  %-24s notes %-6d ticks %-8d channels %s\n",
			i, name, tr.NoteCount(), tr.TickLength(), formatChannels(tr.Channels()))
		for _, text := range tr.Texts {
			fmt.Fprintf(w, "     %s\n", text)
		}
	}
	return nil
}

// formatChannels prints channels 1-based the way instruments label them
func formatChannels(chans []uint8) string {
	if len(chans) == 0 {
		return "-"
	}
	parts := make([]string, len(chans))
	for i, c := range chans {
		parts[i] = fmt.Sprint(int(c) + 1)
	}
	return strings.Join(parts, ",")
}

// runPorts prints every target --output accepts
func runPorts(w io.Writer) error {
	fmt.Fprintln(w, "MIDI outputs:")
	ports, err := midi.ListOutPorts(portScanTimeout)
	switch {
	case errors.Is(err, midi.ErrScanTimeout):
		fmt.Fprintln(w, "  (driver did not answer)")
	case err != nil:
		return err
	case len(ports) == 0:
		fmt.Fprintln(w, "  (none)")
	}
	for _, p := range ports {
		fmt.Fprintf(w, "  %d: %s\n", p.Number, p.Name)
	}

	fmt.Fprintln(w, "Serial devices (use serial:<device>[@baud]):")
	serials, err := midi.ListSerialPorts()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	if len(serials) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, name := range serials {
		fmt.Fprintf(w, "  %s\n", name)
	}
	return nil
}
