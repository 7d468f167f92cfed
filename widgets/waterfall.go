package widgets

import (
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"go-pianofall/theme"
)

// Waterfall draws notes falling towards the keyboard: one column per
// key, the bottom row is the current position.
type Waterfall struct {
	Left, Right uint8
	Horizon     time.Duration // time covered by all rows

	notes  []Note
	maxDur int64
	theme  *theme.Theme
}

// NewWaterfall creates a view over notes sorted by start time
func NewWaterfall(notes []Note, left, right uint8, horizon time.Duration, th *theme.Theme) *Waterfall {
	w := &Waterfall{Left: left, Right: right, Horizon: horizon, notes: notes, theme: th}
	for _, n := range notes {
		w.maxDur = max(w.maxDur, n.EndUS-n.StartUS)
	}
	return w
}

// Width returns the number of key columns
func (w *Waterfall) Width() int {
	return int(w.Right) - int(w.Left) + 1
}

// visible returns the notes overlapping [from, to)
func (w *Waterfall) visible(from, to int64) []Note {
	i := sort.Search(len(w.notes), func(i int) bool {
		return w.notes[i].StartUS >= from-w.maxDur
	})
	var out []Note
	for ; i < len(w.notes) && w.notes[i].StartUS < to; i++ {
		n := w.notes[i]
		if n.EndUS > from || (n.EndUS == n.StartUS && n.StartUS >= from) {
			out = append(out, n)
		}
	}
	return out
}

// Grid returns rows x Width cells holding track+1 for a note, 0 for
// empty. Row 0 is the furthest future.
func (w *Waterfall) Grid(pos int64, rows int) [][]int {
	grid := make([][]int, rows)
	for r := range grid {
		grid[r] = make([]int, w.Width())
	}
	if rows == 0 {
		return grid
	}
	rowUS := max(w.Horizon.Microseconds()/int64(rows), 1)
	end := pos + rowUS*int64(rows)

	for _, n := range w.visible(pos, end) {
		if n.Key < w.Left || n.Key > w.Right {
			continue
		}
		col := int(n.Key - w.Left)
		for r := 0; r < rows; r++ {
			cellStart := pos + int64(rows-1-r)*rowUS
			cellEnd := cellStart + rowUS
			noteEnd := max(n.EndUS, n.StartUS+1)
			if n.StartUS < cellEnd && noteEnd > cellStart {
				grid[r][col] = n.Track + 1
			}
		}
	}
	return grid
}

// Pressed returns key -> track for the notes sounding at pos
func (w *Waterfall) Pressed(pos int64) map[uint8]int {
	pressed := make(map[uint8]int)
	for _, n := range w.visible(pos, pos+1) {
		if n.StartUS <= pos && n.EndUS > pos {
			pressed[n.Key] = n.Track
		}
	}
	return pressed
}

// Render draws the falling notes
func (w *Waterfall) Render(pos int64, rows int) string {
	grid := w.Grid(pos, rows)
	lane := lipgloss.NewStyle().Foreground(w.theme.Muted())
	lines := make([]string, rows)
	for r, row := range grid {
		var line strings.Builder
		for c := 0; c < len(row); {
			// runs of equal cells share one style
			run := c
			for run < len(row) && row[run] == row[c] {
				run++
			}
			if row[c] == 0 {
				for k := c; k < run; k++ {
					key := w.Left + uint8(k)
					if key%12 == 0 {
						line.WriteString(lane.Render(string(w.theme.Symbols.Octave)))
					} else {
						line.WriteRune(w.theme.Symbols.Lane)
					}
				}
			} else {
				style := lipgloss.NewStyle().Foreground(w.theme.Track(row[c] - 1))
				line.WriteString(style.Render(strings.Repeat(string(w.theme.Symbols.Note), run-c)))
			}
			c = run
		}
		lines[r] = line.String()
	}
	return strings.Join(lines, "\n")
}
