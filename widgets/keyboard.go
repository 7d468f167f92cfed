package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-pianofall/theme"
)

// RenderKeyboard draws one cell per key from left to right. Pressed keys
// take the colour of the track that plays them.
func RenderKeyboard(left, right uint8, pressed map[uint8]int, th *theme.Theme) string {
	white := lipgloss.NewStyle().Foreground(th.FG())
	black := lipgloss.NewStyle().Foreground(th.Muted())

	var out strings.Builder
	for key := int(left); key <= int(right); key++ {
		k := uint8(key)
		if track, ok := pressed[k]; ok {
			style := lipgloss.NewStyle().Foreground(th.Track(track))
			out.WriteString(style.Render(string(th.Symbols.Pressed)))
			continue
		}
		if IsBlack(k) {
			out.WriteString(black.Render(string(th.Symbols.BlackKey)))
		} else {
			out.WriteString(white.Render(string(th.Symbols.WhiteKey)))
		}
	}
	return out.String()
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns scientific pitch notation, middle C (60) is C4
func NoteName(key uint8) string {
	return fmt.Sprintf("%s%d", noteNames[key%12], int(key)/12-1)
}

// RenderOctaveLabels places C labels above their columns
func RenderOctaveLabels(left, right uint8) string {
	width := int(right) - int(left) + 1
	line := []rune(strings.Repeat(" ", width))
	for key := int(left); key <= int(right); key++ {
		if key%12 != 0 {
			continue
		}
		label := []rune(NoteName(uint8(key)))
		for i, r := range label {
			if col := key - int(left) + i; col < width {
				line[col] = r
			}
		}
	}
	return string(line)
}
