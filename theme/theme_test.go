package theme

import (
	"strings"
	"testing"
)

func TestParseGPL(t *testing.T) {
	src := "GIMP Palette\nName: two\nColumns: 2\n#\n  0   0   0\tblack\n255 255 255\twhite\n"
	p, err := ParseGPL(strings.NewReader(src), "test")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Name != "two" || len(p.Colors) != 2 {
		t.Fatalf("palette = %+v", p)
	}
	if got := p.Lookup(0.5); got != (RGB{127, 127, 127}) {
		t.Errorf("midpoint = %v", got)
	}
	if p.Lookup(-1) != p.Colors[0] || p.Lookup(2) != p.Colors[1] {
		t.Error("lookup not clamped")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := ParseGPL(strings.NewReader("GIMP Palette\n"), "empty"); err == nil {
		t.Fatal("expected error for palette without colors")
	}
}

func TestEmbedded(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if p.Name != DefaultPalette {
		t.Errorf("name = %q", p.Name)
	}
	th := New(p)
	if th.Track(0) == th.Track(1) {
		t.Error("first two tracks share a colour")
	}
	if th.Track(-3) != th.Track(3) {
		t.Error("negative track index not mapped")
	}
	if _, err := Load("no-such-palette"); err == nil {
		t.Error("expected error for unknown palette")
	}
}
