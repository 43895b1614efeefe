// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/client/render_test.go
// Summary: Cell-to-tcell style mapping tests.

package client

import (
	"testing"

	"github.com/gdamore/tcell/v2"

	"loom/internal/shm"
	"loom/vt"
)

func uniformSnapshot(cols, rows int, r rune) *shm.Snapshot {
	snap := &shm.Snapshot{Cols: cols, Rows: rows, Cells: make([]vt.Cell, cols*rows)}
	for i := range snap.Cells {
		snap.Cells[i] = vt.Cell{Rune: r, FG: vt.DefaultFG, BG: vt.DefaultBG}
	}
	return snap
}

func TestDrawClearsOnGeometryChange(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer screen.Fini()
	screen.SetSize(20, 10)

	r := NewRenderer(screen)
	r.Draw(uniformSnapshot(10, 4, 'x'))
	if pr, _, _, _ := screen.GetContent(9, 3); pr != 'x' {
		t.Fatalf("cell (9,3) = %q, want 'x'", pr)
	}

	// Shrinking must not leave cells from the old geometry on screen.
	r.Draw(uniformSnapshot(4, 2, 'y'))
	if pr, _, _, _ := screen.GetContent(0, 0); pr != 'y' {
		t.Fatalf("cell (0,0) = %q, want 'y'", pr)
	}
	if pr, _, _, _ := screen.GetContent(9, 3); pr == 'x' {
		t.Fatal("stale cell survived the shrink")
	}
}

func TestTcellColorMapping(t *testing.T) {
	if got := tcellColor(vt.Color{}); got != tcell.ColorDefault {
		t.Fatalf("default = %v", got)
	}
	if got := tcellColor(vt.Color{Mode: vt.ColorModeStandard, Value: 1}); got != tcell.PaletteColor(1) {
		t.Fatalf("standard = %v", got)
	}
	if got := tcellColor(vt.Color{Mode: vt.ColorMode256, Value: 208}); got != tcell.PaletteColor(208) {
		t.Fatalf("palette = %v", got)
	}
	want := tcell.NewRGBColor(0x11, 0x22, 0x33)
	if got := tcellColor(vt.Color{Mode: vt.ColorModeRGB, R: 0x11, G: 0x22, B: 0x33}); got != want {
		t.Fatalf("rgb = %v", got)
	}
}

func TestStyleAttributes(t *testing.T) {
	st := styleFor(vt.Cell{
		FG:   vt.Color{Mode: vt.ColorModeStandard, Value: 2},
		BG:   vt.DefaultBG,
		Attr: vt.AttrBold | vt.AttrReverse,
	})
	fg, _, attrs := st.Decompose()
	if fg != tcell.PaletteColor(2) {
		t.Fatalf("fg = %v", fg)
	}
	if attrs&tcell.AttrBold == 0 || attrs&tcell.AttrReverse == 0 {
		t.Fatalf("attrs = %v", attrs)
	}
	if attrs&tcell.AttrUnderline != 0 {
		t.Fatal("underline leaked in")
	}
}
