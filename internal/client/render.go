// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/client/render.go
// Summary: Draws region snapshots onto a tcell screen.

package client

import (
	"github.com/gdamore/tcell/v2"

	"loom/internal/shm"
	"loom/vt"
)

// Renderer paints snapshots. It assumes exclusive ownership of the screen.
type Renderer struct {
	screen tcell.Screen
	cols   int
	rows   int
}

func NewRenderer(screen tcell.Screen) *Renderer {
	return &Renderer{screen: screen}
}

// Draw paints one full snapshot and flushes it to the terminal.
func (r *Renderer) Draw(snap *shm.Snapshot) {
	if snap.Cols != r.cols || snap.Rows != r.rows {
		// A new geometry leaves stale cells outside the grid; wipe them.
		r.screen.Clear()
		r.cols, r.rows = snap.Cols, snap.Rows
	}
	for y := 0; y < snap.Rows; y++ {
		for x := 0; x < snap.Cols; x++ {
			c := snap.Cells[y*snap.Cols+x]
			if c.Rune == 0 {
				// Wide-character continuation or blank padding.
				continue
			}
			r.screen.SetContent(x, y, c.Rune, nil, styleFor(c))
		}
	}
	if snap.CursorVisible && !snap.Closed {
		r.screen.ShowCursor(snap.CursorX, snap.CursorY)
	} else {
		r.screen.HideCursor()
	}
	r.screen.Show()
}

func styleFor(c vt.Cell) tcell.Style {
	st := tcell.StyleDefault.
		Foreground(tcellColor(c.FG)).
		Background(tcellColor(c.BG))
	if c.Attr&vt.AttrBold != 0 {
		st = st.Bold(true)
	}
	if c.Attr&vt.AttrUnderline != 0 {
		st = st.Underline(true)
	}
	if c.Attr&vt.AttrReverse != 0 {
		st = st.Reverse(true)
	}
	return st
}

func tcellColor(c vt.Color) tcell.Color {
	switch c.Mode {
	case vt.ColorModeStandard, vt.ColorMode256:
		return tcell.PaletteColor(int(c.Value))
	case vt.ColorModeRGB:
		return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
	default:
		return tcell.ColorDefault
	}
}
