// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: vt/grid.go
// Summary: The authoritative terminal buffer: a rows×cols cell matrix plus cursor and scroll state.
// Usage: Mutated by the interpreter, blitted wholesale into the shared region.
// Notes: Backing storage is a single flat slice so a publish is one contiguous pass.

package vt

import "log"

// Grid is the mutable terminal buffer. Out-of-range coordinates are clamped
// or dropped with a log line; they never cause out-of-bounds access.
type Grid struct {
	cols, rows int
	cells      []Cell // len == rows*cols, row-major

	cursorX, cursorY int

	// Scroll region, inclusive rows. Always 0 <= top <= bottom < rows.
	scrollTop, scrollBottom int
}

func NewGrid(cols, rows int) *Grid {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	g := &Grid{
		cols:         cols,
		rows:         rows,
		cells:        make([]Cell, cols*rows),
		scrollBottom: rows - 1,
	}
	g.clearAll(DefaultBG)
	return g
}

func (g *Grid) Cols() int { return g.cols }
func (g *Grid) Rows() int { return g.rows }

// Cursor returns the current cursor position.
func (g *Grid) Cursor() (x, y int) { return g.cursorX, g.cursorY }

// Cells exposes the flat backing slice, row-major. Callers must treat it as
// read-only; it is swapped wholesale on resize.
func (g *Grid) Cells() []Cell { return g.cells }

// Cell returns the cell at (x, y), or a blank cell when out of range.
func (g *Grid) Cell(x, y int) Cell {
	if x < 0 || x >= g.cols || y < 0 || y >= g.rows {
		return blank(DefaultBG)
	}
	return g.cells[y*g.cols+x]
}

// ApplyCell writes a cell at (x, y). Writes outside the grid are dropped.
func (g *Grid) ApplyCell(x, y int, c Cell) {
	if x < 0 || x >= g.cols || y < 0 || y >= g.rows {
		log.Printf("grid: dropped write outside bounds at (%d,%d) size %dx%d", x, y, g.cols, g.rows)
		return
	}
	g.cells[y*g.cols+x] = c
}

// MoveCursor places the cursor, clamping into [0,cols) × [0,rows).
func (g *Grid) MoveCursor(x, y int) {
	if x < 0 {
		x = 0
	}
	if x >= g.cols {
		x = g.cols - 1
	}
	if y < 0 {
		y = 0
	}
	if y >= g.rows {
		y = g.rows - 1
	}
	g.cursorX, g.cursorY = x, y
}

// SetScrollRegion sets the top and bottom margins (inclusive, zero-based).
// Invalid regions reset to the full screen.
func (g *Grid) SetScrollRegion(top, bottom int) {
	if top < 0 || bottom >= g.rows || top >= bottom {
		g.scrollTop, g.scrollBottom = 0, g.rows-1
		return
	}
	g.scrollTop, g.scrollBottom = top, bottom
}

func (g *Grid) ScrollRegion() (top, bottom int) { return g.scrollTop, g.scrollBottom }

// Scroll shifts the scroll region by n lines: positive scrolls up (content
// moves toward the top, blank lines appear at the bottom), negative scrolls
// down. Vacated lines are cleared with the given background.
func (g *Grid) Scroll(n int, bg Color) {
	g.scrollLines(n, g.scrollTop, g.scrollBottom, bg)
}

func (g *Grid) scrollLines(n, top, bottom int, bg Color) {
	if n == 0 || top > bottom {
		return
	}
	height := bottom - top + 1
	if n > height {
		n = height
	}
	if n < -height {
		n = -height
	}
	if n > 0 {
		copy(g.cells[top*g.cols:(bottom-n+1)*g.cols], g.cells[(top+n)*g.cols:(bottom+1)*g.cols])
		g.clearRows(bottom-n+1, bottom, bg)
	} else {
		n = -n
		copy(g.cells[(top+n)*g.cols:(bottom+1)*g.cols], g.cells[top*g.cols:(bottom-n+1)*g.cols])
		g.clearRows(top, top+n-1, bg)
	}
}

// InsertLines inserts n blank lines at row y, pushing lines below it down
// within the scroll region. No-op when y is outside the region.
func (g *Grid) InsertLines(y, n int, bg Color) {
	if y < g.scrollTop || y > g.scrollBottom || n <= 0 {
		return
	}
	g.scrollLines(-n, y, g.scrollBottom, bg)
}

// DeleteLines removes n lines at row y, pulling lines below it up within the
// scroll region.
func (g *Grid) DeleteLines(y, n int, bg Color) {
	if y < g.scrollTop || y > g.scrollBottom || n <= 0 {
		return
	}
	g.scrollLines(n, y, g.scrollBottom, bg)
}

// InsertCells shifts the tail of row y right by n starting at x, filling the
// gap with blanks.
func (g *Grid) InsertCells(x, y, n int, bg Color) {
	if y < 0 || y >= g.rows || x < 0 || x >= g.cols || n <= 0 {
		return
	}
	if n > g.cols-x {
		n = g.cols - x
	}
	row := g.cells[y*g.cols : (y+1)*g.cols]
	copy(row[x+n:], row[x:g.cols-n])
	for i := x; i < x+n; i++ {
		row[i] = blank(bg)
	}
}

// DeleteCells shifts the tail of row y left by n starting at x, filling the
// vacated tail with blanks.
func (g *Grid) DeleteCells(x, y, n int, bg Color) {
	if y < 0 || y >= g.rows || x < 0 || x >= g.cols || n <= 0 {
		return
	}
	if n > g.cols-x {
		n = g.cols - x
	}
	row := g.cells[y*g.cols : (y+1)*g.cols]
	copy(row[x:], row[x+n:])
	for i := g.cols - n; i < g.cols; i++ {
		row[i] = blank(bg)
	}
}

// ClearRow blanks columns [x0, x1] of row y.
func (g *Grid) ClearRow(y, x0, x1 int, bg Color) {
	if y < 0 || y >= g.rows {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 >= g.cols {
		x1 = g.cols - 1
	}
	for x := x0; x <= x1; x++ {
		g.cells[y*g.cols+x] = blank(bg)
	}
}

func (g *Grid) clearRows(y0, y1 int, bg Color) {
	for y := y0; y <= y1; y++ {
		g.ClearRow(y, 0, g.cols-1, bg)
	}
}

// Clear blanks the whole grid.
func (g *Grid) Clear(bg Color) { g.clearAll(bg) }

func (g *Grid) clearAll(bg Color) {
	b := blank(bg)
	for i := range g.cells {
		g.cells[i] = b
	}
}

// Resize reallocates the backing storage for the new dimensions and swaps it
// in wholesale, so no reader of this Grid ever observes inconsistent
// dimensions mid-resize. Content in the overlapping area is preserved and the
// cursor keeps its logical position where it still fits.
func (g *Grid) Resize(cols, rows int) {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	if cols == g.cols && rows == g.rows {
		return
	}
	next := make([]Cell, cols*rows)
	b := blank(DefaultBG)
	for i := range next {
		next[i] = b
	}
	copyRows := g.rows
	if rows < copyRows {
		copyRows = rows
	}
	copyCols := g.cols
	if cols < copyCols {
		copyCols = cols
	}
	for y := 0; y < copyRows; y++ {
		copy(next[y*cols:y*cols+copyCols], g.cells[y*g.cols:y*g.cols+copyCols])
	}

	// Single assignment block: dimensions, storage and cursor change together.
	g.cells = next
	g.cols, g.rows = cols, rows
	g.scrollTop, g.scrollBottom = 0, rows-1
	g.MoveCursor(g.cursorX, g.cursorY)
}
