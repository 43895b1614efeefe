// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: vt/term.go
// Summary: The terminal interpreter state: pen, modes, tab stops, saved cursor.
// Usage: Owned by the daemon's session; Feed (parser.go) drives it from PTY bytes.
// Notes: Deterministic for a given byte stream and starting state, with or
//        without the sequence cache.

package vt

import (
	"io"
	"log"

	"github.com/mattn/go-runewidth"
)

var debugLog = log.New(io.Discard, "", log.LstdFlags)

// SetDebugLogger routes verbose interpreter tracing to the given logger.
func SetDebugLogger(l *log.Logger) {
	if l != nil {
		debugLog = l
	}
}

// Terminal interprets a PTY byte stream into a Grid. It is not safe for
// concurrent use; the owning session serialises Feed, Resize and reads.
type Terminal struct {
	grid  *Grid
	cache *SeqCache

	// Parser state (parser.go).
	state    parseState
	seq      []byte
	carry    [4]byte
	carryLen int

	// Current pen.
	curFG, curBG Color
	curAttr      Attribute
	defaultFG    Color
	defaultBG    Color

	// Saved cursor (DECSC/SCOSC).
	savedX, savedY   int
	savedFG, savedBG Color
	savedAttr        Attribute

	tabStops      map[int]bool
	cursorVisible bool
	autoWrap      bool
	wrapNext      bool
	originMode    bool
	insertMode    bool

	lastGlyph rune
	title     string

	parseErrors uint64

	// TitleChanged fires when OSC 0/2 sets a new title.
	TitleChanged func(string)
	// WriteBack sends terminal responses (DSR, DA) toward the PTY.
	WriteBack func([]byte)
}

// Option configures a Terminal.
type Option func(*Terminal)

// WithCache attaches a sequence cache with the given capacity.
func WithCache(capacity int) Option {
	return func(t *Terminal) { t.cache = NewSeqCache(capacity) }
}

// WithoutCache disables the sequence cache. Output is identical either way;
// only parse latency differs.
func WithoutCache() Option {
	return func(t *Terminal) { t.cache = nil }
}

// NewTerminal creates a terminal with the given visible dimensions. The
// sequence cache is enabled at DefaultCacheCapacity unless overridden.
func NewTerminal(cols, rows int, opts ...Option) *Terminal {
	t := &Terminal{
		grid:          NewGrid(cols, rows),
		cache:         NewSeqCache(DefaultCacheCapacity),
		seq:           make([]byte, 0, 64),
		curFG:         DefaultFG,
		curBG:         DefaultBG,
		defaultFG:     DefaultFG,
		defaultBG:     DefaultBG,
		tabStops:      make(map[int]bool),
		cursorVisible: true,
		autoWrap:      true,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.resetTabStops()
	return t
}

// Grid returns the authoritative terminal buffer.
func (t *Terminal) Grid() *Grid { return t.grid }

// Cache returns the sequence cache, or nil when disabled.
func (t *Terminal) Cache() *SeqCache { return t.cache }

// CursorVisible reports whether DECTCEM has the cursor shown.
func (t *Terminal) CursorVisible() bool { return t.cursorVisible }

// Title returns the last OSC 0/2 title.
func (t *Terminal) Title() string { return t.title }

// ParseErrors returns the count of malformed or unsupported sequences that
// were skipped.
func (t *Terminal) ParseErrors() uint64 { return t.parseErrors }

// Close releases per-session interpreter state. The cache is scoped to this
// instance and is reset here so unrelated sessions never share entries.
func (t *Terminal) Close() {
	if t.cache != nil {
		t.cache.Reset()
	}
}

// Resize changes the grid dimensions. Cache entries are dimension-independent
// and are deliberately kept.
func (t *Terminal) Resize(cols, rows int) {
	t.grid.Resize(cols, rows)
	t.wrapNext = false
	for x := 0; x < t.grid.Cols(); x++ {
		if x%8 == 0 {
			if _, ok := t.tabStops[x]; !ok {
				t.tabStops[x] = true
			}
		}
	}
}

// Reset performs a full terminal reset (RIS). The sequence cache survives: it
// belongs to the interpreter instance, not the screen contents.
func (t *Terminal) Reset() {
	t.curFG, t.curBG = t.defaultFG, t.defaultBG
	t.curAttr = 0
	t.cursorVisible = true
	t.autoWrap = true
	t.wrapNext = false
	t.originMode = false
	t.insertMode = false
	t.savedX, t.savedY = 0, 0
	t.savedFG, t.savedBG, t.savedAttr = t.defaultFG, t.defaultBG, 0
	t.resetTabStops()
	t.grid.SetScrollRegion(0, t.grid.Rows()-1)
	t.grid.Clear(t.defaultBG)
	t.grid.MoveCursor(0, 0)
}

func (t *Terminal) resetTabStops() {
	clear(t.tabStops)
	for x := 0; x < t.grid.Cols(); x++ {
		if x%8 == 0 {
			t.tabStops[x] = true
		}
	}
}

// --- C0 controls ---

func (t *Terminal) execControl(b byte) {
	// A control byte arriving mid-rune means the UTF-8 stream broke; drop
	// the partial rune and carry on.
	if t.carryLen > 0 {
		t.parseErrors++
		debugLog.Printf("vt: control byte %#x interrupted a multi-byte rune", b)
		t.carryLen = 0
	}
	switch b {
	case '\n', '\v', '\f':
		t.LineFeed()
	case '\r':
		t.CarriageReturn()
	case '\b':
		t.Backspace()
	case '\t':
		t.Tab()
	case 0x07: // BEL
	default:
		debugLog.Printf("vt: ignoring control byte %#x", b)
	}
}

// LineFeed moves the cursor down one line, scrolling at the bottom margin.
func (t *Terminal) LineFeed() {
	x, y := t.grid.Cursor()
	_, bottom := t.grid.ScrollRegion()
	t.wrapNext = false
	if y == bottom {
		t.grid.Scroll(1, t.curBG)
		return
	}
	t.grid.MoveCursor(x, y+1)
}

// ReverseIndex moves the cursor up one line, scrolling at the top margin.
func (t *Terminal) ReverseIndex() {
	x, y := t.grid.Cursor()
	top, _ := t.grid.ScrollRegion()
	t.wrapNext = false
	if y == top {
		t.grid.Scroll(-1, t.curBG)
		return
	}
	t.grid.MoveCursor(x, y-1)
}

func (t *Terminal) CarriageReturn() {
	_, y := t.grid.Cursor()
	t.wrapNext = false
	t.grid.MoveCursor(0, y)
}

func (t *Terminal) Backspace() {
	x, y := t.grid.Cursor()
	t.wrapNext = false
	t.grid.MoveCursor(x-1, y)
}

// Tab advances to the next tab stop, or the last column.
func (t *Terminal) Tab() {
	x, y := t.grid.Cursor()
	for nx := x + 1; nx < t.grid.Cols(); nx++ {
		if t.tabStops[nx] {
			t.grid.MoveCursor(nx, y)
			return
		}
	}
	t.grid.MoveCursor(t.grid.Cols()-1, y)
}

func (t *Terminal) tabBackward() {
	x, y := t.grid.Cursor()
	for nx := x - 1; nx >= 0; nx-- {
		if t.tabStops[nx] {
			t.grid.MoveCursor(nx, y)
			return
		}
	}
	t.grid.MoveCursor(0, y)
}

// --- Glyph placement ---

func (t *Terminal) placeRune(r rune) {
	w := runewidth.RuneWidth(r)
	if w == 0 {
		// Combining marks are not composed into the previous cell.
		return
	}
	if t.wrapNext && t.autoWrap {
		t.CarriageReturn()
		t.LineFeed()
	}
	t.wrapNext = false

	cols := t.grid.Cols()
	x, y := t.grid.Cursor()

	if w == 2 && x == cols-1 {
		if t.autoWrap {
			t.CarriageReturn()
			t.LineFeed()
			x, y = t.grid.Cursor()
		} else if x > 0 {
			x--
		}
	}

	if t.insertMode {
		t.grid.InsertCells(x, y, w, t.curBG)
	}

	cell := Cell{Rune: r, FG: t.curFG, BG: t.curBG, Attr: t.curAttr, Wide: w == 2}
	t.grid.ApplyCell(x, y, cell)
	if w == 2 {
		// Continuation cell: zero rune, same style.
		t.grid.ApplyCell(x+1, y, Cell{FG: t.curFG, BG: t.curBG, Attr: t.curAttr})
	}
	t.lastGlyph = r

	nx := x + w
	if nx >= cols {
		if t.autoWrap {
			t.grid.MoveCursor(cols-1, y)
			t.wrapNext = true
		} else {
			t.grid.MoveCursor(cols-1, y)
		}
		return
	}
	t.grid.MoveCursor(nx, y)
}

func (t *Terminal) writeBack(s string) {
	if t.WriteBack != nil {
		t.WriteBack([]byte(s))
	}
}

func (t *Terminal) setTitle(title string) {
	t.title = title
	if t.TitleChanged != nil {
		t.TitleChanged(title)
	}
}
