// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: vt/dispatch.go
// Summary: Applies parsed actions (CSI/ESC/OSC) to the terminal state.
// Usage: Invoked on both the parse path and the cache replay path.

package vt

import (
	"fmt"
	"strconv"
	"strings"
)

func (t *Terminal) applyAction(act Action) {
	switch act.Kind {
	case KindCSI:
		t.dispatchCSI(act)
	case KindESC:
		t.dispatchESC(act)
	case KindOSC:
		t.dispatchOSC(act)
	}
}

func (t *Terminal) dispatchCSI(act Action) {
	params := act.Params
	param := func(i, def int) int {
		if i < len(params) && params[i] != 0 {
			return params[i]
		}
		return def
	}

	if act.Final == 'h' || act.Final == 'l' {
		t.setModes(act.Final == 'h', act.Private, params)
		return
	}

	x, y := t.grid.Cursor()
	switch act.Final {
	case 'A': // CUU
		t.wrapNext = false
		t.grid.MoveCursor(x, y-param(0, 1))
	case 'B': // CUD
		t.wrapNext = false
		t.grid.MoveCursor(x, y+param(0, 1))
	case 'C': // CUF
		t.wrapNext = false
		t.grid.MoveCursor(x+param(0, 1), y)
	case 'D': // CUB
		t.wrapNext = false
		t.grid.MoveCursor(x-param(0, 1), y)
	case 'E': // CNL
		t.wrapNext = false
		t.grid.MoveCursor(0, y+param(0, 1))
	case 'F': // CPL
		t.wrapNext = false
		t.grid.MoveCursor(0, y-param(0, 1))
	case 'G', '`': // CHA / HPA
		t.wrapNext = false
		t.grid.MoveCursor(param(0, 1)-1, y)
	case 'H', 'f': // CUP / HVP
		t.cursorPosition(param(0, 1)-1, param(1, 1)-1)
	case 'd': // VPA
		t.wrapNext = false
		row := param(0, 1) - 1
		if t.originMode {
			top, _ := t.grid.ScrollRegion()
			row += top
		}
		t.grid.MoveCursor(x, row)
	case 'I': // CHT
		for n := param(0, 1); n > 0; n-- {
			t.Tab()
		}
	case 'Z': // CBT
		for n := param(0, 1); n > 0; n-- {
			t.tabBackward()
		}
	case 'J':
		t.eraseDisplay(param(0, 0))
	case 'K':
		t.eraseLine(param(0, 0))
	case 'X': // ECH
		t.grid.ClearRow(y, x, x+param(0, 1)-1, t.curBG)
	case 'P': // DCH
		t.grid.DeleteCells(x, y, param(0, 1), t.curBG)
	case '@': // ICH
		t.grid.InsertCells(x, y, param(0, 1), t.curBG)
	case 'L': // IL
		t.wrapNext = false
		t.grid.InsertLines(y, param(0, 1), t.curBG)
	case 'M': // DL
		t.wrapNext = false
		t.grid.DeleteLines(y, param(0, 1), t.curBG)
	case 'S': // SU
		t.grid.Scroll(param(0, 1), t.curBG)
	case 'T': // SD
		t.grid.Scroll(-param(0, 1), t.curBG)
	case 'b': // REP
		if t.lastGlyph != 0 {
			for n := param(0, 1); n > 0; n-- {
				t.placeRune(t.lastGlyph)
			}
		}
	case 'm':
		t.applySGR(params)
	case 'r': // DECSTBM
		t.grid.SetScrollRegion(param(0, 1)-1, param(1, t.grid.Rows())-1)
		t.grid.MoveCursor(0, 0)
	case 's': // SCOSC
		t.saveCursor()
	case 'u': // SCORC
		t.restoreCursor()
	case 'g': // TBC
		switch param(0, 0) {
		case 0:
			delete(t.tabStops, x)
		case 3:
			clear(t.tabStops)
		}
	case 'n': // DSR
		switch param(0, 0) {
		case 5:
			t.writeBack("\x1b[0n")
		case 6:
			t.writeBack(fmt.Sprintf("\x1b[%d;%dR", y+1, x+1))
		}
	case 'c': // DA
		if act.Inter == 0 && !act.Private {
			t.writeBack("\x1b[?62;22c")
		}
	default:
		debugLog.Printf("vt: unhandled CSI final %q", act.Final)
	}
}

// cursorPosition implements CUP with origin-mode translation.
func (t *Terminal) cursorPosition(row, col int) {
	t.wrapNext = false
	if t.originMode {
		top, bottom := t.grid.ScrollRegion()
		row += top
		if row > bottom {
			row = bottom
		}
	}
	t.grid.MoveCursor(col, row)
}

func (t *Terminal) eraseDisplay(mode int) {
	x, y := t.grid.Cursor()
	switch mode {
	case 0: // Cursor to end of screen.
		t.grid.ClearRow(y, x, t.grid.Cols()-1, t.curBG)
		for ny := y + 1; ny < t.grid.Rows(); ny++ {
			t.grid.ClearRow(ny, 0, t.grid.Cols()-1, t.curBG)
		}
	case 1: // Start of screen to cursor.
		for ny := 0; ny < y; ny++ {
			t.grid.ClearRow(ny, 0, t.grid.Cols()-1, t.curBG)
		}
		t.grid.ClearRow(y, 0, x, t.curBG)
	case 2, 3:
		t.grid.Clear(t.curBG)
	}
}

func (t *Terminal) eraseLine(mode int) {
	x, y := t.grid.Cursor()
	switch mode {
	case 0:
		t.grid.ClearRow(y, x, t.grid.Cols()-1, t.curBG)
	case 1:
		t.grid.ClearRow(y, 0, x, t.curBG)
	case 2:
		t.grid.ClearRow(y, 0, t.grid.Cols()-1, t.curBG)
	}
}

func (t *Terminal) setModes(set, private bool, params []int) {
	for _, mode := range params {
		switch {
		case private && mode == 25: // DECTCEM
			t.cursorVisible = set
		case private && mode == 7: // DECAWM
			t.autoWrap = set
			t.wrapNext = false
		case private && mode == 6: // DECOM
			t.originMode = set
			t.cursorPosition(0, 0)
		case !private && mode == 4: // IRM
			t.insertMode = set
		case private && mode == 2004:
			// Bracketed paste: tracked by the client, nothing to do here.
		default:
			debugLog.Printf("vt: ignoring mode %d (private=%v set=%v)", mode, private, set)
		}
	}
}

func (t *Terminal) saveCursor() {
	t.savedX, t.savedY = t.grid.Cursor()
	t.savedFG, t.savedBG, t.savedAttr = t.curFG, t.curBG, t.curAttr
}

func (t *Terminal) restoreCursor() {
	t.wrapNext = false
	t.grid.MoveCursor(t.savedX, t.savedY)
	t.curFG, t.curBG, t.curAttr = t.savedFG, t.savedBG, t.savedAttr
}

func (t *Terminal) dispatchESC(act Action) {
	if act.Inter != 0 {
		// Charset designation; loom is UTF-8 only.
		return
	}
	switch act.Final {
	case 'c':
		t.Reset()
	case 'D': // IND
		t.LineFeed()
	case 'E': // NEL
		t.CarriageReturn()
		t.LineFeed()
	case 'M': // RI
		t.ReverseIndex()
	case '7':
		t.saveCursor()
	case '8':
		t.restoreCursor()
	case 'H': // HTS
		x, _ := t.grid.Cursor()
		t.tabStops[x] = true
	case '=', '>': // Keypad modes
	}
}

func (t *Terminal) dispatchOSC(act Action) {
	switch act.Code {
	case 0, 2:
		t.setTitle(act.Payload)
	case 10:
		if c, ok := parseOSCColor(act.Payload); ok {
			t.defaultFG = c
		}
	case 11:
		if c, ok := parseOSCColor(act.Payload); ok {
			t.defaultBG = c
		}
	}
}

// parseOSCColor handles the "rgb:RRRR/GGGG/BBBB" form used by OSC 10/11.
func parseOSCColor(payload string) (Color, bool) {
	if !strings.HasPrefix(payload, "rgb:") {
		return Color{}, false
	}
	parts := strings.Split(strings.TrimPrefix(payload, "rgb:"), "/")
	if len(parts) != 3 {
		return Color{}, false
	}
	r, errR := strconv.ParseInt(parts[0], 16, 32)
	g, errG := strconv.ParseInt(parts[1], 16, 32)
	b, errB := strconv.ParseInt(parts[2], 16, 32)
	if errR != nil || errG != nil || errB != nil {
		return Color{}, false
	}
	// OSC colors are often 16-bit (4 hex digits); scale down to 8-bit.
	scale := func(v int64, digits int) uint8 {
		if digits > 2 {
			return uint8(v / 257)
		}
		return uint8(v)
	}
	return Color{
		Mode: ColorModeRGB,
		R:    scale(r, len(parts[0])),
		G:    scale(g, len(parts[1])),
		B:    scale(b, len(parts[2])),
	}, true
}
