// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: vt/sgr.go
// Summary: SGR (Select Graphic Rendition) - text attributes and colors.
// Usage: Part of the escape-sequence interpreter.

package vt

// applySGR processes SGR parameters: attributes (bold, underline, reverse)
// and colors (standard, 256-color, RGB). The params slice may be shared with
// a cached action and must not be mutated.
func (t *Terminal) applySGR(params []int) {
	if len(params) == 0 {
		params = []int{0}
	}
	i := 0
	for i < len(params) {
		p := params[i]
		switch {
		case p == 0:
			t.curFG = t.defaultFG
			t.curBG = t.defaultBG
			t.curAttr = 0
		case p == 1:
			t.curAttr |= AttrBold
		case p == 4:
			t.curAttr |= AttrUnderline
		case p == 7:
			t.curAttr |= AttrReverse
		case p == 22:
			t.curAttr &^= AttrBold
		case p == 24:
			t.curAttr &^= AttrUnderline
		case p == 27:
			t.curAttr &^= AttrReverse
		case p >= 30 && p <= 37:
			t.curFG = Color{Mode: ColorModeStandard, Value: uint8(p - 30)}
		case p == 39:
			t.curFG = t.defaultFG
		case p >= 40 && p <= 47:
			t.curBG = Color{Mode: ColorModeStandard, Value: uint8(p - 40)}
		case p == 49:
			t.curBG = t.defaultBG
		case p == 38: // Extended foreground
			if i+2 < len(params) && params[i+1] == 5 {
				t.curFG = Color{Mode: ColorMode256, Value: uint8(params[i+2])}
				i += 2
			} else if i+4 < len(params) && params[i+1] == 2 {
				t.curFG = Color{Mode: ColorModeRGB, R: uint8(params[i+2]), G: uint8(params[i+3]), B: uint8(params[i+4])}
				i += 4
			}
		case p == 48: // Extended background
			if i+2 < len(params) && params[i+1] == 5 {
				t.curBG = Color{Mode: ColorMode256, Value: uint8(params[i+2])}
				i += 2
			} else if i+4 < len(params) && params[i+1] == 2 {
				t.curBG = Color{Mode: ColorModeRGB, R: uint8(params[i+2]), G: uint8(params[i+3]), B: uint8(params[i+4])}
				i += 4
			}
		case p >= 90 && p <= 97: // Bright foreground
			t.curFG = Color{Mode: ColorModeStandard, Value: uint8(p - 90 + 8)}
		case p >= 100 && p <= 107: // Bright background
			t.curBG = Color{Mode: ColorModeStandard, Value: uint8(p - 100 + 8)}
		}
		i++
	}
}
