// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/cell.go
// Summary: The 16-byte wire form of a grid cell and its color packing.
// Usage: The cell area of the shared region is a flat array of RawCell.

package protocol

import (
	"unsafe"

	"loom/vt"
)

// RawCell is the fixed wire representation of one grid cell. Its in-memory
// layout is the region layout: changing it requires a RegionVersion bump.
type RawCell struct {
	Rune uint32
	FG   uint32
	BG   uint32
	Attr uint8
	Wide uint8
	_    uint16
}

// RawCellSize is asserted at compile time so the mapped layout can never
// drift from the declared one.
const RawCellSize = 16

var (
	_ [RawCellSize - int(unsafe.Sizeof(RawCell{}))]byte
	_ [int(unsafe.Sizeof(RawCell{})) - RawCellSize]byte
)

// PackColor encodes a vt.Color into a u32: mode in the high byte, then
// R/G/B for RGB mode or the palette value in the low byte.
func PackColor(c vt.Color) uint32 {
	switch c.Mode {
	case vt.ColorModeRGB:
		return uint32(c.Mode)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
	default:
		return uint32(c.Mode)<<24 | uint32(c.Value)
	}
}

// UnpackColor is the inverse of PackColor.
func UnpackColor(v uint32) vt.Color {
	mode := vt.ColorMode(v >> 24)
	switch mode {
	case vt.ColorModeRGB:
		return vt.Color{Mode: mode, R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}
	case vt.ColorModeStandard, vt.ColorMode256:
		return vt.Color{Mode: mode, Value: uint8(v)}
	default:
		return vt.Color{}
	}
}

// FromCell converts an interpreter cell to its wire form.
func FromCell(c vt.Cell) RawCell {
	rc := RawCell{
		Rune: uint32(c.Rune),
		FG:   PackColor(c.FG),
		BG:   PackColor(c.BG),
		Attr: uint8(c.Attr),
	}
	if c.Wide {
		rc.Wide = 1
	}
	return rc
}

// Cell converts a wire cell back to the interpreter form.
func (rc RawCell) Cell() vt.Cell {
	return vt.Cell{
		Rune: rune(rc.Rune),
		FG:   UnpackColor(rc.FG),
		BG:   UnpackColor(rc.BG),
		Attr: vt.Attribute(rc.Attr),
		Wide: rc.Wide != 0,
	}
}

// CellsView reinterprets the cell area of a mapped region as a []RawCell
// without copying. The caller must have validated the header first; count is
// cols*rows from the validated header.
func CellsView(area []byte, count int) []RawCell {
	if len(area) < count*RawCellSize || count == 0 {
		return nil
	}
	return unsafe.Slice((*RawCell)(unsafe.Pointer(&area[0])), count)
}
