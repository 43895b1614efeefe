// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/region_test.go
// Summary: Region header and cell layout tests.

package protocol

import (
	"encoding/binary"
	"errors"
	"testing"
	"unsafe"

	"loom/vt"
)

func TestRawCellLayout(t *testing.T) {
	if unsafe.Sizeof(RawCell{}) != RawCellSize {
		t.Fatalf("RawCell size = %d, want %d", unsafe.Sizeof(RawCell{}), RawCellSize)
	}
	if unsafe.Alignof(RawCell{}) > 8 {
		t.Fatalf("RawCell alignment = %d", unsafe.Alignof(RawCell{}))
	}
}

func TestHeaderRoundtrip(t *testing.T) {
	b := make([]byte, RegionSize(80, 24, 4096))
	in := Header{Generation: 7, Cols: 80, Rows: 24, RingCap: 4096}
	PutHeader(b, in)

	out, err := ParseHeader(b)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if out != in {
		t.Fatalf("header = %+v, want %+v", out, in)
	}
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	b := make([]byte, RegionSize(4, 4, 0))
	PutHeader(b, Header{Generation: 1, Cols: 4, Rows: 4})
	b[OffMagic] ^= 0xff
	if _, err := ParseHeader(b); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestParseHeaderRejectsFutureVersion(t *testing.T) {
	b := make([]byte, RegionSize(4, 4, 0))
	PutHeader(b, Header{Generation: 1, Cols: 4, Rows: 4})
	binary.LittleEndian.PutUint16(b[OffVersion:], RegionVersion+1)
	if _, err := ParseHeader(b); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("err = %v, want ErrVersionMismatch", err)
	}
}

func TestParseHeaderRejectsTruncation(t *testing.T) {
	b := make([]byte, RegionSize(80, 24, 0))
	PutHeader(b, Header{Generation: 1, Cols: 80, Rows: 24})
	if _, err := ParseHeader(b[:HeaderSize+100]); !errors.Is(err, ErrTruncatedRegion) {
		t.Fatalf("err = %v, want ErrTruncatedRegion", err)
	}
	if _, err := ParseHeader(b[:10]); !errors.Is(err, ErrTruncatedRegion) {
		t.Fatalf("tiny buffer err = %v, want ErrTruncatedRegion", err)
	}
}

func TestParseHeaderRejectsBadDimensions(t *testing.T) {
	b := make([]byte, RegionSize(4, 4, 0))
	PutHeader(b, Header{Generation: 1, Cols: 4, Rows: 4})
	binary.LittleEndian.PutUint32(b[OffCols:], MaxCols+1)
	if _, err := ParseHeader(b); !errors.Is(err, ErrBadDimensions) {
		t.Fatalf("err = %v, want ErrBadDimensions", err)
	}
	binary.LittleEndian.PutUint32(b[OffCols:], 0)
	if _, err := ParseHeader(b); !errors.Is(err, ErrBadDimensions) {
		t.Fatalf("zero cols err = %v, want ErrBadDimensions", err)
	}
}

func TestColorPacking(t *testing.T) {
	cases := []vt.Color{
		{},
		{Mode: vt.ColorModeStandard, Value: 3},
		{Mode: vt.ColorMode256, Value: 208},
		{Mode: vt.ColorModeRGB, R: 0x12, G: 0x34, B: 0x56},
	}
	for _, c := range cases {
		if got := UnpackColor(PackColor(c)); got != c {
			t.Fatalf("roundtrip %+v = %+v", c, got)
		}
	}
}

func TestCellConversion(t *testing.T) {
	in := vt.Cell{
		Rune: '界',
		FG:   vt.Color{Mode: vt.ColorModeRGB, R: 10, G: 20, B: 30},
		BG:   vt.Color{Mode: vt.ColorMode256, Value: 17},
		Attr: vt.AttrBold | vt.AttrReverse,
		Wide: true,
	}
	if got := FromCell(in).Cell(); got != in {
		t.Fatalf("roundtrip = %+v, want %+v", got, in)
	}
}

func TestCellsView(t *testing.T) {
	area := make([]byte, 4*RawCellSize)
	cells := CellsView(area, 4)
	if len(cells) != 4 {
		t.Fatalf("len = %d", len(cells))
	}
	cells[2] = FromCell(vt.Cell{Rune: 'q', FG: vt.DefaultFG, BG: vt.DefaultBG})
	// The view aliases the backing bytes.
	if binary.LittleEndian.Uint32(area[2*RawCellSize:]) != 'q' {
		t.Fatal("view does not alias the byte area")
	}
	if CellsView(area, 5) != nil {
		t.Fatal("oversized view not rejected")
	}
}
