// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: vt/transparency_test.go
// Summary: Output must not depend on caching or on how the stream is chunked.

package vt

import "testing"

// sampleStream exercises colors, movement, erase, wide runes and repeated
// sequences so the cache sees both misses and hits.
const sampleStream = "" +
	"\x1b[2J\x1b[Hplain \x1b[1;31mbold red\x1b[0m\r\n" +
	"wide: 世界 done\r\n" +
	"\x1b[31mred\x1b[0m and \x1b[31magain\x1b[0m\r\n" +
	"\x1b[4munder\x1b[24mline \x1b[38;5;208mpalette\x1b[0m\r\n" +
	"\x1b[2;3Hover\x1b[K\x1b[5;1Hend"

func gridsEqual(t *testing.T, a, b *Terminal) {
	t.Helper()
	ga, gb := a.Grid(), b.Grid()
	if ga.Cols() != gb.Cols() || ga.Rows() != gb.Rows() {
		t.Fatalf("dimensions differ: %dx%d vs %dx%d", ga.Cols(), ga.Rows(), gb.Cols(), gb.Rows())
	}
	for y := 0; y < ga.Rows(); y++ {
		for x := 0; x < ga.Cols(); x++ {
			if ga.Cell(x, y) != gb.Cell(x, y) {
				t.Fatalf("cell (%d,%d) differs: %+v vs %+v", x, y, ga.Cell(x, y), gb.Cell(x, y))
			}
		}
	}
	ax, ay := ga.Cursor()
	bx, by := gb.Cursor()
	if ax != bx || ay != by {
		t.Fatalf("cursor differs: (%d,%d) vs (%d,%d)", ax, ay, bx, by)
	}
}

func TestCacheTransparency(t *testing.T) {
	cached := NewTerminal(40, 6)
	uncached := NewTerminal(40, 6, WithoutCache())

	// Feed twice so the cached terminal replays from the cache.
	for i := 0; i < 2; i++ {
		cached.Feed([]byte(sampleStream))
		uncached.Feed([]byte(sampleStream))
	}
	if cached.Cache().Hits() == 0 {
		t.Fatal("second pass produced no cache hits")
	}
	gridsEqual(t, cached, uncached)
}

func TestChunkingInvariance(t *testing.T) {
	whole := NewTerminal(40, 6)
	whole.Feed([]byte(sampleStream))

	for _, size := range []int{1, 2, 3, 7} {
		split := NewTerminal(40, 6)
		data := []byte(sampleStream)
		for off := 0; off < len(data); off += size {
			end := off + size
			if end > len(data) {
				end = len(data)
			}
			split.Feed(data[off:end])
		}
		gridsEqual(t, whole, split)
		if split.ParseErrors() != whole.ParseErrors() {
			t.Fatalf("chunk size %d changed parse errors: %d vs %d",
				size, split.ParseErrors(), whole.ParseErrors())
		}
	}
}

func TestUTF8CarryAcrossFeeds(t *testing.T) {
	term := NewTerminal(10, 2)
	seq := []byte("世") // 3 bytes
	term.Feed(seq[:1])
	term.Feed(seq[1:2])
	term.Feed(seq[2:])
	c := term.Grid().Cell(0, 0)
	if c.Rune != '世' || !c.Wide {
		t.Fatalf("carried rune = %+v", c)
	}
	if term.ParseErrors() != 0 {
		t.Fatalf("parse errors = %d", term.ParseErrors())
	}
}

func TestEscapeSplitAcrossFeeds(t *testing.T) {
	term := NewTerminal(10, 2)
	term.Feed([]byte("\x1b["))
	term.Feed([]byte("3"))
	term.Feed([]byte("1m"))
	term.Feed([]byte("x"))

	red := Color{Mode: ColorModeStandard, Value: 1}
	if got := term.Grid().Cell(0, 0).FG; got != red {
		t.Fatalf("split sequence lost: fg = %+v", got)
	}
}

func TestControlInsideCSI(t *testing.T) {
	term := NewTerminal(10, 2)
	// A carriage return embedded in a CSI executes without killing the
	// sequence.
	term.Feed([]byte("ab\x1b[\r1mx"))
	if term.Grid().Cell(0, 0).Rune != 'x' {
		t.Fatalf("cell (0,0) = %+v", term.Grid().Cell(0, 0))
	}
	if term.Grid().Cell(0, 0).Attr&AttrBold == 0 {
		t.Fatal("SGR 1 lost")
	}
}

func TestCancelAbortsSequence(t *testing.T) {
	term := NewTerminal(10, 2)
	term.Feed([]byte("\x1b[31\x18x"))
	if term.Grid().Cell(0, 0).Rune != 'x' {
		t.Fatal("text after CAN lost")
	}
	if term.Grid().Cell(0, 0).FG != DefaultFG {
		t.Fatal("cancelled SGR still applied")
	}
	if term.ParseErrors() != 1 {
		t.Fatalf("parse errors = %d", term.ParseErrors())
	}
}
