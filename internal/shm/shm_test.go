// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/shm/shm_test.go
// Summary: Region writer/reader tests, including the torn-read race.

package shm

import (
	"bytes"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"loom/protocol"
	"loom/vt"
)

func regionPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "loom-test.grid")
}

func uniformGrid(cols, rows int, r rune, fg vt.Color) *vt.Grid {
	g := vt.NewGrid(cols, rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			g.ApplyCell(x, y, vt.Cell{Rune: r, FG: fg, BG: vt.DefaultBG})
		}
	}
	return g
}

func TestCreateAndOpen(t *testing.T) {
	path := regionPath(t)
	w, err := Create(path, 80, 24, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	hdr := r.Header()
	if hdr.Cols != 80 || hdr.Rows != 24 {
		t.Fatalf("header dimensions = %dx%d, want 80x24", hdr.Cols, hdr.Rows)
	}
	if hdr.Generation != 1 {
		t.Fatalf("generation = %d, want 1", hdr.Generation)
	}
}

func TestOpenMissingRegion(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.grid"))
	if !errors.Is(err, ErrRegionUnavailable) {
		t.Fatalf("err = %v, want ErrRegionUnavailable", err)
	}
}

func TestPublishAndSync(t *testing.T) {
	path := regionPath(t)
	w, err := Create(path, 10, 4, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	// Nothing published yet.
	if snap, ok, err := r.TrySync(); ok || err != nil || snap != nil {
		t.Fatalf("TrySync before publish = (%v, %v, %v)", snap, ok, err)
	}

	g := vt.NewGrid(10, 4)
	g.ApplyCell(3, 1, vt.Cell{Rune: 'X', FG: vt.DefaultFG, BG: vt.DefaultBG, Attr: vt.AttrBold})
	g.MoveCursor(4, 1)
	seq := w.Publish(g, true)
	if seq != 1 {
		t.Fatalf("first publish sequence = %d, want 1", seq)
	}

	snap, ok, err := r.TrySync()
	if err != nil || !ok {
		t.Fatalf("TrySync = (%v, %v)", ok, err)
	}
	if snap.Sequence != 1 {
		t.Fatalf("snapshot sequence = %d, want 1", snap.Sequence)
	}
	got := snap.Cells[1*10+3]
	if got.Rune != 'X' || got.Attr != vt.AttrBold {
		t.Fatalf("cell (3,1) = %+v", got)
	}
	if snap.CursorX != 4 || snap.CursorY != 1 || !snap.CursorVisible {
		t.Fatalf("cursor = (%d,%d,%v)", snap.CursorX, snap.CursorY, snap.CursorVisible)
	}

	// No second update until the next publish.
	if _, ok, _ := r.TrySync(); ok {
		t.Fatal("TrySync reported an update with no new publish")
	}
}

func TestSequenceIncrementsOncePerPublish(t *testing.T) {
	path := regionPath(t)
	w, err := Create(path, 5, 2, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	g := vt.NewGrid(5, 2)
	for i := 1; i <= 10; i++ {
		if seq := w.Publish(g, false); seq != uint64(i) {
			t.Fatalf("publish %d produced sequence %d", i, seq)
		}
	}
}

func TestLatestWins(t *testing.T) {
	path := regionPath(t)
	w, err := Create(path, 4, 1, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	for _, ch := range "abc" {
		g := vt.NewGrid(4, 1)
		g.ApplyCell(0, 0, vt.Cell{Rune: ch, FG: vt.DefaultFG, BG: vt.DefaultBG})
		w.Publish(g, false)
	}

	snap, ok, err := r.TrySync()
	if err != nil || !ok {
		t.Fatalf("TrySync = (%v, %v)", ok, err)
	}
	if snap.Sequence != 3 || snap.Cells[0].Rune != 'c' {
		t.Fatalf("got sequence %d rune %q, want 3 %q", snap.Sequence, snap.Cells[0].Rune, 'c')
	}
}

// TestNoTornReads races a publisher against a reader. Every accepted
// snapshot must be uniform; a mix of the two published patterns means the
// validation let a torn copy through.
func TestNoTornReads(t *testing.T) {
	path := regionPath(t)
	const cols, rows = 40, 12
	w, err := Create(path, cols, rows, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	red := vt.Color{Mode: vt.ColorModeStandard, Value: 1}
	blue := vt.Color{Mode: vt.ColorModeStandard, Value: 4}
	gridA := uniformGrid(cols, rows, 'A', red)
	gridB := uniformGrid(cols, rows, 'B', blue)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			if i%2 == 0 {
				w.Publish(gridA, false)
			} else {
				w.Publish(gridB, false)
			}
		}
	}()

	accepted := 0
	for i := 0; i < 20000; i++ {
		snap, ok, err := r.TrySync()
		if err != nil {
			t.Fatalf("TrySync: %v", err)
		}
		if !ok {
			continue
		}
		accepted++
		first := snap.Cells[0]
		for j, c := range snap.Cells {
			if c.Rune != first.Rune || c.FG != first.FG {
				t.Fatalf("torn snapshot at cell %d: %+v vs %+v", j, c, first)
			}
		}
	}
	close(done)
	wg.Wait()

	if accepted == 0 {
		t.Fatal("reader never accepted a snapshot")
	}
}

func TestCloseMarksRegion(t *testing.T) {
	path := regionPath(t)
	w, err := Create(path, 6, 2, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	g := vt.NewGrid(6, 2)
	g.ApplyCell(0, 0, vt.Cell{Rune: 'z', FG: vt.DefaultFG, BG: vt.DefaultBG})
	w.Publish(g, false)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A client attaching after shutdown still reads the final state.
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open after close: %v", err)
	}
	defer r.Close()

	snap, ok, err := r.TrySync()
	if !ok || !errors.Is(err, ErrRegionClosed) {
		t.Fatalf("TrySync = (%v, %v), want final snapshot with ErrRegionClosed", ok, err)
	}
	if !snap.Closed || snap.Cells[0].Rune != 'z' {
		t.Fatalf("final snapshot = %+v", snap.Cells[0])
	}
}

func TestNewGenerationRemap(t *testing.T) {
	path := regionPath(t)
	w, err := Create(path, 8, 3, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	w.Publish(vt.NewGrid(8, 3), false)
	if _, ok, err := r.TrySync(); !ok || err != nil {
		t.Fatalf("TrySync gen 1 = (%v, %v)", ok, err)
	}

	if err := w.NewGeneration(16, 6); err != nil {
		t.Fatalf("NewGeneration: %v", err)
	}
	if w.Generation() != 2 {
		t.Fatalf("generation = %d, want 2", w.Generation())
	}
	w.Publish(vt.NewGrid(16, 6), false)

	// The old mapping reports the supersede; the reader remaps and picks
	// up the new geometry.
	_, _, err = r.TrySync()
	if !errors.Is(err, ErrGenerationChanged) {
		t.Fatalf("TrySync on stale mapping = %v, want ErrGenerationChanged", err)
	}
	if err := r.Reopen(); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if r.Generation() != 2 {
		t.Fatalf("reopened generation = %d, want 2", r.Generation())
	}
	snap, ok, err := r.TrySync()
	if err != nil || !ok {
		t.Fatalf("TrySync gen 2 = (%v, %v)", ok, err)
	}
	if snap.Cols != 16 || snap.Rows != 6 {
		t.Fatalf("snapshot geometry = %dx%d, want 16x6", snap.Cols, snap.Rows)
	}
	if snap.Sequence <= 1 {
		t.Fatalf("sequence did not carry across generations: %d", snap.Sequence)
	}
}

func TestEchoRingRoundtrip(t *testing.T) {
	path := regionPath(t)
	w, err := Create(path, 4, 2, 1024)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	w.AppendEcho([]byte("hello "))
	w.AppendEcho([]byte("world"))

	buf := make([]byte, 64)
	n := r.ReadEcho(buf)
	if string(buf[:n]) != "hello world" {
		t.Fatalf("echo = %q", buf[:n])
	}
	if r.ReadEcho(buf) != 0 {
		t.Fatal("ring not drained")
	}
}

func TestEchoRingDropsOldest(t *testing.T) {
	ringBytes := make([]byte, protocol.HeaderSize+1024)
	ring := newRing(ringBytes, protocol.HeaderSize, 1024)

	// Fill past capacity; only the newest kilobyte survives. The stale
	// cursor (0) must resume at the oldest retained byte.
	for i := 0; i < 3; i++ {
		chunk := bytes.Repeat([]byte{byte('a' + i)}, 512)
		ring.Write(chunk)
	}
	out := make([]byte, 2048)
	n, _ := ring.ReadFrom(0, out)
	if n != 1024 {
		t.Fatalf("read %d bytes, want 1024", n)
	}
	if out[0] != 'b' || out[511] != 'b' || out[512] != 'c' || out[1023] != 'c' {
		t.Fatalf("oldest data not dropped: %q...%q", out[0], out[1023])
	}
}

func TestEchoRingOversizeWriteKeepsTail(t *testing.T) {
	ringBytes := make([]byte, protocol.HeaderSize+1024)
	ring := newRing(ringBytes, protocol.HeaderSize, 1024)

	big := make([]byte, 1500)
	for i := range big {
		big[i] = byte(i % 251)
	}
	ring.Write(big)

	out := make([]byte, 2048)
	n, _ := ring.ReadFrom(0, out)
	if n != 1024 {
		t.Fatalf("read %d bytes, want 1024", n)
	}
	if !bytes.Equal(out[:n], big[len(big)-1024:]) {
		t.Fatal("ring did not keep the tail of an oversize write")
	}
}

func TestEchoRingCursorAdvances(t *testing.T) {
	ringBytes := make([]byte, protocol.HeaderSize+1024)
	ring := newRing(ringBytes, protocol.HeaderSize, 1024)

	ring.Write([]byte("one"))
	out := make([]byte, 16)
	n, pos := ring.ReadFrom(0, out)
	if n != 3 || string(out[:n]) != "one" {
		t.Fatalf("first read = %q", out[:n])
	}
	if n, _ := ring.ReadFrom(pos, out); n != 0 {
		t.Fatal("cursor did not consume the data")
	}

	ring.Write([]byte("two"))
	n, _ = ring.ReadFrom(pos, out)
	if string(out[:n]) != "two" {
		t.Fatalf("second read = %q", out[:n])
	}
}

// Each reader keeps its own cursor over the read-only mapping, so two
// attached clients both see the full echo stream.
func TestEchoTwoReadersIndependent(t *testing.T) {
	path := regionPath(t)
	w, err := Create(path, 4, 2, 1024)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	r1, err := Open(path)
	if err != nil {
		t.Fatalf("Open r1: %v", err)
	}
	defer r1.Close()
	r2, err := Open(path)
	if err != nil {
		t.Fatalf("Open r2: %v", err)
	}
	defer r2.Close()

	w.AppendEcho([]byte("shared"))

	buf := make([]byte, 16)
	if n := r1.ReadEcho(buf); string(buf[:n]) != "shared" {
		t.Fatalf("r1 echo = %q", buf[:n])
	}
	if n := r2.ReadEcho(buf); string(buf[:n]) != "shared" {
		t.Fatalf("r2 echo = %q", buf[:n])
	}
	if r1.ReadEcho(buf) != 0 || r2.ReadEcho(buf) != 0 {
		t.Fatal("cursors did not advance independently")
	}
}
