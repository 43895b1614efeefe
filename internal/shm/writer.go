// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/shm/writer.go
// Summary: Daemon-side shared region: creation, snapshot publish, generation bumps.
// Usage: Exactly one writer per session; exclusivity is structural, not locked.
// Notes: Publish ordering is write-stamp increment, data writes, sequence
//        increment. A reader accepts a snapshot only when the sequence is
//        unchanged across its copy and the write stamp equals it; see
//        reader.go for the full discipline.

package shm

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"loom/protocol"
	"loom/vt"
)

var (
	ErrRegionUnavailable = errors.New("shm: region not available")
	ErrRegionClosed      = errors.New("shm: region closed by writer")
	ErrGenerationChanged = errors.New("shm: region superseded by a new generation")
)

// Writer owns a mapped region file and publishes grid snapshots into it.
// It is not safe for concurrent use; the session serialises access.
type Writer struct {
	path string
	f    *os.File
	data []byte
	hdr  protocol.Header

	cells []protocol.RawCell
	ring  *Ring
}

func seqWord(data []byte) *uint64 {
	return (*uint64)(unsafe.Pointer(&data[protocol.OffSequence]))
}

func stampWord(data []byte) *uint64 {
	return (*uint64)(unsafe.Pointer(&data[protocol.OffWriteStamp]))
}

// Create builds a fresh generation-1 region at path. The file is prepared
// under a temporary name and renamed into place so a concurrent reader never
// maps a half-initialised region.
func Create(path string, cols, rows, ringCap int) (*Writer, error) {
	return create(path, cols, rows, ringCap, 1, 0)
}

func create(path string, cols, rows, ringCap int, generation, startSeq uint64) (*Writer, error) {
	if cols < 1 || rows < 1 {
		return nil, fmt.Errorf("shm: invalid dimensions %dx%d", cols, rows)
	}
	if ringCap > 0 {
		ringCap = nextPow2(ringCap)
	}

	tmp := path + ".next"
	_ = os.Remove(tmp)
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: create region: %w", err)
	}
	size := protocol.RegionSize(cols, rows, ringCap)
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("shm: size region: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("shm: map region: %w", err)
	}

	hdr := protocol.Header{Generation: generation, Cols: cols, Rows: rows, RingCap: ringCap}
	protocol.PutHeader(data, hdr)
	atomic.StoreUint64(seqWord(data), startSeq)
	atomic.StoreUint64(stampWord(data), startSeq)

	if err := unix.Msync(data, unix.MS_SYNC); err != nil {
		_ = unix.Munmap(data)
		f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("shm: sync region: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = unix.Munmap(data)
		f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("shm: publish region file: %w", err)
	}

	w := &Writer{path: path, f: f, data: data, hdr: hdr}
	w.cells = protocol.CellsView(data[protocol.HeaderSize:], cols*rows)
	if ringCap > 0 {
		w.ring = newRing(data, protocol.RingOffset(cols, rows), ringCap)
	}
	return w, nil
}

// Publish blits the grid into the region and bumps the sequence counter
// exactly once. It never blocks on readers: the single snapshot slot is
// overwritten, latest value wins.
func (w *Writer) Publish(g *vt.Grid, cursorVisible bool) uint64 {
	// Announce write-in-progress before touching the data area.
	atomic.AddUint64(stampWord(w.data), 1)

	src := g.Cells()
	n := len(w.cells)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		w.cells[i] = protocol.FromCell(src[i])
	}

	x, y := g.Cursor()
	putU16(w.data, protocol.OffCursorX, uint16(x))
	putU16(w.data, protocol.OffCursorY, uint16(y))
	if cursorVisible {
		w.data[protocol.OffCursorVis] = 1
	} else {
		w.data[protocol.OffCursorVis] = 0
	}

	// The data write is complete; release the snapshot.
	return atomic.AddUint64(seqWord(w.data), 1)
}

// AppendEcho writes bulk output bytes to the echo ring, dropping the oldest
// unread data on overflow. No-op when the region has no ring.
func (w *Writer) AppendEcho(p []byte) {
	if w.ring != nil {
		w.ring.Write(p)
	}
}

// NewGeneration replaces the region with a freshly sized one. The old
// mapping is marked superseded and given a final sequence bump so pollers
// notice, then the new file is renamed over the well-known path.
func (w *Writer) NewGeneration(cols, rows int) error {
	// The supersede mark bumps the old region's sequence once more; the new
	// generation starts past that so the shared counter stays monotonic.
	next, err := create(w.path, cols, rows, w.hdr.RingCap, w.hdr.Generation+1, w.Sequence()+1)
	if err != nil {
		return err
	}
	w.mark(protocol.FlagSuperseded)
	w.release()
	*w = *next
	return nil
}

// Close marks the region closed, flushes it and releases the mapping. The
// file itself is kept so a later client can attach and observe the final
// state; Remove is the daemon-controlled cleanup.
func (w *Writer) Close() error {
	if w.data == nil {
		return nil
	}
	w.mark(protocol.FlagClosed)
	err := unix.Msync(w.data, unix.MS_SYNC)
	w.release()
	return err
}

// Remove deletes the region file. Only the daemon calls this.
func (w *Writer) Remove() error {
	return os.Remove(w.path)
}

// mark sets a header flag under the publish discipline so readers observe it
// through a validated snapshot.
func (w *Writer) mark(flag uint16) {
	atomic.AddUint64(stampWord(w.data), 1)
	flags := getU16(w.data, protocol.OffFlags) | flag
	putU16(w.data, protocol.OffFlags, flags)
	atomic.AddUint64(seqWord(w.data), 1)
}

func (w *Writer) release() {
	_ = unix.Munmap(w.data)
	_ = w.f.Close()
	w.data = nil
	w.f = nil
	w.cells = nil
	w.ring = nil
}

func (w *Writer) Path() string       { return w.path }
func (w *Writer) Generation() uint64 { return w.hdr.Generation }
func (w *Writer) Cols() int          { return w.hdr.Cols }
func (w *Writer) Rows() int          { return w.hdr.Rows }

// Sequence returns the last published sequence number.
func (w *Writer) Sequence() uint64 {
	if w.data == nil {
		return 0
	}
	return atomic.LoadUint64(seqWord(w.data))
}

func putU16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

func getU16(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}

func nextPow2(n int) int {
	p := 1024
	for p < n {
		p <<= 1
	}
	return p
}
