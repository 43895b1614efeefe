// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/shm/reader.go
// Summary: Client-side read-only mapping and the snapshot observe protocol.
// Usage: Poll TrySync at the render cadence; it never blocks the writer.
// Notes: A snapshot is accepted only when the sequence word is unchanged
//        across the copy and the write stamp equals it. The stamp leads the
//        sequence during a publish, so a copy that raced the writer can never
//        validate even if it started and ended between two publishes.

package shm

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"loom/protocol"
	"loom/vt"
)

// maxReadRetries bounds how often TrySync restarts a torn copy before
// reporting no update. A fast writer delays the reader by at most one poll
// interval; it can never live-lock it.
const maxReadRetries = 8

// Snapshot is one consistent, fully copied view of the published grid.
type Snapshot struct {
	Generation    uint64
	Sequence      uint64
	Cols          int
	Rows          int
	Cells         []vt.Cell
	CursorX       int
	CursorY       int
	CursorVisible bool
	Closed        bool
}

// Reader maps a region file read-only and extracts validated snapshots.
// Not safe for concurrent use; each attached client owns one Reader.
type Reader struct {
	path    string
	f       *os.File
	data    []byte
	hdr     protocol.Header
	ring    *Ring
	lastSeq uint64

	// echoPos is this reader's private ring cursor. The mapping is
	// read-only, so the shared head is never advanced by a client.
	echoPos uint32

	// scratch holds the raw cell bytes copied inside the validation window
	// so decoding happens outside it.
	scratch []byte
}

// Open maps the region at path. A missing file is ErrRegionUnavailable so
// callers can back off and retry; a version mismatch is permanent and must
// not be retried.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRegionUnavailable, path)
		}
		return nil, fmt.Errorf("shm: open region: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: stat region: %w", err)
	}
	size := int(st.Size())
	if size < protocol.HeaderSize {
		f.Close()
		return nil, protocol.ErrTruncatedRegion
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: map region: %w", err)
	}
	hdr, err := protocol.ParseHeader(data)
	if err != nil {
		_ = unix.Munmap(data)
		f.Close()
		return nil, err
	}

	r := &Reader{path: path, f: f, data: data, hdr: hdr}
	r.scratch = make([]byte, hdr.Cols*hdr.Rows*protocol.RawCellSize)
	if hdr.RingCap > 0 {
		r.ring = newRing(data, protocol.RingOffset(hdr.Cols, hdr.Rows), hdr.RingCap)
	}
	return r, nil
}

// TrySync checks for a newer snapshot and copies it out if one validates.
// Returns (nil, false, nil) when nothing new is published or the writer kept
// racing the copy. ErrGenerationChanged means the caller must Reopen;
// ErrRegionClosed means the writer shut down and the returned snapshot is
// the final state.
func (r *Reader) TrySync() (*Snapshot, bool, error) {
	if atomic.LoadUint64(seqWord(r.data)) == r.lastSeq {
		return nil, false, nil
	}

	count := r.hdr.Cols * r.hdr.Rows
	cellBytes := r.data[protocol.HeaderSize : protocol.HeaderSize+len(r.scratch)]

	for attempt := 0; attempt < maxReadRetries; attempt++ {
		s1 := atomic.LoadUint64(seqWord(r.data))

		// Keep the validation window as short as possible: one bulk copy of
		// the raw bytes plus a few header loads. Decoding happens after the
		// copy validates, otherwise a busy writer outpaces the reader on
		// every attempt.
		copy(r.scratch, cellBytes)
		cursorX := int(getU16(r.data, protocol.OffCursorX))
		cursorY := int(getU16(r.data, protocol.OffCursorY))
		cursorVisible := r.data[protocol.OffCursorVis] != 0
		flags := getU16(r.data, protocol.OffFlags)

		stamp := atomic.LoadUint64(stampWord(r.data))
		s2 := atomic.LoadUint64(seqWord(r.data))
		if s1 != s2 || stamp != s2 {
			continue
		}

		r.lastSeq = s2
		if flags&protocol.FlagSuperseded != 0 {
			return nil, false, ErrGenerationChanged
		}

		snap := &Snapshot{
			Generation:    r.hdr.Generation,
			Sequence:      s2,
			Cols:          r.hdr.Cols,
			Rows:          r.hdr.Rows,
			Cells:         make([]vt.Cell, count),
			CursorX:       cursorX,
			CursorY:       cursorY,
			CursorVisible: cursorVisible,
		}
		raw := protocol.CellsView(r.scratch, count)
		for i := 0; i < count; i++ {
			snap.Cells[i] = raw[i].Cell()
		}
		if flags&protocol.FlagClosed != 0 {
			snap.Closed = true
			return snap, true, ErrRegionClosed
		}
		return snap, true, nil
	}
	return nil, false, nil
}

// ReadEcho drains bytes from the echo ring, if the region carries one. Each
// reader tracks its own cursor, so every attached client sees the full
// stream and the mapping is never written.
func (r *Reader) ReadEcho(p []byte) int {
	if r.ring == nil {
		return 0
	}
	n, pos := r.ring.ReadFrom(r.echoPos, p)
	r.echoPos = pos
	return n
}

// Reopen remaps the file at the reader's path, picking up a new generation
// after a resize. The sequence cursor carries over; generations share one
// monotonic counter.
func (r *Reader) Reopen() error {
	next, err := Open(r.path)
	if err != nil {
		return err
	}
	next.lastSeq = r.lastSeq
	r.Close()
	*r = *next
	return nil
}

// Close releases the mapping.
func (r *Reader) Close() {
	if r.data != nil {
		_ = unix.Munmap(r.data)
		r.data = nil
	}
	if r.f != nil {
		_ = r.f.Close()
		r.f = nil
	}
	r.ring = nil
}

func (r *Reader) Path() string            { return r.path }
func (r *Reader) Header() protocol.Header { return r.hdr }
func (r *Reader) Generation() uint64      { return r.hdr.Generation }

// Sequence returns the live sequence word without validating a snapshot.
func (r *Reader) Sequence() uint64 {
	return atomic.LoadUint64(seqWord(r.data))
}
