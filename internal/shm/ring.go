// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/shm/ring.go
// Summary: Drop-oldest byte ring inside the shared region for bulk echo output.
// Notes: Only the producer writes the shared head and tail words. Consumers
//        keep their own free-running cursor and validate a copy against a
//        re-read head, so a read-only mapping can consume the ring and any
//        number of clients can drain it independently.

package shm

import (
	"sync/atomic"
	"unsafe"

	"loom/protocol"
)

// Ring is a fixed-capacity byte ring mapped over region memory. Head and
// tail are free-running uint32 counters; unsigned subtraction gives the
// retained length and the power-of-two mask maps counters to offsets.
type Ring struct {
	buf  []byte
	head *uint32
	tail *uint32
	mask uint32
}

func newRing(region []byte, off, capacity int) *Ring {
	if capacity <= 0 {
		return nil
	}
	return &Ring{
		buf:  region[off : off+capacity],
		head: (*uint32)(unsafe.Pointer(&region[protocol.OffRingHead])),
		tail: (*uint32)(unsafe.Pointer(&region[protocol.OffRingTail])),
		mask: uint32(capacity - 1),
	}
}

// Write appends p, discarding the oldest retained bytes when the ring is
// full. Writes larger than the capacity keep only their tail end. The
// producer never blocks.
func (r *Ring) Write(p []byte) int {
	capacity := r.mask + 1
	if uint32(len(p)) > capacity {
		p = p[uint32(len(p))-capacity:]
	}
	n := uint32(len(p))
	if n == 0 {
		return 0
	}

	tail := atomic.LoadUint32(r.tail)
	head := atomic.LoadUint32(r.head)
	if free := capacity - (tail - head); n > free {
		// Drop the oldest bytes. Consumers mid-copy detect the overwrite
		// when they validate their cursor against the advanced head.
		atomic.StoreUint32(r.head, tail+n-capacity)
	}

	at := tail & r.mask
	first := copy(r.buf[at:], p)
	if first < len(p) {
		copy(r.buf, p[first:])
	}
	atomic.StoreUint32(r.tail, tail+n)
	return len(p)
}

// ReadFrom copies bytes at cursor into p and returns the advanced cursor.
// It performs no stores into the ring, so it works on a read-only mapping.
// A cursor that fell behind a drop-oldest resumes at the oldest retained
// byte; a drop-oldest racing the copy restarts it, so callers never see
// torn data.
func (r *Ring) ReadFrom(cursor uint32, p []byte) (int, uint32) {
	for {
		head := atomic.LoadUint32(r.head)
		tail := atomic.LoadUint32(r.tail)
		if int32(head-cursor) > 0 {
			cursor = head
		}
		avail := tail - cursor
		if avail == 0 {
			return 0, cursor
		}
		n := uint32(len(p))
		if n > avail {
			n = avail
		}
		at := cursor & r.mask
		first := copy(p[:n], r.buf[at:])
		if uint32(first) < n {
			copy(p[first:n], r.buf)
		}
		// The copied range is intact only if the producer has not reclaimed
		// any byte at or past the cursor while we copied.
		if int32(atomic.LoadUint32(r.head)-cursor) <= 0 {
			return int(n), cursor + n
		}
	}
}

// Buffered reports the number of retained bytes.
func (r *Ring) Buffered() int {
	return int(atomic.LoadUint32(r.tail) - atomic.LoadUint32(r.head))
}

// Cap returns the ring capacity in bytes.
func (r *Ring) Cap() int { return int(r.mask + 1) }
