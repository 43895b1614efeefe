// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/region.go
// Summary: Fixed layout of the shared memory region: header, cell area, echo ring.
// Usage: Written by the daemon's region writer, reinterpreted read-only by clients.
// Notes: The layout is fixed at compile time, little-endian, and contains no
//        pointers, so a second process can map the same bytes safely. Any
//        layout change requires a Version bump.

package protocol

import (
	"encoding/binary"
	"errors"
)

const (
	// RegionMagic is "LOOM" read as a little-endian uint32 at offset 0.
	RegionMagic uint32 = 0x4d4f4f4c

	// RegionVersion is the layout version. Readers must refuse any other.
	RegionVersion uint16 = 1

	// HeaderSize is the fixed byte size of the region header.
	HeaderSize = 64
)

// Header flag bits.
const (
	// FlagClosed marks a region whose writer has shut down. The final
	// snapshot remains readable; no further publishes will occur.
	FlagClosed uint16 = 1 << 0

	// FlagSuperseded marks a region replaced by a higher generation at the
	// same path. Readers remap instead of treating it as a shutdown.
	FlagSuperseded uint16 = 1 << 1
)

// Byte offsets of every header field. The sequence and write-stamp words are
// 8-byte aligned so cross-process atomic access is valid.
const (
	OffMagic      = 0  // uint32
	OffVersion    = 4  // uint16
	OffFlags      = 6  // uint16
	OffGeneration = 8  // uint64
	OffCols       = 16 // uint32
	OffRows       = 20 // uint32
	OffSequence   = 24 // uint64, atomic
	OffCursorX    = 32 // uint16
	OffCursorY    = 34 // uint16
	OffCursorVis  = 36 // uint8
	OffRingCap    = 40 // uint32
	OffRingHead   = 44 // uint32, atomic
	OffRingTail   = 48 // uint32, atomic
	OffWriteStamp = 56 // uint64, atomic
)

var (
	ErrBadMagic        = errors.New("protocol: region magic mismatch")
	ErrVersionMismatch = errors.New("protocol: unsupported region version")
	ErrTruncatedRegion = errors.New("protocol: region smaller than its declared layout")
	ErrBadDimensions   = errors.New("protocol: implausible region dimensions")
)

// MaxCols and MaxRows bound the dimensions a reader will accept; anything
// larger indicates a corrupt or hostile header.
const (
	MaxCols = 4096
	MaxRows = 4096
)

// Header is the decoded fixed portion of a region. Sequence, WriteStamp and
// the ring offsets are snapshots; live access goes through atomics on the
// mapped bytes.
type Header struct {
	Generation uint64
	Cols       int
	Rows       int
	Flags      uint16
	RingCap    int
}

// RegionSize returns the total byte size of a region with the given grid
// dimensions and ring capacity.
func RegionSize(cols, rows, ringCap int) int {
	return HeaderSize + cols*rows*RawCellSize + ringCap
}

// RingOffset returns the byte offset of the ring data area.
func RingOffset(cols, rows int) int {
	return HeaderSize + cols*rows*RawCellSize
}

// PutHeader initialises the header fields in b. The sequence and write-stamp
// words are left untouched; callers manage them atomically.
func PutHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint32(b[OffMagic:], RegionMagic)
	binary.LittleEndian.PutUint16(b[OffVersion:], RegionVersion)
	binary.LittleEndian.PutUint16(b[OffFlags:], h.Flags)
	binary.LittleEndian.PutUint64(b[OffGeneration:], h.Generation)
	binary.LittleEndian.PutUint32(b[OffCols:], uint32(h.Cols))
	binary.LittleEndian.PutUint32(b[OffRows:], uint32(h.Rows))
	binary.LittleEndian.PutUint32(b[OffRingCap:], uint32(h.RingCap))
}

// ParseHeader validates magic, version and dimensions, and decodes the fixed
// fields. It is the gate every reader must pass before trusting the layout.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, ErrTruncatedRegion
	}
	if binary.LittleEndian.Uint32(b[OffMagic:]) != RegionMagic {
		return h, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(b[OffVersion:]); v != RegionVersion {
		return h, ErrVersionMismatch
	}
	h.Flags = binary.LittleEndian.Uint16(b[OffFlags:])
	h.Generation = binary.LittleEndian.Uint64(b[OffGeneration:])
	h.Cols = int(binary.LittleEndian.Uint32(b[OffCols:]))
	h.Rows = int(binary.LittleEndian.Uint32(b[OffRows:]))
	h.RingCap = int(binary.LittleEndian.Uint32(b[OffRingCap:]))
	if h.Cols < 1 || h.Cols > MaxCols || h.Rows < 1 || h.Rows > MaxRows {
		return h, ErrBadDimensions
	}
	if len(b) < RegionSize(h.Cols, h.Rows, h.RingCap) {
		return h, ErrTruncatedRegion
	}
	return h, nil
}
