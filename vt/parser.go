// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: vt/parser.go
// Summary: Byte-level state machine feeding the interpreter, with a printable fast path.
// Usage: Terminal.Feed consumes arbitrarily chunked PTY bytes; sequences split
//        across reads are buffered and never cached until complete.
// Notes: Malformed or oversized sequences bypass the cache and resynchronize
//        by skipping forward; the interpreter never halts on bad input.

package vt

import (
	"log"
	"unicode/utf8"
)

type parseState uint8

const (
	stateGround parseState = iota
	stateEscape
	stateCSI
	stateOSC
	stateOSCEscape
	stateDCS
	stateDCSEscape
	stateDiscard
)

const (
	escByte = 0x1b

	// maxSequenceLen bounds both the accumulation buffer and the cache key
	// length. Longer sequences fall back to the resynchronizing path.
	maxSequenceLen = 128

	// maxOSCLen bounds OSC/DCS payload accumulation (titles can be long).
	maxOSCLen = 2048
)

// Feed interprets a chunk of PTY output, mutating the grid in place. It is
// deterministic for a given byte stream and starting state, independent of
// whether the cache is enabled, and independent of how the stream is chunked.
func (t *Terminal) Feed(data []byte) {
	i := 0
	for i < len(data) {
		b := data[i]
		switch t.state {
		case stateGround:
			if b == escByte {
				t.state = stateEscape
				t.seq = append(t.seq[:0], b)
				i++
				continue
			}
			if b < 0x20 || b == 0x7f {
				t.execControl(b)
				i++
				continue
			}
			// Fast path: batch a run of printable bytes into cells.
			j := i + 1
			for j < len(data) && data[j] >= 0x20 && data[j] != 0x7f {
				j++
			}
			t.placeRun(data[i:j])
			i = j

		case stateEscape:
			switch {
			case b == '[':
				t.seq = append(t.seq, b)
				t.state = stateCSI
			case b == ']':
				t.seq = append(t.seq, b)
				t.state = stateOSC
			case b == 'P':
				t.seq = append(t.seq, b)
				t.state = stateDCS
			case b >= 0x20 && b <= 0x2f:
				t.seq = append(t.seq, b)
				if len(t.seq) > maxSequenceLen {
					t.enterDiscard("oversized escape sequence")
				}
			case b >= 0x30 && b <= 0x7e:
				t.seq = append(t.seq, b)
				t.completeSequence()
			case b == escByte:
				// Restarted escape; the interrupted one is malformed.
				t.skipMalformed("escape interrupted by ESC")
				t.seq = append(t.seq[:0], escByte)
			default:
				t.skipMalformed("unexpected byte in escape")
				t.state = stateGround
			}
			i++

		case stateCSI:
			switch {
			case b == escByte:
				t.skipMalformed("CSI interrupted by ESC")
				t.seq = append(t.seq[:0], escByte)
				t.state = stateEscape
			case b == 0x18 || b == 0x1a: // CAN, SUB
				t.skipMalformed("CSI cancelled")
				t.state = stateGround
			case b < 0x20:
				// C0 controls execute inside a CSI sequence.
				t.execControl(b)
			case b >= 0x40 && b <= 0x7e:
				t.seq = append(t.seq, b)
				t.completeSequence()
			default: // 0x20..0x3f: parameters and intermediates
				t.seq = append(t.seq, b)
				if len(t.seq) > maxSequenceLen {
					t.enterDiscard("oversized CSI sequence")
				}
			}
			i++

		case stateOSC:
			switch b {
			case 0x07:
				t.seq = append(t.seq, b)
				t.completeSequence()
			case escByte:
				t.state = stateOSCEscape
			default:
				t.seq = append(t.seq, b)
				if len(t.seq) > maxOSCLen {
					t.enterDiscard("oversized OSC sequence")
				}
			}
			i++

		case stateOSCEscape:
			if b == '\\' {
				t.seq = append(t.seq, escByte, b)
				t.completeSequence()
			} else {
				// Bare ESC inside an OSC: treat the OSC as malformed and
				// reprocess the ESC as a fresh sequence start.
				t.skipMalformed("OSC interrupted by ESC")
				t.seq = append(t.seq[:0], escByte)
				t.state = stateEscape
			}
			i++

		case stateDCS:
			if b == escByte {
				t.state = stateDCSEscape
			} else {
				t.seq = append(t.seq, b)
				if len(t.seq) > maxOSCLen {
					t.enterDiscard("oversized DCS sequence")
				}
			}
			i++

		case stateDCSEscape:
			if b == '\\' {
				// DCS payloads are acknowledged but not interpreted.
				debugLog.Printf("vt: ignoring DCS payload (%d bytes)", len(t.seq))
				t.state = stateGround
			} else {
				t.seq = append(t.seq, escByte, b)
				t.state = stateDCS
			}
			i++

		case stateDiscard:
			// Resynchronize: skip forward until a final byte or a fresh ESC.
			switch {
			case b == escByte:
				t.seq = append(t.seq[:0], escByte)
				t.state = stateEscape
			case b >= 0x40 && b <= 0x7e, b == 0x07:
				t.state = stateGround
			}
			i++
		}
	}
}

// placeRun decodes a run of printable bytes into cells, carrying a partial
// trailing UTF-8 rune across Feed boundaries.
func (t *Terminal) placeRun(run []byte) {
	for t.carryLen > 0 && len(run) > 0 {
		t.carry[t.carryLen] = run[0]
		t.carryLen++
		run = run[1:]
		if utf8.FullRune(t.carry[:t.carryLen]) {
			r, _ := utf8.DecodeRune(t.carry[:t.carryLen])
			t.carryLen = 0
			t.placeRune(r)
			break
		}
		if t.carryLen == len(t.carry) {
			t.carryLen = 0
			t.parseErrors++
			debugLog.Printf("vt: dropped invalid UTF-8 run")
			break
		}
	}
	for len(run) > 0 {
		r, size := utf8.DecodeRune(run)
		if r == utf8.RuneError && size == 1 {
			if !utf8.FullRune(run) {
				// Partial rune at the end of the chunk; finish it next Feed.
				t.carryLen = copy(t.carry[:], run)
				return
			}
			t.parseErrors++
			debugLog.Printf("vt: skipping invalid UTF-8 byte %#x", run[0])
			run = run[1:]
			continue
		}
		t.placeRune(r)
		run = run[size:]
	}
}

// completeSequence dispatches an accumulated sequence, consulting the cache
// first. A hit replays the parsed action directly; a miss parses and inserts.
func (t *Terminal) completeSequence() {
	raw := t.seq
	t.state = stateGround
	if len(raw) <= maxSequenceLen && t.cache != nil {
		if act, ok := t.cache.Get(raw); ok {
			t.applyAction(act)
			return
		}
	}
	act, ok := parseSequence(raw)
	if !ok {
		t.parseErrors++
		log.Printf("vt: skipping unsupported sequence %q", raw)
		return
	}
	if len(raw) <= maxSequenceLen && t.cache != nil {
		t.cache.Add(raw, act)
	}
	t.applyAction(act)
}

func (t *Terminal) skipMalformed(reason string) {
	t.parseErrors++
	log.Printf("vt: %s, skipping %q", reason, t.seq)
}

func (t *Terminal) enterDiscard(reason string) {
	t.skipMalformed(reason)
	t.seq = t.seq[:0]
	t.state = stateDiscard
}
