// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: vt/actions.go
// Summary: Parsed escape-sequence actions and the raw-bytes-to-action parser.
// Usage: Actions are the cache values; replaying one must depend only on current terminal state.
// Notes: Actions are plain values (no closures, no grid references) so cached
//        entries stay valid across resizes.

package vt

import "strconv"

// ActionKind discriminates the parsed sequence families.
type ActionKind uint8

const (
	KindCSI ActionKind = iota + 1
	KindESC
	KindOSC
)

// Action is the parsed form of a complete escape sequence. Params must be
// treated as read-only: a cached Action's slice is shared across replays.
type Action struct {
	Kind    ActionKind
	Final   byte
	Inter   byte
	Private bool
	Params  []int

	// OSC fields.
	Code    int
	Payload string
}

const (
	maxParams     = 32
	maxParamValue = 65535
)

// csiFinals lists the CSI final bytes the interpreter implements. Sequences
// with other finals are treated as unsupported: logged, skipped and never
// cached.
var csiFinals = map[byte]bool{
	'A': true, 'B': true, 'C': true, 'D': true, 'E': true, 'F': true,
	'G': true, '`': true, 'H': true, 'f': true, 'd': true,
	'J': true, 'K': true, 'L': true, 'M': true, 'P': true, '@': true,
	'X': true, 'S': true, 'T': true, 'b': true,
	'm': true, 'r': true, 's': true, 'u': true,
	'h': true, 'l': true, 'g': true, 'n': true, 'c': true,
	'I': true, 'Z': true,
}

var escFinals = map[byte]bool{
	'c': true, 'D': true, 'E': true, 'M': true, '7': true, '8': true,
	'H': true, '=': true, '>': true,
}

var oscCodes = map[int]bool{0: true, 2: true, 10: true, 11: true}

// parseSequence turns a complete raw sequence (including the leading ESC and
// the terminator) into an Action. It reports false for sequences the
// interpreter does not implement; those bypass the cache.
func parseSequence(raw []byte) (Action, bool) {
	if len(raw) < 2 || raw[0] != 0x1b {
		return Action{}, false
	}
	switch raw[1] {
	case '[':
		return parseCSI(raw[2:])
	case ']':
		return parseOSC(raw[2:])
	default:
		return parseESC(raw[1:])
	}
}

func parseCSI(body []byte) (Action, bool) {
	if len(body) == 0 {
		return Action{}, false
	}
	act := Action{Kind: KindCSI, Final: body[len(body)-1]}
	if !csiFinals[act.Final] {
		return Action{}, false
	}
	params := make([]int, 0, 8)
	cur, sawDigit := 0, false
	for _, b := range body[:len(body)-1] {
		switch {
		case b >= '0' && b <= '9':
			cur = cur*10 + int(b-'0')
			if cur > maxParamValue {
				cur = maxParamValue
			}
			sawDigit = true
		case b == ';':
			params = append(params, cur)
			cur, sawDigit = 0, false
			if len(params) >= maxParams {
				return Action{}, false
			}
		case b >= 0x3c && b <= 0x3f:
			act.Private = true
		case b >= 0x20 && b <= 0x2f:
			act.Inter = b
		case b == ':':
			// Sub-parameter syntax (SGR 38:2:...); not implemented.
			return Action{}, false
		default:
			return Action{}, false
		}
	}
	// The trailing parameter is always appended, so "ESC[m" parses as [0].
	_ = sawDigit
	params = append(params, cur)
	act.Params = params
	return act, true
}

func parseESC(body []byte) (Action, bool) {
	act := Action{Kind: KindESC}
	switch {
	case len(body) == 1:
		act.Final = body[0]
	case len(body) == 2 && body[0] >= 0x20 && body[0] <= 0x2f:
		// Charset designation (ESC ( B and friends): parsed, applied as no-op.
		act.Inter = body[0]
		act.Final = body[1]
		return act, true
	default:
		return Action{}, false
	}
	if !escFinals[act.Final] {
		return Action{}, false
	}
	return act, true
}

func parseOSC(body []byte) (Action, bool) {
	// Strip the terminator: BEL or ESC \.
	if n := len(body); n >= 1 && body[n-1] == 0x07 {
		body = body[:n-1]
	} else if n >= 2 && body[n-2] == 0x1b && body[n-1] == '\\' {
		body = body[:n-2]
	} else {
		return Action{}, false
	}
	sep := -1
	for i, b := range body {
		if b == ';' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return Action{}, false
	}
	code, err := strconv.Atoi(string(body[:sep]))
	if err != nil || !oscCodes[code] {
		return Action{}, false
	}
	return Action{Kind: KindOSC, Code: code, Payload: string(body[sep+1:])}, true
}
