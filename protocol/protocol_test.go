// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/protocol_test.go
// Summary: Frame codec tests: roundtrips, corruption, version refusal.

package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	hdr := FrameHeader{
		Version:  FrameVersion,
		Type:     MsgInput,
		Flags:    FlagChecksum,
		Sequence: 42,
	}
	copy(hdr.SessionID[:], "0123456789abcdef")
	payload := []byte("\x1b[31mhi")

	if err := WriteFrame(&buf, hdr, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, gotPayload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Type != MsgInput || got.Sequence != 42 || got.SessionID != hdr.SessionID {
		t.Fatalf("header mismatch: %+v", got)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Fatalf("payload = %q, want %q", gotPayload, payload)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	hdr := FrameHeader{Version: FrameVersion, Type: MsgPing, Flags: FlagChecksum}
	if err := WriteFrame(&buf, hdr, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Type != MsgPing || len(payload) != 0 {
		t.Fatalf("got %+v payload %q", got, payload)
	}
}

func TestFrameBadMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameHeader{Version: FrameVersion, Type: MsgPing}, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	raw := buf.Bytes()
	raw[0] ^= 0xff
	if _, _, err := ReadFrame(bytes.NewReader(raw)); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("err = %v, want ErrInvalidMagic", err)
	}
}

func TestFrameUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameHeader{Version: FrameVersion + 9, Type: MsgPing}, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, _, err := ReadFrame(&buf); !errors.Is(err, ErrUnsupportedVer) {
		t.Fatalf("err = %v, want ErrUnsupportedVer", err)
	}
}

func TestFrameChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	hdr := FrameHeader{Version: FrameVersion, Type: MsgInput, Flags: FlagChecksum}
	if err := WriteFrame(&buf, hdr, []byte("abcd")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0x01 // flip a payload bit
	if _, _, err := ReadFrame(bytes.NewReader(raw)); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("err = %v, want ErrChecksumMismatch", err)
	}
}

func TestFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameHeader{Version: FrameVersion, Type: MsgInput}, []byte("abcdef")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	raw := buf.Bytes()
	if _, _, err := ReadFrame(bytes.NewReader(raw[:len(raw)-3])); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("err = %v, want ErrShortPayload", err)
	}
}

func TestFramePayloadTooLarge(t *testing.T) {
	err := WriteFrame(&bytes.Buffer{}, FrameHeader{Version: FrameVersion}, make([]byte, MaxPayload+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
}
