// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/messages_test.go
// Summary: Control message encode/decode tests.

package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestHelloRoundtrip(t *testing.T) {
	in := Hello{ClientName: "loom-attach"}
	copy(in.ClientID[:], "fedcba9876543210")
	b, err := EncodeHello(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeHello(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ClientID != in.ClientID || out.ClientName != in.ClientName {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestWelcomeRoundtrip(t *testing.T) {
	in := Welcome{RegionPath: "/dev/shm/loom-abc.grid", Generation: 3, Cols: 120, Rows: 40}
	copy(in.SessionID[:], "0123456789abcdef")
	b, err := EncodeWelcome(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeWelcome(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestResizeRoundtrip(t *testing.T) {
	req, err := EncodeResizeRequest(ResizeRequest{Cols: 132, Rows: 50})
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	gotReq, err := DecodeResizeRequest(req)
	if err != nil || gotReq.Cols != 132 || gotReq.Rows != 50 {
		t.Fatalf("request = %+v, %v", gotReq, err)
	}

	ack, err := EncodeResizeAck(ResizeAck{Generation: 9, Cols: 132, Rows: 50})
	if err != nil {
		t.Fatalf("encode ack: %v", err)
	}
	gotAck, err := DecodeResizeAck(ack)
	if err != nil || gotAck.Generation != 9 {
		t.Fatalf("ack = %+v, %v", gotAck, err)
	}
}

func TestInputOwnsItsBytes(t *testing.T) {
	src := []byte("ls -la\r")
	b, err := EncodeInput(Input{Data: src})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	src[0] = 'X'
	out, err := DecodeInput(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out.Data, []byte("ls -la\r")) {
		t.Fatalf("input data = %q", out.Data)
	}
}

func TestErrorFrameRoundtrip(t *testing.T) {
	b, err := EncodeError(ErrorFrame{Code: ErrCodeResizeRejected, Message: "dimensions out of range"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeError(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Code != ErrCodeResizeRejected || out.Message != "dimensions out of range" {
		t.Fatalf("got %+v", out)
	}
}

func TestDecodeShortPayloads(t *testing.T) {
	if _, err := DecodeWelcome([]byte{1, 2, 3}); !errors.Is(err, errPayloadShort) {
		t.Fatalf("welcome err = %v", err)
	}
	if _, err := DecodeResizeAck([]byte{1}); !errors.Is(err, errPayloadShort) {
		t.Fatalf("ack err = %v", err)
	}
	if _, err := DecodePing(nil); !errors.Is(err, errPayloadShort) {
		t.Fatalf("ping err = %v", err)
	}
}
