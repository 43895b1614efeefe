// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/messages.go
// Summary: Control message payloads and their fixed little-endian encodings.
// Usage: Carried inside frames (protocol.go) over the daemon's unix socket.
// Notes: Keep changes backward-compatible; additions require coordinated
//        version bumps.

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var (
	errStringTooLong = errors.New("protocol: string exceeds 64KB limit")
	errPayloadShort  = errors.New("protocol: payload too short")
)

// Hello initiates the handshake from client to daemon.
type Hello struct {
	ClientID   [16]byte
	ClientName string
}

// Welcome is returned by the daemon, pointing the client at the region.
type Welcome struct {
	SessionID  [16]byte
	RegionPath string
	Generation uint64
	Cols       uint16
	Rows       uint16
}

// ResizeRequest asks the daemon for new grid dimensions.
type ResizeRequest struct {
	Cols uint16
	Rows uint16
}

// ResizeAck confirms a resize; the client must remap to the new generation.
type ResizeAck struct {
	Generation uint64
	Cols       uint16
	Rows       uint16
}

// Input carries raw keyboard bytes from client to daemon.
type Input struct {
	Data []byte
}

// Ping/Pong keep the connection alive and back the health check.
type Ping struct {
	Timestamp int64
}

type Pong struct {
	Timestamp int64
}

// ErrorFrame communicates protocol-level errors.
type ErrorFrame struct {
	Code    uint16
	Message string
}

// Error codes carried by ErrorFrame.
const (
	ErrCodeUnknownMessage uint16 = iota + 1
	ErrCodeResizeRejected
	ErrCodeShuttingDown
)

func encodeString(buf *bytes.Buffer, value string) error {
	if len(value) > 0xFFFF {
		return errStringTooLong
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(value))); err != nil {
		return err
	}
	if len(value) > 0 {
		if _, err := buf.WriteString(value); err != nil {
			return err
		}
	}
	return nil
}

func decodeString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, errPayloadShort
	}
	length := int(binary.LittleEndian.Uint16(b[:2]))
	b = b[2:]
	if len(b) < length {
		return "", nil, errPayloadShort
	}
	return string(b[:length]), b[length:], nil
}

func EncodeHello(h Hello) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 24+len(h.ClientName)))
	buf.Write(h.ClientID[:])
	if err := encodeString(buf, h.ClientName); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeHello(b []byte) (Hello, error) {
	var h Hello
	if len(b) < 16 {
		return h, errPayloadShort
	}
	copy(h.ClientID[:], b[:16])
	name, _, err := decodeString(b[16:])
	if err != nil {
		return h, err
	}
	h.ClientName = name
	return h, nil
}

func EncodeWelcome(w Welcome) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 40+len(w.RegionPath)))
	buf.Write(w.SessionID[:])
	if err := encodeString(buf, w.RegionPath); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, w.Generation); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, w.Cols); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, w.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeWelcome(b []byte) (Welcome, error) {
	var w Welcome
	if len(b) < 16 {
		return w, errPayloadShort
	}
	copy(w.SessionID[:], b[:16])
	path, rest, err := decodeString(b[16:])
	if err != nil {
		return w, err
	}
	w.RegionPath = path
	if len(rest) < 12 {
		return w, errPayloadShort
	}
	w.Generation = binary.LittleEndian.Uint64(rest[:8])
	w.Cols = binary.LittleEndian.Uint16(rest[8:10])
	w.Rows = binary.LittleEndian.Uint16(rest[10:12])
	return w, nil
}

func EncodeResizeRequest(r ResizeRequest) ([]byte, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], r.Cols)
	binary.LittleEndian.PutUint16(buf[2:4], r.Rows)
	return buf, nil
}

func DecodeResizeRequest(b []byte) (ResizeRequest, error) {
	var r ResizeRequest
	if len(b) < 4 {
		return r, errPayloadShort
	}
	r.Cols = binary.LittleEndian.Uint16(b[0:2])
	r.Rows = binary.LittleEndian.Uint16(b[2:4])
	return r, nil
}

func EncodeResizeAck(a ResizeAck) ([]byte, error) {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint64(buf[0:8], a.Generation)
	binary.LittleEndian.PutUint16(buf[8:10], a.Cols)
	binary.LittleEndian.PutUint16(buf[10:12], a.Rows)
	return buf, nil
}

func DecodeResizeAck(b []byte) (ResizeAck, error) {
	var a ResizeAck
	if len(b) < 12 {
		return a, errPayloadShort
	}
	a.Generation = binary.LittleEndian.Uint64(b[0:8])
	a.Cols = binary.LittleEndian.Uint16(b[8:10])
	a.Rows = binary.LittleEndian.Uint16(b[10:12])
	return a, nil
}

// Input frames carry their bytes as the whole payload.
func EncodeInput(in Input) ([]byte, error) {
	out := make([]byte, len(in.Data))
	copy(out, in.Data)
	return out, nil
}

func DecodeInput(b []byte) (Input, error) {
	data := make([]byte, len(b))
	copy(data, b)
	return Input{Data: data}, nil
}

func EncodePing(p Ping) ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(p.Timestamp))
	return buf, nil
}

func DecodePing(b []byte) (Ping, error) {
	if len(b) < 8 {
		return Ping{}, errPayloadShort
	}
	return Ping{Timestamp: int64(binary.LittleEndian.Uint64(b[:8]))}, nil
}

func EncodePong(p Pong) ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(p.Timestamp))
	return buf, nil
}

func DecodePong(b []byte) (Pong, error) {
	if len(b) < 8 {
		return Pong{}, errPayloadShort
	}
	return Pong{Timestamp: int64(binary.LittleEndian.Uint64(b[:8]))}, nil
}

func EncodeError(e ErrorFrame) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 4+len(e.Message)))
	if err := binary.Write(buf, binary.LittleEndian, e.Code); err != nil {
		return nil, err
	}
	if err := encodeString(buf, e.Message); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeError(b []byte) (ErrorFrame, error) {
	var e ErrorFrame
	if len(b) < 2 {
		return e, errPayloadShort
	}
	e.Code = binary.LittleEndian.Uint16(b[:2])
	msg, _, err := decodeString(b[2:])
	if err != nil {
		return e, err
	}
	e.Message = msg
	return e, nil
}
