// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/client/client.go
// Summary: Attached render client: control channel plus read-only region.
// Usage: Attach, then poll Snapshot at the render cadence and forward
//        keystrokes with SendInput.

package client

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"loom/internal/shm"
	"loom/protocol"
)

// Options configures an attach.
type Options struct {
	SocketPath    string
	ClientName    string
	AttachTimeout time.Duration
}

func (o *Options) fill() {
	if o.ClientName == "" {
		o.ClientName = "loom-attach"
	}
	if o.AttachTimeout <= 0 {
		o.AttachTimeout = 5 * time.Second
	}
}

// Client is one attached viewer. Grid state arrives through the mapped
// region; the socket carries input, resize and lifecycle only.
type Client struct {
	opts    Options
	conn    net.Conn
	welcome protocol.Welcome
	reader  *shm.Reader

	mu  sync.Mutex
	seq uint64

	closed bool
}

// Attach dials the daemon, performs the handshake and maps the region.
// A region file that is not there yet is retried with backoff until
// AttachTimeout; an incompatible region version fails immediately.
func Attach(opts Options) (*Client, error) {
	opts.fill()

	conn, err := net.DialTimeout("unix", opts.SocketPath, opts.AttachTimeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", opts.SocketPath, err)
	}

	c := &Client{opts: opts, conn: conn}
	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, err
	}

	reader, err := openWithBackoff(c.welcome.RegionPath, opts.AttachTimeout)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.reader = reader
	return c, nil
}

func (c *Client) handshake() error {
	hello, err := protocol.EncodeHello(protocol.Hello{ClientName: c.opts.ClientName})
	if err != nil {
		return err
	}
	if err := c.send(protocol.MsgHello, hello); err != nil {
		return err
	}
	hdr, payload, err := protocol.ReadFrame(c.conn)
	if err != nil {
		return fmt.Errorf("client: handshake read: %w", err)
	}
	if hdr.Type != protocol.MsgWelcome {
		return fmt.Errorf("client: unexpected handshake reply %v", hdr.Type)
	}
	c.welcome, err = protocol.DecodeWelcome(payload)
	return err
}

// openWithBackoff retries a missing region until the deadline. The daemon
// publishes the region file before its socket, so this is normally one try.
func openWithBackoff(path string, timeout time.Duration) (*shm.Reader, error) {
	deadline := time.Now().Add(timeout)
	delay := 50 * time.Millisecond
	for {
		reader, err := shm.Open(path)
		if err == nil {
			return reader, nil
		}
		if errors.Is(err, protocol.ErrVersionMismatch) {
			return nil, fmt.Errorf("client: daemon was built for a different region layout: %w", err)
		}
		if !errors.Is(err, shm.ErrRegionUnavailable) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(delay)
		if delay < 500*time.Millisecond {
			delay *= 2
		}
	}
}

// Snapshot polls the region for a newer consistent grid. A generation
// change (resize) remaps transparently and retries once.
func (c *Client) Snapshot() (*shm.Snapshot, bool, error) {
	snap, ok, err := c.reader.TrySync()
	if errors.Is(err, shm.ErrGenerationChanged) {
		if err := c.reader.Reopen(); err != nil {
			return nil, false, err
		}
		return c.reader.TrySync()
	}
	return snap, ok, err
}

// ReadEcho drains bulk output bytes from the region's echo ring.
func (c *Client) ReadEcho(p []byte) int {
	return c.reader.ReadEcho(p)
}

// SendInput forwards keyboard bytes to the session PTY.
func (c *Client) SendInput(p []byte) error {
	payload, err := protocol.EncodeInput(protocol.Input{Data: p})
	if err != nil {
		return err
	}
	return c.send(protocol.MsgInput, payload)
}

// RequestResize asks the daemon for new dimensions and waits for the ack.
func (c *Client) RequestResize(cols, rows int) (protocol.ResizeAck, error) {
	var ack protocol.ResizeAck
	if cols < 1 || cols > protocol.MaxCols || rows < 1 || rows > protocol.MaxRows {
		return ack, fmt.Errorf("client: invalid resize to %dx%d", cols, rows)
	}
	payload, err := protocol.EncodeResizeRequest(protocol.ResizeRequest{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		return ack, err
	}
	if err := c.send(protocol.MsgResizeRequest, payload); err != nil {
		return ack, err
	}

	hdr, payload, err := protocol.ReadFrame(c.conn)
	if err != nil {
		return ack, err
	}
	switch hdr.Type {
	case protocol.MsgResizeAck:
		return protocol.DecodeResizeAck(payload)
	case protocol.MsgError:
		ef, err := protocol.DecodeError(payload)
		if err != nil {
			return ack, err
		}
		return ack, fmt.Errorf("client: resize rejected: %s", ef.Message)
	default:
		return ack, fmt.Errorf("client: unexpected resize reply %v", hdr.Type)
	}
}

// Ping round-trips a timestamp for liveness checks.
func (c *Client) Ping() (time.Duration, error) {
	start := time.Now()
	payload, err := protocol.EncodePing(protocol.Ping{Timestamp: start.UnixNano()})
	if err != nil {
		return 0, err
	}
	if err := c.send(protocol.MsgPing, payload); err != nil {
		return 0, err
	}
	hdr, _, err := protocol.ReadFrame(c.conn)
	if err != nil {
		return 0, err
	}
	if hdr.Type != protocol.MsgPong {
		return 0, fmt.Errorf("client: unexpected ping reply %v", hdr.Type)
	}
	return time.Since(start), nil
}

// RequestShutdown asks the daemon to terminate the session.
func (c *Client) RequestShutdown() error {
	return c.send(protocol.MsgShutdown, nil)
}

// Detach tells the daemon this viewer is leaving and closes everything.
// The session keeps running.
func (c *Client) Detach() error {
	err := c.send(protocol.MsgDetach, nil)
	c.Close()
	return err
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.reader != nil {
		c.reader.Close()
	}
	_ = c.conn.Close()
}

// Welcome returns the handshake result.
func (c *Client) Welcome() protocol.Welcome { return c.welcome }

func (c *Client) send(t protocol.MessageType, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	c.seq++
	return protocol.WriteFrame(c.conn, protocol.FrameHeader{
		Version:   protocol.FrameVersion,
		Type:      t,
		Flags:     protocol.FlagChecksum,
		SessionID: c.welcome.SessionID,
		Sequence:  c.seq,
	}, payload)
}
