// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/daemon/control.go
// Summary: Unix-socket control server: handshake, input, resize, lifecycle.
// Notes: The control channel carries keystrokes and acks only; grid state
//        reaches clients through the shared region.

package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"loom/protocol"
)

// Control listens on a unix socket and serves attached clients.
type Control struct {
	addr     string
	session  *Session
	shutdown func()

	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewControl builds a control server for one session. shutdown is invoked
// when a client sends MsgShutdown; nil means shutdown requests are refused.
func NewControl(addr string, session *Session, shutdown func()) *Control {
	return &Control{addr: addr, session: session, shutdown: shutdown, quit: make(chan struct{})}
}

func (c *Control) Start() error {
	if err := os.RemoveAll(c.addr); err != nil {
		return err
	}
	l, err := net.Listen("unix", c.addr)
	if err != nil {
		return err
	}
	c.listener = l
	c.wg.Add(1)
	go c.acceptLoop()
	return nil
}

func (c *Control) acceptLoop() {
	defer c.wg.Done()
	failures := 0
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			select {
			case <-c.quit:
				return
			default:
			}
			failures++
			delay, retry := acceptDelay(err, failures)
			if !retry {
				log.Printf("daemon: control listener gone: %v", err)
				return
			}
			log.Printf("daemon: accept failed (attempt %d): %v", failures, err)
			time.Sleep(delay)
			continue
		}
		failures = 0

		c.wg.Add(1)
		go func(conn net.Conn) {
			defer c.wg.Done()
			defer conn.Close()
			c.serve(conn)
		}(conn)
	}
}

// acceptDelay decides the response to an accept error: a closed listener
// ends the loop, anything else backs off with doubling delays so a
// persistent failure cannot spin the loop hot.
func acceptDelay(err error, consecutive int) (time.Duration, bool) {
	if errors.Is(err, net.ErrClosed) {
		return 0, false
	}
	delay := 10 * time.Millisecond
	for i := 1; i < consecutive && delay < time.Second; i++ {
		delay *= 2
	}
	if delay > time.Second {
		delay = time.Second
	}
	return delay, true
}

// serve runs the handshake and then the per-client message loop.
func (c *Control) serve(conn net.Conn) {
	hdr, payload, err := protocol.ReadFrame(conn)
	if err != nil || hdr.Type != protocol.MsgHello {
		return
	}
	hello, err := protocol.DecodeHello(payload)
	if err != nil {
		return
	}

	sid := [16]byte(c.session.ID())
	sender := newSender(conn, sid)
	cols, rows, gen := c.session.Geometry()
	welcome, err := protocol.EncodeWelcome(protocol.Welcome{
		SessionID:  sid,
		RegionPath: c.session.RegionPath(),
		Generation: gen,
		Cols:       uint16(cols),
		Rows:       uint16(rows),
	})
	if err != nil {
		return
	}
	if err := sender.send(protocol.MsgWelcome, welcome); err != nil {
		return
	}
	log.Printf("daemon: client %q attached to session %s", hello.ClientName, c.session.Name())

	for {
		hdr, payload, err := protocol.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("daemon: client %q read error: %v", hello.ClientName, err)
			}
			return
		}
		if done := c.dispatch(sender, hdr, payload); done {
			return
		}
	}
}

// dispatch handles one client frame. Returns true when the connection
// should end.
func (c *Control) dispatch(sender *frameSender, hdr protocol.FrameHeader, payload []byte) bool {
	switch hdr.Type {
	case protocol.MsgInput:
		in, err := protocol.DecodeInput(payload)
		if err == nil {
			_ = c.session.WriteInput(in.Data)
		}

	case protocol.MsgResizeRequest:
		req, err := protocol.DecodeResizeRequest(payload)
		if err != nil {
			sender.sendError(protocol.ErrCodeResizeRejected, "malformed resize request")
			return false
		}
		gen, err := c.session.Resize(int(req.Cols), int(req.Rows))
		if err != nil {
			sender.sendError(protocol.ErrCodeResizeRejected, err.Error())
			return false
		}
		ack, err := protocol.EncodeResizeAck(protocol.ResizeAck{
			Generation: gen,
			Cols:       req.Cols,
			Rows:       req.Rows,
		})
		if err == nil {
			_ = sender.send(protocol.MsgResizeAck, ack)
		}

	case protocol.MsgPing:
		ping, err := protocol.DecodePing(payload)
		if err != nil {
			return false
		}
		pong, err := protocol.EncodePong(protocol.Pong{Timestamp: ping.Timestamp})
		if err == nil {
			_ = sender.send(protocol.MsgPong, pong)
		}

	case protocol.MsgDetach:
		return true

	case protocol.MsgShutdown:
		if c.shutdown == nil {
			sender.sendError(protocol.ErrCodeShuttingDown, "shutdown not permitted")
			return false
		}
		c.shutdown()
		return true

	default:
		sender.sendError(protocol.ErrCodeUnknownMessage, "unknown message type")
	}
	return false
}

func (c *Control) Stop(ctx context.Context) error {
	close(c.quit)
	if c.listener != nil {
		_ = c.listener.Close()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	_ = os.RemoveAll(c.addr)
	return nil
}

// frameSender serialises outgoing frames on one connection.
type frameSender struct {
	mu        sync.Mutex
	conn      net.Conn
	sessionID [16]byte
	seq       uint64
}

func newSender(conn net.Conn, id [16]byte) *frameSender {
	return &frameSender{conn: conn, sessionID: id}
}

func (s *frameSender) send(t protocol.MessageType, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return protocol.WriteFrame(s.conn, protocol.FrameHeader{
		Version:   protocol.FrameVersion,
		Type:      t,
		Flags:     protocol.FlagChecksum,
		SessionID: s.sessionID,
		Sequence:  s.seq,
	}, payload)
}

func (s *frameSender) sendError(code uint16, msg string) {
	payload, err := protocol.EncodeError(protocol.ErrorFrame{Code: code, Message: msg})
	if err != nil {
		return
	}
	_ = s.send(protocol.MsgError, payload)
}
