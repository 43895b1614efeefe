// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/loom/lifecycle/health.go
// Summary: Daemon health check via a full handshake and ping roundtrip.

package lifecycle

import (
	"context"
	"fmt"
	"net"
	"time"

	"loom/protocol"
)

// HealthChecker verifies a session daemon is responsive.
type HealthChecker interface {
	Check(ctx context.Context, socketPath string) error
}

// PingHealthChecker attaches to the control socket and round-trips a ping.
// A daemon that accepts connections but whose dispatch loop is stuck fails
// this check.
type PingHealthChecker struct {
	timeout time.Duration
}

func NewPingHealthChecker(timeout time.Duration) *PingHealthChecker {
	return &PingHealthChecker{timeout: timeout}
}

func (h *PingHealthChecker) Check(ctx context.Context, socketPath string) error {
	deadline := time.Now().Add(h.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}

	send := func(t protocol.MessageType, payload []byte) error {
		return protocol.WriteFrame(conn, protocol.FrameHeader{
			Version: protocol.FrameVersion,
			Type:    t,
			Flags:   protocol.FlagChecksum,
		}, payload)
	}

	hello, err := protocol.EncodeHello(protocol.Hello{ClientName: "loom-health"})
	if err != nil {
		return err
	}
	if err := send(protocol.MsgHello, hello); err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	hdr, _, err := protocol.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("welcome: %w", err)
	}
	if hdr.Type != protocol.MsgWelcome {
		return fmt.Errorf("unexpected handshake reply %v", hdr.Type)
	}

	ping, err := protocol.EncodePing(protocol.Ping{Timestamp: time.Now().UnixNano()})
	if err != nil {
		return err
	}
	if err := send(protocol.MsgPing, ping); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	hdr, _, err = protocol.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("pong: %w", err)
	}
	if hdr.Type != protocol.MsgPong {
		return fmt.Errorf("unexpected ping reply %v", hdr.Type)
	}
	_ = send(protocol.MsgDetach, nil)
	return nil
}
