// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/client/client_test.go
// Summary: Attach and end-to-end client tests against a live daemon session.

package client

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loom/internal/daemon"
	"loom/internal/shm"
)

func startDaemon(t *testing.T) (socket string) {
	t.Helper()
	dir := t.TempDir()
	s, err := daemon.NewSession(daemon.SessionConfig{
		Name:       "test",
		Shell:      "/bin/sh",
		Args:       []string{"-c", "cat"},
		Cols:       40,
		Rows:       10,
		RegionPath: filepath.Join(dir, "loom-test.grid"),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("session Start: %v", err)
	}
	t.Cleanup(s.Close)

	socket = filepath.Join(dir, "loom.sock")
	ctl := daemon.NewControl(socket, s, nil)
	if err := ctl.Start(); err != nil {
		t.Fatalf("control Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ctl.Stop(ctx)
	})
	return socket
}

func attach(t *testing.T, socket string) *Client {
	t.Helper()
	c, err := Attach(Options{SocketPath: socket, ClientName: "test-viewer"})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

// waitForText polls snapshots until the grid contains want.
func waitForText(t *testing.T, c *Client, want string) *shm.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last *shm.Snapshot
	for time.Now().Before(deadline) {
		snap, ok, err := c.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if ok {
			last = snap
		}
		if last != nil {
			var sb strings.Builder
			for _, cell := range last.Cells {
				if cell.Rune != 0 {
					sb.WriteRune(cell.Rune)
				}
			}
			if strings.Contains(sb.String(), want) {
				return last
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("grid never showed %q", want)
	return nil
}

func TestAttachHandshake(t *testing.T) {
	socket := startDaemon(t)
	c := attach(t, socket)

	w := c.Welcome()
	if w.Cols != 40 || w.Rows != 10 || w.Generation != 1 {
		t.Fatalf("welcome = %+v", w)
	}
}

func TestInputRoundtrip(t *testing.T) {
	socket := startDaemon(t)
	c := attach(t, socket)

	// The PTY echoes what cat reads back through the interpreter.
	if err := c.SendInput([]byte("marker42\r")); err != nil {
		t.Fatalf("SendInput: %v", err)
	}
	waitForText(t, c, "marker42")
}

func TestResizeRemapsGeneration(t *testing.T) {
	socket := startDaemon(t)
	c := attach(t, socket)

	ack, err := c.RequestResize(60, 20)
	if err != nil {
		t.Fatalf("RequestResize: %v", err)
	}
	if ack.Generation != 2 || ack.Cols != 60 || ack.Rows != 20 {
		t.Fatalf("ack = %+v", ack)
	}

	if err := c.SendInput([]byte("after-resize\r")); err != nil {
		t.Fatalf("SendInput: %v", err)
	}
	snap := waitForText(t, c, "after-resize")
	if snap.Cols != 60 || snap.Rows != 20 || snap.Generation != 2 {
		t.Fatalf("snapshot geometry = %dx%d gen %d", snap.Cols, snap.Rows, snap.Generation)
	}

	if _, err := c.RequestResize(0, 20); err == nil {
		t.Fatal("invalid resize accepted")
	}
}

func TestPing(t *testing.T) {
	socket := startDaemon(t)
	c := attach(t, socket)

	rtt, err := c.Ping()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if rtt <= 0 {
		t.Fatalf("rtt = %v", rtt)
	}
}

func TestAttachTimesOutWithoutDaemon(t *testing.T) {
	_, err := Attach(Options{
		SocketPath:    filepath.Join(t.TempDir(), "nobody-home.sock"),
		AttachTimeout: 200 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("attach to nothing succeeded")
	}
}
