// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/loom/lifecycle/manager.go
// Summary: Starts, stops and inspects the per-session loomd process.

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// State is the observed lifecycle state of a session daemon.
type State int

const (
	StateUnknown State = iota
	StateStopped
	StateRunning
	StateUnresponsive
	StateStale
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateUnresponsive:
		return "unresponsive"
	case StateStale:
		return "stale"
	}
	return "unknown"
}

// DaemonOptions configures a loomd launch.
type DaemonOptions struct {
	Session     string
	LogFilePath string
}

// Manager drives one session's loomd process.
type Manager struct {
	pidFile    *PIDFile
	socketPath string
	health     HealthChecker
}

func NewManager(pidFile *PIDFile, socketPath string, health HealthChecker) *Manager {
	return &Manager{pidFile: pidFile, socketPath: socketPath, health: health}
}

func (m *Manager) GetState(ctx context.Context) State {
	if !m.pidFile.Exists() {
		return StateStopped
	}
	if !m.pidFile.IsProcessRunning() {
		return StateStale
	}
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.health.Check(healthCtx, m.socketPath); err != nil {
		return StateUnresponsive
	}
	return StateRunning
}

func (m *Manager) GetPID() int {
	pid, err := m.pidFile.Read()
	if err != nil {
		return 0
	}
	return pid
}

// Start forks a detached loomd for the session and records its PID.
func (m *Manager) Start(opts DaemonOptions) error {
	if m.pidFile.IsProcessRunning() {
		return fmt.Errorf("daemon already running (pid %d)", m.GetPID())
	}

	loomd, err := findLoomd()
	if err != nil {
		return err
	}

	var logFile *os.File
	if opts.LogFilePath != "" {
		// The child inherits this descriptor; it stays open on purpose.
		logFile, err = os.OpenFile(opts.LogFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
	}

	cmd := exec.Command(loomd, "-session", opts.Session)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("fork loomd: %w", err)
	}
	pid := cmd.Process.Pid
	if err := m.pidFile.Write(pid); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("write pid file: %w", err)
	}
	return cmd.Process.Release()
}

// Stop sends SIGTERM and escalates to SIGKILL after five seconds.
func (m *Manager) Stop(ctx context.Context) error {
	pid, err := m.pidFile.Read()
	if err != nil {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil || proc.Signal(syscall.Signal(0)) != nil {
		_ = m.pidFile.Remove()
		return nil
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			_ = proc.Kill()
			_ = m.pidFile.Remove()
			return ctx.Err()
		default:
		}
		if proc.Signal(syscall.Signal(0)) != nil {
			_ = m.pidFile.Remove()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = proc.Kill()
	_ = m.pidFile.Remove()
	return nil
}

func (m *Manager) Restart(ctx context.Context, opts DaemonOptions) error {
	_ = m.Stop(ctx)
	time.Sleep(200 * time.Millisecond)
	return m.Start(opts)
}

// findLoomd looks for the daemon binary next to this executable, then in
// PATH.
func findLoomd() (string, error) {
	exe, err := os.Executable()
	if err == nil {
		sibling := filepath.Join(filepath.Dir(exe), "loomd")
		if st, err := os.Stat(sibling); err == nil && !st.IsDir() {
			return sibling, nil
		}
	}
	if path, err := exec.LookPath("loomd"); err == nil {
		return path, nil
	}
	return "", errors.New("loomd binary not found next to loom or in PATH")
}
