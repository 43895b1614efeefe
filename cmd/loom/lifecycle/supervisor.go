// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/loom/lifecycle/supervisor.go
// Summary: Ensures a healthy session daemon before a client attaches.

package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// StartResult reports what EnsureRunning had to do.
type StartResult struct {
	WasStarted    bool
	WasRestarted  bool
	PreviousState State
	PID           int
}

// Supervisor brings a session daemon to a healthy running state.
type Supervisor struct {
	manager     *Manager
	health      HealthChecker
	pidFile     *PIDFile
	startupWait time.Duration
}

func NewSupervisor(manager *Manager, health HealthChecker, pidFile *PIDFile) *Supervisor {
	return &Supervisor{
		manager:     manager,
		health:      health,
		pidFile:     pidFile,
		startupWait: 5 * time.Second,
	}
}

// EnsureRunning starts or restarts the daemon as needed and waits until it
// answers health checks.
func (s *Supervisor) EnsureRunning(ctx context.Context, opts DaemonOptions) (*StartResult, error) {
	result := &StartResult{PreviousState: s.manager.GetState(ctx)}

	switch result.PreviousState {
	case StateRunning:
		result.PID = s.manager.GetPID()
		return result, nil

	case StateUnresponsive:
		if err := s.manager.Restart(ctx, opts); err != nil {
			return nil, fmt.Errorf("restart unresponsive daemon: %w", err)
		}
		result.WasRestarted = true
		result.WasStarted = true

	case StateStale:
		_ = s.pidFile.Remove()
		fallthrough

	default:
		if err := s.manager.Start(opts); err != nil {
			return nil, fmt.Errorf("start daemon: %w", err)
		}
		result.WasStarted = true
	}

	if err := s.waitForHealthy(ctx); err != nil {
		return nil, fmt.Errorf("daemon failed to become healthy: %w", err)
	}
	result.PID = s.manager.GetPID()
	return result, nil
}

func (s *Supervisor) waitForHealthy(ctx context.Context) error {
	deadline := time.Now().Add(s.startupWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.health.Check(healthCtx, s.manager.socketPath)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for daemon")
}

func (s *Supervisor) Stop(ctx context.Context) error {
	return s.manager.Stop(ctx)
}
