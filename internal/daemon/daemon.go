// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/daemon/daemon.go
// Summary: Assembles a session, its control socket and optional history store.

package daemon

import (
	"context"
	"fmt"
	"log"
	"time"

	"loom/config"
	"loom/internal/history"
)

// Daemon runs one headless terminal session until its shell exits or the
// context is cancelled.
type Daemon struct {
	name     string
	settings config.Settings
	hooks    *HookSet

	session *Session
	control *Control
	hist    *history.Store
}

func New(name string, settings config.Settings) *Daemon {
	return &Daemon{name: name, settings: settings, hooks: &HookSet{}}
}

// Hooks exposes the hook registry; register before Run.
func (d *Daemon) Hooks() *HookSet { return d.hooks }

// Run starts everything and blocks until shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	if d.settings.HistoryPath != "" {
		hist, err := history.Open(history.Config{Path: d.settings.HistoryPath})
		if err != nil {
			// History is an extra; the session runs without it.
			log.Printf("daemon: history disabled: %v", err)
		} else {
			d.hist = hist
			defer d.hist.Close()
		}
	}

	session, err := NewSession(SessionConfig{
		Name:          d.name,
		Shell:         d.settings.Shell,
		Cols:          d.settings.Cols,
		Rows:          d.settings.Rows,
		CacheCapacity: d.settings.CacheCapacity,
		RingCapacity:  d.settings.RingCapacity,
		RegionPath:    d.settings.RegionPath(d.name),
		History:       d.hist,
		Hooks:         d.hooks,
	})
	if err != nil {
		return err
	}
	d.session = session
	if err := session.Start(); err != nil {
		return err
	}

	stopCtx, stop := context.WithCancel(context.Background())
	defer stop()
	d.control = NewControl(config.SocketPath(d.name), session, stop)
	if err := d.control.Start(); err != nil {
		session.Close()
		return fmt.Errorf("daemon: control socket: %w", err)
	}
	log.Printf("daemon: session %s (%s) up, region %s",
		d.name, session.ID(), session.RegionPath())

	select {
	case <-ctx.Done():
	case <-stopCtx.Done():
	case <-session.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = d.control.Stop(shutdownCtx)
	// The sealed region file stays behind so a late attach still shows the
	// final screen; the next daemon for this name replaces it.
	session.Close()

	err = session.Wait()
	log.Printf("daemon: session %s down", d.name)
	return err
}
