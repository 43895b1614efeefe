// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/loom.go
// Summary: Daemon and client settings, loaded from loom.json with defaults.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings holds everything tunable about a loom session. Zero values are
// filled in by applyDefaults; a missing config file is not an error.
type Settings struct {
	// Shell is the command started inside the session PTY.
	Shell string `json:"shell"`

	// Cols and Rows are the initial grid dimensions.
	Cols int `json:"cols"`
	Rows int `json:"rows"`

	// CacheCapacity is the escape-sequence cache size; 0 keeps the default.
	CacheCapacity int `json:"cache_capacity"`

	// RingCapacity is the echo ring size in bytes; 0 disables the ring.
	RingCapacity int `json:"ring_capacity"`

	// ShmDir is where region files live. Overridden by LOOM_SHM_DIR.
	ShmDir string `json:"shm_dir"`

	// HistoryPath is the sqlite output history database; empty disables it.
	HistoryPath string `json:"history_path"`

	// PollInterval is the client render poll cadence in milliseconds.
	PollInterval int `json:"poll_interval_ms"`
}

const configName = "loom.json"

// Load reads loom.json from the user config directory and fills defaults.
func Load() (Settings, error) {
	path, err := settingsPath()
	if err != nil {
		return defaults(), err
	}
	return LoadFile(path)
}

// LoadFile reads settings from an explicit path. A missing file yields the
// defaults without error.
func LoadFile(path string) (Settings, error) {
	s := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return defaults(), fmt.Errorf("config: parse %s: %w", path, err)
	}
	s.applyDefaults()
	return s, nil
}

// Save writes settings as indented JSON, creating the config directory.
func Save(s Settings) error {
	path, err := settingsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func defaults() Settings {
	s := Settings{}
	s.applyDefaults()
	return s
}

func (s *Settings) applyDefaults() {
	if s.Shell == "" {
		if sh := os.Getenv("SHELL"); sh != "" {
			s.Shell = sh
		} else {
			s.Shell = "/bin/sh"
		}
	}
	if s.Cols < 1 {
		s.Cols = 80
	}
	if s.Rows < 1 {
		s.Rows = 24
	}
	if s.RingCapacity < 0 {
		s.RingCapacity = 0
	}
	if s.PollInterval < 1 {
		s.PollInterval = 16
	}
	if s.ShmDir == "" {
		s.ShmDir = defaultShmDir()
	}
	if dir := os.Getenv("LOOM_SHM_DIR"); dir != "" {
		s.ShmDir = dir
	}
}

// RegionPath returns the well-known region file path for a session name.
func (s Settings) RegionPath(session string) string {
	return filepath.Join(s.ShmDir, "loom-"+session+".grid")
}

// SocketPath returns the control socket path for a session name.
func SocketPath(session string) string {
	return filepath.Join(runtimeDir(), "loom-"+session+".sock")
}

// PidPath returns the pidfile path for a session name.
func PidPath(session string) string {
	return filepath.Join(runtimeDir(), "loom-"+session+".pid")
}
