// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/daemon/hooks.go
// Summary: Best-effort event hooks fired by sessions.
// Notes: Hooks run on the session's read loop. A panicking hook is logged and
//        dropped for the event; it can never take down the publish path.

package daemon

import (
	"log"
	"sync"

	"loom/vt"
)

// EventKind classifies session events.
type EventKind int

const (
	EventOutput EventKind = iota
	EventTitle
	EventResize
	EventExit
)

func (k EventKind) String() string {
	switch k {
	case EventOutput:
		return "output"
	case EventTitle:
		return "title"
	case EventResize:
		return "resize"
	case EventExit:
		return "exit"
	}
	return "unknown"
}

// GridView is a read-only copy of the grid taken when the event fired. The
// session never hands hooks its live grid.
type GridView struct {
	Cols    int
	Rows    int
	Cells   []vt.Cell
	CursorX int
	CursorY int
}

// Cell returns the cell at (x, y); out-of-bounds reads yield a zero cell.
func (v *GridView) Cell(x, y int) vt.Cell {
	if v == nil || x < 0 || y < 0 || x >= v.Cols || y >= v.Rows {
		return vt.Cell{}
	}
	return v.Cells[y*v.Cols+x]
}

// Event describes something that happened inside a session. Output and
// resize events carry the grid as it stood after the change.
type Event struct {
	Kind    EventKind
	Session string
	Title   string
	Cols    int
	Rows    int
	Data    []byte
	Grid    *GridView
}

// Hook receives session events. The Data slice is only valid for the call.
type Hook func(Event)

// HookSet is a registry of hooks shared by the daemon's sessions.
type HookSet struct {
	mu    sync.RWMutex
	hooks []Hook
}

func (h *HookSet) Register(fn Hook) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.hooks = append(h.hooks, fn)
	h.mu.Unlock()
}

// active reports whether any hook is registered, so sessions can skip the
// grid copy when nobody listens.
func (h *HookSet) active() bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	n := len(h.hooks)
	h.mu.RUnlock()
	return n > 0
}

func (h *HookSet) fire(ev Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	hooks := h.hooks
	h.mu.RUnlock()

	for _, fn := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("daemon: %s hook panicked: %v", ev.Kind, r)
				}
			}()
			fn(ev)
		}()
	}
}
