// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/client/ui.go
// Summary: Interactive attach loop: tcell events in, region snapshots out.
// Usage: RunUI blocks until the user detaches (Ctrl-Q), the session ends or
//        the region disappears.

package client

import (
	"errors"
	"time"

	"github.com/gdamore/tcell/v2"

	"loom/internal/shm"
)

// RunUI owns the terminal for the duration of the attach.
func RunUI(c *Client, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 16 * time.Millisecond
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	renderer := NewRenderer(screen)

	events := make(chan tcell.Event, 16)
	quitUI := make(chan struct{})
	go screen.ChannelEvents(events, quitUI)
	defer close(quitUI)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyCtrlQ {
					return c.Detach()
				}
				if b := keyToBytes(ev); b != nil {
					if err := c.SendInput(b); err != nil {
						return err
					}
				}
			case *tcell.EventResize:
				cols, rows := ev.Size()
				if _, err := c.RequestResize(cols, rows); err != nil {
					// The daemon keeps the old geometry; keep rendering.
					continue
				}
			}

		case <-ticker.C:
			snap, ok, err := c.Snapshot()
			if errors.Is(err, shm.ErrRegionClosed) {
				if ok {
					renderer.Draw(snap)
				}
				return nil
			}
			if err != nil {
				return err
			}
			if ok {
				renderer.Draw(snap)
			}
		}
	}
}

// keyToBytes translates a tcell key event into the byte sequence a terminal
// would send.
func keyToBytes(ev *tcell.EventKey) []byte {
	switch ev.Key() {
	case tcell.KeyUp:
		return []byte("\x1b[A")
	case tcell.KeyDown:
		return []byte("\x1b[B")
	case tcell.KeyRight:
		return []byte("\x1b[C")
	case tcell.KeyLeft:
		return []byte("\x1b[D")
	case tcell.KeyHome:
		return []byte("\x1b[H")
	case tcell.KeyEnd:
		return []byte("\x1b[F")
	case tcell.KeyInsert:
		return []byte("\x1b[2~")
	case tcell.KeyDelete:
		return []byte("\x1b[3~")
	case tcell.KeyPgUp:
		return []byte("\x1b[5~")
	case tcell.KeyPgDn:
		return []byte("\x1b[6~")
	case tcell.KeyF1:
		return []byte("\x1bOP")
	case tcell.KeyF2:
		return []byte("\x1bOQ")
	case tcell.KeyF3:
		return []byte("\x1bOR")
	case tcell.KeyF4:
		return []byte("\x1bOS")
	case tcell.KeyEnter:
		return []byte("\r")
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return []byte{0x7f}
	case tcell.KeyTab:
		return []byte("\t")
	case tcell.KeyEsc:
		return []byte("\x1b")
	}
	// Runes and Ctrl combinations arrive as their byte value already.
	if r := ev.Rune(); r != 0 {
		return []byte(string(r))
	}
	if k := ev.Key(); k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ {
		return []byte{byte(k)}
	}
	return nil
}
