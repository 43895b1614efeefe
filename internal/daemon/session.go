// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/daemon/session.go
// Summary: One PTY-backed terminal session feeding the shared region.
// Usage: The read loop is the only goroutine that touches the interpreter
//        and the region writer; control requests are serialised onto it
//        through the session mutex.

package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"loom/internal/history"
	"loom/internal/shm"
	"loom/protocol"
	"loom/vt"
)

var ErrSessionClosed = errors.New("daemon: session closed")

// SessionConfig describes how to start a session.
type SessionConfig struct {
	Name          string
	Shell         string
	Args          []string
	Cols          int
	Rows          int
	CacheCapacity int
	RingCapacity  int
	RegionPath    string
	History       *history.Store
	Hooks         *HookSet
}

// Session owns the PTY, the interpreter and the region writer for one
// terminal. Output flows PTY -> interpreter -> region; input flows the
// control socket -> PTY.
type Session struct {
	id   uuid.UUID
	cfg  SessionConfig
	term *vt.Terminal

	mu     sync.Mutex
	writer *shm.Writer
	ptmx   *os.File
	cmd    *exec.Cmd

	lineTail []byte

	closeOnce sync.Once
	done      chan struct{}
	exitErr   error
}

// NewSession builds the interpreter and the shared region but does not start
// the shell yet.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Cols < 1 || cfg.Cols > protocol.MaxCols || cfg.Rows < 1 || cfg.Rows > protocol.MaxRows {
		return nil, fmt.Errorf("daemon: invalid session dimensions %dx%d", cfg.Cols, cfg.Rows)
	}
	if cfg.Shell == "" {
		return nil, errors.New("daemon: no shell configured")
	}

	var opts []vt.Option
	if cfg.CacheCapacity > 0 {
		opts = append(opts, vt.WithCache(cfg.CacheCapacity))
	}
	term := vt.NewTerminal(cfg.Cols, cfg.Rows, opts...)

	writer, err := shm.Create(cfg.RegionPath, cfg.Cols, cfg.Rows, cfg.RingCapacity)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:     uuid.New(),
		cfg:    cfg,
		term:   term,
		writer: writer,
		done:   make(chan struct{}),
	}
	term.WriteBack = func(b []byte) { _ = s.WriteInput(b) }
	term.TitleChanged = func(title string) {
		cfg.Hooks.fire(Event{Kind: EventTitle, Session: cfg.Name, Title: title})
	}
	return s, nil
}

// Start launches the shell under a PTY and begins the read loop.
func (s *Session) Start() error {
	cmd := exec.Command(s.cfg.Shell, s.cfg.Args...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(s.cfg.Rows),
		Cols: uint16(s.cfg.Cols),
	})
	if err != nil {
		s.writer.Close()
		return fmt.Errorf("daemon: start %s: %w", s.cfg.Shell, err)
	}

	s.mu.Lock()
	s.ptmx = ptmx
	s.cmd = cmd
	s.mu.Unlock()

	go s.readLoop(ptmx, cmd)
	return nil
}

func (s *Session) readLoop(ptmx *os.File, cmd *exec.Cmd) {
	buf := make([]byte, 4096)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			s.ingest(buf[:n])
		}
		if err != nil {
			break
		}
	}
	s.finish(cmd.Wait())
}

// ingest runs one output chunk through the interpreter and publishes the
// resulting grid. One publish per read keeps the region at most one chunk
// behind the PTY.
func (s *Session) ingest(p []byte) {
	s.mu.Lock()
	s.term.Feed(p)
	if s.writer != nil {
		s.writer.Publish(s.term.Grid(), s.term.CursorVisible())
		s.writer.AppendEcho(p)
	}
	var view *GridView
	if s.cfg.Hooks.active() {
		view = snapshotGrid(s.term)
	}
	s.mu.Unlock()

	s.recordLines(p)
	s.cfg.Hooks.fire(Event{Kind: EventOutput, Session: s.cfg.Name, Data: p, Grid: view})
}

// snapshotGrid copies the grid under the session mutex so hooks observe the
// post-chunk state without aliasing the live cells.
func snapshotGrid(t *vt.Terminal) *GridView {
	g := t.Grid()
	view := &GridView{
		Cols:  g.Cols(),
		Rows:  g.Rows(),
		Cells: make([]vt.Cell, len(g.Cells())),
	}
	copy(view.Cells, g.Cells())
	view.CursorX, view.CursorY = g.Cursor()
	return view
}

// recordLines extracts completed plain-text lines for the history store.
func (s *Session) recordLines(p []byte) {
	if s.cfg.History == nil {
		return
	}
	s.lineTail = append(s.lineTail, p...)
	now := time.Now()
	for {
		idx := -1
		for i, b := range s.lineTail {
			if b == '\n' {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		line := scrubLine(s.lineTail[:idx])
		s.lineTail = s.lineTail[idx+1:]
		if line != "" {
			s.cfg.History.Record(s.cfg.Name, line, now)
		}
	}
	// Unterminated remainder beyond one line is output without newlines;
	// cap it so a pathological stream cannot grow the tail unbounded.
	if len(s.lineTail) > 4096 {
		s.lineTail = s.lineTail[len(s.lineTail)-4096:]
	}
}

// Resize changes the PTY and grid dimensions and swaps in a new region
// generation. Returns the new generation for the resize ack.
func (s *Session) Resize(cols, rows int) (uint64, error) {
	if cols < 1 || cols > protocol.MaxCols || rows < 1 || rows > protocol.MaxRows {
		return 0, fmt.Errorf("daemon: invalid resize to %dx%d", cols, rows)
	}

	s.mu.Lock()
	if s.writer == nil {
		s.mu.Unlock()
		return 0, ErrSessionClosed
	}
	if s.ptmx != nil {
		if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
			s.mu.Unlock()
			return 0, fmt.Errorf("daemon: resize pty: %w", err)
		}
	}
	s.term.Resize(cols, rows)
	if err := s.writer.NewGeneration(cols, rows); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.writer.Publish(s.term.Grid(), s.term.CursorVisible())
	gen := s.writer.Generation()
	var view *GridView
	if s.cfg.Hooks.active() {
		view = snapshotGrid(s.term)
	}
	s.mu.Unlock()

	s.cfg.Hooks.fire(Event{Kind: EventResize, Session: s.cfg.Name, Cols: cols, Rows: rows, Grid: view})
	return gen, nil
}

// WriteInput forwards bytes to the shell's PTY.
func (s *Session) WriteInput(p []byte) error {
	s.mu.Lock()
	ptmx := s.ptmx
	s.mu.Unlock()
	if ptmx == nil {
		return ErrSessionClosed
	}
	_, err := ptmx.Write(p)
	return err
}

func (s *Session) finish(exitErr error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.exitErr = exitErr
		if s.writer != nil {
			// Publish whatever the interpreter holds, then seal the region
			// so late attachers read the final state, never garbage.
			s.writer.Publish(s.term.Grid(), s.term.CursorVisible())
			s.writer.Close()
			s.writer = nil
		}
		s.ptmx = nil
		s.term.Close()
		s.mu.Unlock()

		s.cfg.Hooks.fire(Event{Kind: EventExit, Session: s.cfg.Name})
		close(s.done)
	})
}

// Close terminates the shell. The read loop drains the PTY and seals the
// region when the process exits.
func (s *Session) Close() {
	s.mu.Lock()
	ptmx := s.ptmx
	cmd := s.cmd
	s.mu.Unlock()

	if ptmx != nil {
		_ = ptmx.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-s.done
	}
}

// RemoveRegion deletes the region file after shutdown.
func (s *Session) RemoveRegion() error {
	return os.Remove(s.cfg.RegionPath)
}

func (s *Session) ID() uuid.UUID      { return s.id }
func (s *Session) Name() string       { return s.cfg.Name }
func (s *Session) RegionPath() string { return s.cfg.RegionPath }
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the shell exits and returns its error, if any.
func (s *Session) Wait() error {
	<-s.done
	return s.exitErr
}

// Geometry returns the current grid dimensions and region generation.
func (s *Session) Geometry() (cols, rows int, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.term.Grid()
	gen := uint64(0)
	if s.writer != nil {
		gen = s.writer.Generation()
	}
	return g.Cols(), g.Rows(), gen
}

// scrubLine strips escape sequences and control bytes, leaving the printable
// text of one output line.
func scrubLine(raw []byte) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if b == 0x1b {
			i += skipEscape(raw[i+1:])
			continue
		}
		if b < 0x20 || b == 0x7f {
			continue
		}
		out = append(out, b)
	}
	return string(out)
}

// skipEscape returns how many bytes after ESC belong to the sequence.
func skipEscape(rest []byte) int {
	if len(rest) == 0 {
		return 0
	}
	switch rest[0] {
	case '[': // CSI: parameters then a final byte in @..~
		for i := 1; i < len(rest); i++ {
			if rest[i] >= 0x40 && rest[i] <= 0x7e {
				return i + 1
			}
		}
		return len(rest)
	case ']': // OSC: terminated by BEL or ESC \
		for i := 1; i < len(rest); i++ {
			if rest[i] == 0x07 {
				return i + 1
			}
			if rest[i] == 0x1b && i+1 < len(rest) && rest[i+1] == '\\' {
				return i + 2
			}
		}
		return len(rest)
	default:
		return 1
	}
}
