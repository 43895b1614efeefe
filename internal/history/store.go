// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/history/store.go
// Summary: SQLite-backed store of session output lines with substring search.
// Notes: Output lines are batched on a background goroutine so recording never
//        blocks the publish path. Search uses an FTS5 trigram index, falling
//        back to LIKE for queries shorter than one trigram.

package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Line is one recorded output line.
type Line struct {
	Seq       int64
	Session   string
	Timestamp time.Time
	Content   string
}

// Config tunes the store's batching behaviour.
type Config struct {
	Path         string
	BatchSize    int
	BatchTimeout time.Duration
	QueueDepth   int
}

func (c *Config) fill() {
	if c.BatchSize < 1 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 5 * time.Second
	}
	if c.QueueDepth < 1 {
		c.QueueDepth = 1000
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS lines (
    seq INTEGER PRIMARY KEY,
    session TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    content TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lines_session_time ON lines(session, timestamp);

CREATE VIRTUAL TABLE IF NOT EXISTS lines_fts USING fts5(
    content,
    content='lines',
    content_rowid='seq',
    tokenize='trigram'
);

CREATE TRIGGER IF NOT EXISTS lines_ai AFTER INSERT ON lines BEGIN
    INSERT INTO lines_fts(rowid, content) VALUES (new.seq, new.content);
END;

CREATE TRIGGER IF NOT EXISTS lines_ad AFTER DELETE ON lines BEGIN
    INSERT INTO lines_fts(lines_fts, rowid, content) VALUES ('delete', old.seq, old.content);
END;
`

// Store records output lines and serves history searches.
type Store struct {
	cfg Config
	db  *sql.DB

	mu      sync.RWMutex
	nextSeq int64

	queue   chan Line
	flushCh chan chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Open creates or opens the history database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	cfg.fill()
	if cfg.Path == "" {
		return nil, fmt.Errorf("history: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}

	dsn := cfg.Path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: connect: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}

	s := &Store{
		cfg:     cfg,
		db:      db,
		queue:   make(chan Line, cfg.QueueDepth),
		flushCh: make(chan chan struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if err := db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM lines").Scan(&s.nextSeq); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: read sequence: %w", err)
	}

	go s.batcher()
	return s, nil
}

// Record queues one output line. When the queue is full the line is dropped;
// history is best effort and must never stall the session.
func (s *Store) Record(session, content string, at time.Time) {
	if content == "" {
		return
	}
	s.mu.Lock()
	s.nextSeq++
	line := Line{Seq: s.nextSeq, Session: session, Timestamp: at, Content: content}
	s.mu.Unlock()

	select {
	case s.queue <- line:
	default:
	}
}

func (s *Store) batcher() {
	defer close(s.doneCh)

	batch := make([]Line, 0, s.cfg.BatchSize)
	timer := time.NewTimer(s.cfg.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.writeBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case line := <-s.queue:
			batch = append(batch, line)
			if len(batch) >= s.cfg.BatchSize {
				flush()
				timer.Reset(s.cfg.BatchTimeout)
			}

		case <-timer.C:
			flush()
			timer.Reset(s.cfg.BatchTimeout)

		case done := <-s.flushCh:
			for drained := false; !drained; {
				select {
				case line := <-s.queue:
					batch = append(batch, line)
				default:
					drained = true
				}
			}
			flush()
			close(done)

		case <-s.stopCh:
			for {
				select {
				case line := <-s.queue:
					batch = append(batch, line)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *Store) writeBatch(batch []Line) {
	tx, err := s.db.Begin()
	if err != nil {
		return
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO lines (seq, session, timestamp, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return
	}
	defer stmt.Close()

	for _, l := range batch {
		if _, err := stmt.Exec(l.Seq, l.Session, l.Timestamp.UnixNano(), l.Content); err != nil {
			tx.Rollback()
			return
		}
	}
	_ = tx.Commit()
}

// Search returns lines matching query, newest first. Queries shorter than
// three bytes cannot form a trigram and use LIKE instead.
func (s *Store) Search(session, query string, limit int) ([]Line, error) {
	if query == "" {
		return nil, nil
	}
	if limit < 1 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if len(query) < 3 {
		pattern := "%" + strings.ReplaceAll(strings.ReplaceAll(query, "%", `\%`), "_", `\_`) + "%"
		rows, err = s.db.Query(`
			SELECT seq, session, timestamp, content FROM lines
			WHERE session = ? AND content LIKE ? ESCAPE '\'
			ORDER BY timestamp DESC LIMIT ?`, session, pattern, limit)
	} else {
		quoted := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
		rows, err = s.db.Query(`
			SELECT l.seq, l.session, l.timestamp, l.content
			FROM lines_fts JOIN lines l ON l.seq = lines_fts.rowid
			WHERE lines_fts MATCH ? AND l.session = ?
			ORDER BY l.timestamp DESC LIMIT ?`, quoted, session, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("history: search: %w", err)
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		var ns int64
		if err := rows.Scan(&l.Seq, &l.Session, &ns, &l.Content); err != nil {
			continue
		}
		l.Timestamp = time.Unix(0, ns)
		out = append(out, l)
	}
	return out, rows.Err()
}

// Tail returns the most recent limit lines for a session, oldest first.
func (s *Store) Tail(session string, limit int) ([]Line, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT seq, session, timestamp, content FROM lines
		WHERE session = ? ORDER BY seq DESC LIMIT ?`, session, limit)
	if err != nil {
		return nil, fmt.Errorf("history: tail: %w", err)
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		var ns int64
		if err := rows.Scan(&l.Seq, &l.Session, &ns, &l.Content); err != nil {
			continue
		}
		l.Timestamp = time.Unix(0, ns)
		out = append(out, l)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// Flush blocks until every queued line is written.
func (s *Store) Flush() {
	done := make(chan struct{})
	select {
	case s.flushCh <- done:
		<-done
	case <-s.stopCh:
	}
}

// Close flushes pending lines and closes the database.
func (s *Store) Close() error {
	close(s.stopCh)
	<-s.doneCh
	return s.db.Close()
}
