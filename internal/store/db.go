// Package store provides the SQLite storage layer for notes.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite connection holding the notes table and, when the driver
// was built with FTS5, its full-text index.
type DB struct {
	conn *sql.DB
	mu   sync.Mutex // serialize writes
	fts  bool
	now  func() time.Time
}

// OpenPath opens or creates the database at the given path.
func OpenPath(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn, now: time.Now}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database for testing.
func OpenMemory() (*DB, error) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every pooled connection would get its own empty in-memory database.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, now: time.Now}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB for direct queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// FTSAvailable reports whether the FTS5 index exists. Without it, SearchNotes
// falls back to LIKE matching.
func (db *DB) FTSAvailable() bool {
	return db.fts
}

// RebuildFTS repopulates the full-text index from the notes table.
func (db *DB) RebuildFTS() error {
	if !db.fts {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.conn.Exec(`INSERT INTO notes_fts(notes_fts) VALUES('rebuild')`); err != nil {
		return fmt.Errorf("rebuild fts: %w", err)
	}
	return nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			source TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_updated ON notes(updated_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_notes_source ON notes(source) WHERE source != ''`,
	}
	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	ok, err := db.migrateFTS()
	if err != nil {
		return err
	}
	db.fts = ok
	return nil
}

// migrateFTS creates the external-content FTS5 table and its sync triggers.
// It reports false when the driver lacks the fts5 module.
func (db *DB) migrateFTS() (bool, error) {
	_, err := db.conn.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
		title, content, tags,
		content='notes', content_rowid='id'
	)`)
	if err != nil {
		if isMissingModule(err) {
			return false, nil
		}
		return false, fmt.Errorf("create notes_fts: %w", err)
	}

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS notes_ai AFTER INSERT ON notes BEGIN
			INSERT INTO notes_fts(rowid, title, content, tags) VALUES (new.id, new.title, new.content, new.tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS notes_ad AFTER DELETE ON notes BEGIN
			INSERT INTO notes_fts(notes_fts, rowid, title, content, tags) VALUES ('delete', old.id, old.title, old.content, old.tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS notes_au AFTER UPDATE ON notes BEGIN
			INSERT INTO notes_fts(notes_fts, rowid, title, content, tags) VALUES ('delete', old.id, old.title, old.content, old.tags);
			INSERT INTO notes_fts(rowid, title, content, tags) VALUES (new.id, new.title, new.content, new.tags);
		END`,
	}
	for _, m := range triggers {
		if _, err := db.conn.Exec(m); err != nil {
			return false, fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return true, nil
}

func isMissingModule(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such module")
}

// ErrNotFound is returned when a note id or source does not exist.
var ErrNotFound = errors.New("note not found")

// ErrInvalid wraps validation failures on note fields.
var ErrInvalid = errors.New("invalid note")
