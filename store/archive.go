package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Archive persists tree snapshots in a sqlite file: one row per valued
// path, values as JSON. Values round-trip through JSON, so numbers come
// back as float64.
type Archive struct {
	db *sql.DB
}

// OpenArchive opens or creates the archive file and its schema.
func OpenArchive(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set archive journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set archive busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS paths (
	path TEXT PRIMARY KEY,
	value_json TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize archive schema: %w", err)
	}

	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Snapshot replaces the archived state with the tree's current values.
func (a *Archive) Snapshot(t *Tree) error {
	entries := t.Dump()

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM paths`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear archived paths: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, e := range entries {
		payload, err := json.Marshal(e.Value)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal value at %q: %w", e.Path, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO paths (path, value_json, updated_at) VALUES (?, ?, ?)`,
			e.Path, string(payload), now,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("archive path %q: %w", e.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Restore overlays the archived values onto the tree as one grouped write.
func (a *Archive) Restore(t *Tree) error {
	rows, err := a.db.Query(`SELECT path, value_json FROM paths ORDER BY path`)
	if err != nil {
		return fmt.Errorf("list archived paths: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var path, valueJSON string
		if err := rows.Scan(&path, &valueJSON); err != nil {
			return fmt.Errorf("scan archived path row: %w", err)
		}
		var value any
		if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
			return fmt.Errorf("unmarshal value at %q: %w", path, err)
		}
		entries = append(entries, Entry{Path: path, Value: value})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate archived path rows: %w", err)
	}

	t.Group(0, func(b *Batch) {
		for _, e := range entries {
			b.Set(e.Path, e.Value)
		}
	})
	return nil
}
