// Package store persists delivery-side accounting in SQLite: which
// workspace events have been processed, and what each agent run cost.
// The orchestration core itself keeps no state here.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at the given path.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id      TEXT PRIMARY KEY,
			seen_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create events table: %w", err)
	}

	st := &Store{db: db}

	if err := st.initRuns(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}

	return st, nil
}

// MarkProcessed records an event ID and reports whether it was new.
// A false return means the event was already handled, possibly before
// a restart, and must not be processed again.
func (s *Store) MarkProcessed(eventID string) (bool, error) {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO events (id) VALUES (?)`, eventID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// PruneEvents deletes event rows older than the cutoff and returns how
// many were removed. Workspace event IDs only need to be remembered for
// as long as the platform retries deliveries.
func (s *Store) PruneEvents(before time.Time) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM events WHERE seen_at < ?`,
		before.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
