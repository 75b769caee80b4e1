// Package store provides the durable local stores backing the retrieval
// engine and the sentiment pipeline: a document vector index and a sentiment
// cache, both on a single SQLite database file. The pure-Go driver keeps the
// binary free of cgo.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store wraps the shared SQLite handle.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	content_hash  TEXT NOT NULL,
	text          TEXT NOT NULL,
	source        TEXT NOT NULL DEFAULT '',
	trust_score   REAL NOT NULL DEFAULT 0.5,
	published_at  INTEGER NOT NULL DEFAULT 0,
	embedding     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);

CREATE TABLE IF NOT EXISTS sentiment_cache (
	content_hash  TEXT PRIMARY KEY,
	label         TEXT NOT NULL,
	score         REAL NOT NULL,
	confidence    REAL NOT NULL,
	tier          INTEGER NOT NULL
);
`

// Open opens (creating if needed) the database at path. Use ":memory:" for
// an ephemeral store.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database is reachable.
func (s *Store) Ping() error { return s.db.Ping() }
