package snapshot

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cranebuild/crane/internal/digest"
)

//go:embed schema.sql
var schemaSQL string

// digestCache persists (path, size, mtime) → digest rows across runs, so
// a warm session skips re-hashing unchanged trees. SQLite with WAL mode;
// a single writer connection avoids SQLITE_BUSY under concurrent capture.
type digestCache struct {
	db *sql.DB
}

func openDigestCache(path string) (*digestCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening digest cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to digest cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying digest cache schema: %w", err)
	}
	return &digestCache{db: db}, nil
}

func (c *digestCache) close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// lookup returns the cached digest for path iff size and mtime still
// match what was recorded.
func (c *digestCache) lookup(path string, sizeBytes, mtimeNS int64) (digest.Digest, bool, error) {
	var hash string
	err := c.db.QueryRow(
		"SELECT hash FROM file_digests WHERE path = ? AND size_bytes = ? AND mtime_ns = ?",
		path, sizeBytes, mtimeNS,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return digest.Digest{}, false, nil
	}
	if err != nil {
		return digest.Digest{}, false, fmt.Errorf("querying digest cache for %s: %w", path, err)
	}
	return digest.Digest{Hash: hash, SizeBytes: sizeBytes}, true, nil
}

func (c *digestCache) record(path string, sizeBytes, mtimeNS int64, d digest.Digest) error {
	_, err := c.db.Exec(
		"INSERT INTO file_digests (path, size_bytes, mtime_ns, hash) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT(path) DO UPDATE SET size_bytes = excluded.size_bytes, mtime_ns = excluded.mtime_ns, hash = excluded.hash",
		path, sizeBytes, mtimeNS, d.Hash,
	)
	if err != nil {
		return fmt.Errorf("recording digest for %s: %w", path, err)
	}
	return nil
}

// forget drops rows for changed paths so the next capture re-hashes them.
func (c *digestCache) forget(paths []string) error {
	for _, p := range paths {
		if _, err := c.db.Exec("DELETE FROM file_digests WHERE path = ?", p); err != nil {
			return fmt.Errorf("forgetting digest for %s: %w", p, err)
		}
	}
	return nil
}
