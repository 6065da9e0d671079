package modcache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Cache is the local, file-backed chunk cache: a single SQLite database
// of source-hash -> compiled code object, so a build doesn't pay to
// recompile a module whose source hasn't changed since the last run.
type Cache struct {
	db *sql.DB
}

// Open creates (if needed) and opens the cache database under dir,
// mirroring the teacher's habit of treating its working directories as
// plain paths rather than requiring them to pre-exist.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("modcache: create cache dir: %w", err)
	}
	path := filepath.Join(dir, "chunks.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("modcache: open %s: %w", path, err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS chunks (
		hash       TEXT PRIMARY KEY,
		blob       BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("modcache: create schema: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Hash returns the content-addressed cache key for a compile unit: the
// source text together with the filename, since two files with
// identical contents but different module-qualified names must not
// collide.
func Hash(fileName, source string) string {
	h := sha256.New()
	h.Write([]byte(fileName))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// Get looks up a cached compiled blob by hash. The bool return is false
// on a cache miss, not an error; a genuine lookup failure still returns
// a non-nil error.
func (c *Cache) Get(hash string) ([]byte, bool, error) {
	var blob []byte
	err := c.db.QueryRow(`SELECT blob FROM chunks WHERE hash = ?`, hash).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("modcache: get %s: %w", hash, err)
	}
	return blob, true, nil
}

// Put stores (or refreshes) a compiled blob under hash.
func (c *Cache) Put(hash string, blob []byte, createdAt int64) error {
	_, err := c.db.Exec(
		`INSERT INTO chunks (hash, blob, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET blob = excluded.blob, created_at = excluded.created_at`,
		hash, blob, createdAt,
	)
	if err != nil {
		return fmt.Errorf("modcache: put %s: %w", hash, err)
	}
	return nil
}

// Stats reports the entry count and total blob bytes currently held,
// for krokoc's --stats flag.
func (c *Cache) Stats() (count int, totalBytes int64, err error) {
	row := c.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(LENGTH(blob)), 0) FROM chunks`)
	if err := row.Scan(&count, &totalBytes); err != nil {
		return 0, 0, fmt.Errorf("modcache: stats: %w", err)
	}
	return count, totalBytes, nil
}
