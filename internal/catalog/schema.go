// Package catalog provides the SQLite-backed scan catalog: per class file,
// the checksum last scanned and the annotation instances derived from it, so
// unchanged classes are not parsed again.
package catalog

import (
	"database/sql"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/anndex/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS classes (
	module     TEXT NOT NULL,
	path       TEXT NOT NULL,
	checksum   TEXT NOT NULL DEFAULT '',
	class_name TEXT NOT NULL DEFAULT '',
	instances  INTEGER NOT NULL DEFAULT 0,
	blob       BLOB,
	error      TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (module, path)
);

CREATE INDEX IF NOT EXISTS idx_classes_checksum ON classes(checksum);
`

// DefaultCacheSize is the number of decoded entries kept in memory.
const DefaultCacheSize = 4096

// DB wraps a sql.DB with catalog operations.
type DB struct {
	conn  *sql.DB
	cache *lru.Cache[string, []models.Instance]
}

// Open opens (or creates) the SQLite database and applies the schema.
// cacheSize <= 0 selects DefaultCacheSize.
func Open(dsn string, cacheSize int) (*DB, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []models.Instance](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("catalog: create cache: %w", err)
	}
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}
	return &DB{conn: conn, cache: cache}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
