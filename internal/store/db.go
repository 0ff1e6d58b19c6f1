// Package store is the local SQLite mirror of the archive: chats, messages
// of chats the user opened or that arrived live, and sync checkpoints.
package store

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the archive.db handle. The mirror engine and the view loop both
// write, so the pool is held to one connection and writers queue in Go
// instead of failing with SQLITE_BUSY.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the mirror at path in WAL mode.
func Open(path string) (*DB, error) {
	q := url.Values{
		"_journal_mode": {"WAL"},
		"_busy_timeout": {"5000"},
		"_foreign_keys": {"on"},
		"_synchronous":  {"NORMAL"},
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open archive db %s: %w", path, err)
	}
	return &DB{DB: db, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }
