package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a key has no row in the store.
var ErrNotFound = errors.New("store: not found")

// ErrStorage marks cache corruption or IO failures. It is distinct
// from ErrNotFound: a corrupted row fails the operation in progress
// but must never be reported as a simple miss.
var ErrStorage = errors.New("store: storage error")

// DB wraps the SQLite connection holding the local mirror.
type DB struct {
	*sql.DB
}

// Open creates the SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}
