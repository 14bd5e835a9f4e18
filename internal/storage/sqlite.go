// Package storage provides the SQLite journal of patch operations.
// Every new, save, load and clear handled by the patcher is recorded with
// its outcome so an operator can see what happened to a session's graph.
package storage

import (
	"database/sql"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	// SQLite driver - imported for side effects (registers the driver).
	// modernc.org/sqlite is pure Go and needs no CGO.
	_ "modernc.org/sqlite"

	"github.com/fivefx/patcher/internal/errors"
)

// SQLiteStore persists history entries in a SQLite database.
// It creates the database and tables on first use and supports
// concurrent access through internal locking.
type SQLiteStore struct {
	db     *sql.DB      // Database connection handle.
	mu     sync.RWMutex // Guards all database operations.
	logger *log.Logger
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// It initializes the schema if the tables don't exist.
// Use ":memory:" for an in-memory database (useful for testing).
// A nil logger discards store diagnostics.
func NewSQLiteStore(path string, logger *log.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logger.Debug("opening database", "path", path)

	// busy_timeout covers the history CLI reading while a session writes.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(errors.CodeStorageOpenFailed, fmt.Sprintf("open database %s", path), err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.CodeStorageOpenFailed, fmt.Sprintf("ping database %s", path), err)
	}

	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.CodeStorageOpenFailed, "init schema", err)
	}

	logger.Debug("database ready", "schema_version", currentSchemaVersion)
	return store, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Debug("closing database")
	return s.db.Close()
}
