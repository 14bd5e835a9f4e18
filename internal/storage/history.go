package storage

import (
	"database/sql"
	"time"

	"github.com/fivefx/patcher/internal/errors"
)

// Outcome values stored with each entry.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// HistoryEntry records one patch operation.
type HistoryEntry struct {
	// ID is assigned by the database.
	ID int64

	// RequestID correlates log lines with the entry (UUID).
	RequestID string

	// Operation is the operation name: new, save, load, clear or session_save.
	Operation string

	// Patch is the patch name the operation acted on (empty for clear).
	Patch string

	// InstancePath is the session directory the patch lives in.
	InstancePath string

	// Source is the address the request came from, or "console"/"session".
	Source string

	// Outcome is OutcomeOK or OutcomeFailed.
	Outcome string

	// Error is the failure message when Outcome is OutcomeFailed.
	Error string

	// At is when the operation finished.
	At time.Time
}

// SaveAndPruneHistory inserts an entry and prunes the oldest rows beyond
// maxRows in a single transaction. maxRows <= 0 keeps everything.
func (s *SQLiteStore) SaveAndPruneHistory(entry *HistoryEntry, maxRows int) error {
	if entry == nil {
		return errors.New(errors.CodeStorageSaveFailed, "history entry cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(errors.CodeStorageSaveFailed, "begin transaction", err)
	}
	defer tx.Rollback()

	const insertQuery = `
		INSERT INTO patch_history
			(request_id, operation, patch, instance_path, source, outcome, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := tx.Exec(insertQuery,
		entry.RequestID,
		entry.Operation,
		entry.Patch,
		entry.InstancePath,
		entry.Source,
		entry.Outcome,
		entry.Error,
		entry.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrap(errors.CodeStorageSaveFailed, "insert history entry", err)
	}

	if maxRows > 0 {
		const pruneQuery = `
			DELETE FROM patch_history
			WHERE id NOT IN (SELECT id FROM patch_history ORDER BY id DESC LIMIT ?)
		`
		if _, err := tx.Exec(pruneQuery, maxRows); err != nil {
			return errors.Wrap(errors.CodeStorageSaveFailed, "prune history", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.CodeStorageSaveFailed, "commit history entry", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	s.logger.Debug("saved history entry", "op", entry.Operation, "patch", entry.Patch, "request_id", entry.RequestID)
	return nil
}

// ListHistory returns entries newest first. limit <= 0 returns all entries.
func (s *SQLiteStore) ListHistory(limit int) ([]*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, request_id, operation, patch, instance_path, source, outcome, error, at
		FROM patch_history
		ORDER BY id DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.QueryFailed("query history", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.QueryFailed("iterate history rows", err)
	}

	return entries, nil
}

// CountHistory returns the number of stored entries.
func (s *SQLiteStore) CountHistory() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM patch_history").Scan(&n); err != nil {
		return 0, errors.QueryFailed("count history", err)
	}
	return n, nil
}

func scanHistoryRow(rows *sql.Rows) (*HistoryEntry, error) {
	var (
		entry HistoryEntry
		at    string
	)
	err := rows.Scan(
		&entry.ID,
		&entry.RequestID,
		&entry.Operation,
		&entry.Patch,
		&entry.InstancePath,
		&entry.Source,
		&entry.Outcome,
		&entry.Error,
		&at,
	)
	if err != nil {
		return nil, errors.QueryFailed("scan history row", err)
	}

	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, errors.QueryFailed("parse history timestamp", err)
	}
	entry.At = t
	return &entry, nil
}
