package storage

import (
	"time"

	"github.com/google/uuid"
)

// HistoryRecorder turns operation outcomes into history entries for one
// session directory.
type HistoryRecorder struct {
	store        *SQLiteStore
	instancePath string
	maxRows      int

	now   func() time.Time
	newID func() string
}

// NewHistoryRecorder returns a recorder writing to store.
func NewHistoryRecorder(store *SQLiteStore, instancePath string, maxRows int) *HistoryRecorder {
	return &HistoryRecorder{
		store:        store,
		instancePath: instancePath,
		maxRows:      maxRows,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Record stores one operation. opErr is the operation's failure, if any.
// The returned error concerns the write itself.
func (r *HistoryRecorder) Record(operation, patch, source string, opErr error) error {
	entry := &HistoryEntry{
		RequestID:    r.newID(),
		Operation:    operation,
		Patch:        patch,
		InstancePath: r.instancePath,
		Source:       source,
		Outcome:      OutcomeOK,
		At:           r.now(),
	}
	if opErr != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = opErr.Error()
	}
	return r.store.SaveAndPruneHistory(entry, r.maxRows)
}
