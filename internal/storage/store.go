package storage

import (
	"context"
	"errors"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNoActiveLog is returned by AddEntry when no log is in progress
	ErrNoActiveLog = errors.New("no active mission log")

	// ErrInvalidStatus is returned by SetActiveStatus for a status other than
	// StatusCompleted or StatusIncomplete
	ErrInvalidStatus = errors.New("invalid mission log status")
)

// Store provides an interface for persisting mission logs and their entries.
// At most one log is active at a time; entries are appended to the active log.
// All operations that write to the database should be considered atomic.
type Store interface {
	// CreateLog starts a new log and makes it the active one. A previously
	// active log that is still in progress is marked StatusIncomplete.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - name: Log name. DefaultLogName is used when empty
	//
	// Returns:
	//   - log: The created log, with no entries
	//   - error: If creation fails or context is cancelled
	CreateLog(ctx context.Context, name string) (log *MissionLog, err error)

	// AddEntry appends an entry to the active log. An empty timestamp is set
	// to the current time.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - entry: The entry to append
	//
	// Returns:
	//   - error: ErrNoActiveLog if there is no active log, or if the write fails
	AddEntry(ctx context.Context, entry LogEntry) error

	// SetActiveStatus finishes the active log with status and clears the
	// active log. It does nothing if there is no active log.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - status: StatusCompleted or StatusIncomplete
	//
	// Returns:
	//   - error: ErrInvalidStatus for any other status, or if the write fails
	SetActiveStatus(ctx context.Context, status LogStatus) error

	// Logs returns all logs with their entries, most recent first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//
	// Returns:
	//   - logs: Slice of pointers to log data
	//   - error: If retrieval fails or context is cancelled
	Logs(ctx context.Context) (logs []*MissionLog, err error)

	// ActiveEntries returns the entries of the active log. Without an active
	// in-progress log it falls back to the most recent log, and to an empty
	// slice when there are no logs.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//
	// Returns:
	//   - entries: Entries in insertion order
	//   - error: If retrieval fails or context is cancelled
	ActiveEntries(ctx context.Context) (entries []LogEntry, err error)

	// Clear removes every log and clears the active log.
	Clear(ctx context.Context) error

	// Close closes the store and its database connections.
	Close() error
}
