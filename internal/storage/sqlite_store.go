package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error

	now func() time.Time
}

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore creates a new store backed by the Sqlite database at dbPath.
// Connections are opened and the schema is initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath, now: time.Now}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

// getReadDB opens the read-only connection. The schema is created through
// the write connection first, so reads work on a fresh database file.
func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	if _, err := s.getWriteDB(); err != nil {
		return nil, err
	}

	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateLog(ctx context.Context, name string) (log *MissionLog, err error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultLogName
	}

	log = &MissionLog{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusInProgress,
		Timestamp: s.now().UTC(),
	}

	db, err := s.getWriteDB()
	if err != nil {
		return nil, fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, abandonActiveLogSQL, StatusIncomplete, StatusInProgress); err != nil {
		return nil, fmt.Errorf("abandoning active log: %w", err)
	}
	if _, err = tx.ExecContext(ctx, deactivateLogsSQL); err != nil {
		return nil, fmt.Errorf("deactivating logs: %w", err)
	}
	if _, err = tx.ExecContext(ctx, insertLogSQL, log.ID, log.Name, log.Status, log.Timestamp.UnixMilli()); err != nil {
		return nil, fmt.Errorf("inserting log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return log, nil
}

func (s *SqliteStore) AddEntry(ctx context.Context, entry LogEntry) (err error) {
	if entry.Timestamp == "" {
		entry.Timestamp = s.now().UTC().Format(time.RFC3339Nano)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	var logID string
	if err = tx.QueryRowContext(ctx, selectActiveLogIDSQL, StatusInProgress).Scan(&logID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoActiveLog
		}
		return fmt.Errorf("selecting active log: %w", err)
	}

	data := toEntryData(logID, entry)
	_, err = tx.ExecContext(ctx, insertEntrySQL,
		data.LogID,
		data.Timestamp,
		data.Latitude,
		data.Longitude,
		data.WaypointID,
		data.Status,
		data.ServoAction,
		data.Event,
	)
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) SetActiveStatus(ctx context.Context, status LogStatus) (err error) {
	if status != StatusCompleted && status != StatusIncomplete {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, abandonActiveLogSQL, status, StatusInProgress); err != nil {
		return fmt.Errorf("updating active log: %w", err)
	}
	if _, err = tx.ExecContext(ctx, deactivateLogsSQL); err != nil {
		return fmt.Errorf("deactivating logs: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) Logs(ctx context.Context) (logs []*MissionLog, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectLogsSQL)
	if err != nil {
		return nil, fmt.Errorf("selecting logs: %w", err)
	}
	defer closeWithError(rows, &err)

	byID := make(map[string]*MissionLog)
	for rows.Next() {
		var (
			log       MissionLog
			createdAt int64
		)
		if err = rows.Scan(&log.ID, &log.Name, &log.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning log: %w", err)
		}
		log.Timestamp = time.UnixMilli(createdAt).UTC()

		logs = append(logs, &log)
		byID[log.ID] = &log
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating logs: %w", err)
	}

	entries, err := db.QueryContext(ctx, selectEntriesSQL)
	if err != nil {
		return nil, fmt.Errorf("selecting entries: %w", err)
	}
	defer closeWithError(entries, &err)

	for entries.Next() {
		var data *entryData
		if data, err = scanEntry(entries); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		if log, ok := byID[data.LogID]; ok {
			log.Entries = append(log.Entries, data.entry())
		}
	}
	if err = entries.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}

	return logs, nil
}

func (s *SqliteStore) ActiveEntries(ctx context.Context) (entries []LogEntry, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	var logID string
	err = db.QueryRowContext(ctx, selectActiveLogIDSQL, StatusInProgress).Scan(&logID)
	if errors.Is(err, sql.ErrNoRows) {
		err = db.QueryRowContext(ctx, selectLatestLogIDSQL).Scan(&logID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return []LogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting log: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectLogEntriesSQL, logID)
	if err != nil {
		return nil, fmt.Errorf("selecting entries: %w", err)
	}
	defer closeWithError(rows, &err)

	entries = []LogEntry{}
	for rows.Next() {
		var data *entryData
		if data, err = scanEntry(rows); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, data.entry())
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}

	return entries, nil
}

func (s *SqliteStore) Clear(ctx context.Context) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, deleteEntriesSQL); err != nil {
		return fmt.Errorf("deleting entries: %w", err)
	}
	if _, err = tx.ExecContext(ctx, deleteLogsSQL); err != nil {
		return fmt.Errorf("deleting logs: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
