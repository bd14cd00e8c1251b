package storage

import (
	"database/sql"
	"errors"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toEntryData(logID string, e LogEntry) *entryData {
	return &entryData{
		LogID:     logID,
		Timestamp: e.Timestamp,
		Event:     e.Event,

		Latitude: sql.NullFloat64{
			Float64: deref(e.Lat),
			Valid:   e.Lat != nil,
		},
		Longitude: sql.NullFloat64{
			Float64: deref(e.Lng),
			Valid:   e.Lng != nil,
		},
		WaypointID: sql.NullInt64{
			Int64: int64(deref(e.WaypointID)),
			Valid: e.WaypointID != nil,
		},
		Status: sql.NullString{
			String: deref(e.Status),
			Valid:  e.Status != nil,
		},
		ServoAction: sql.NullString{
			String: deref(e.ServoAction),
			Valid:  e.ServoAction != nil,
		},
	}
}

func (d *entryData) entry() LogEntry {
	e := LogEntry{
		Timestamp: d.Timestamp,
		Event:     d.Event,
	}
	if d.Latitude.Valid {
		e.Lat = &d.Latitude.Float64
	}
	if d.Longitude.Valid {
		e.Lng = &d.Longitude.Float64
	}
	if d.WaypointID.Valid {
		id := int(d.WaypointID.Int64)
		e.WaypointID = &id
	}
	if d.Status.Valid {
		e.Status = &d.Status.String
	}
	if d.ServoAction.Valid {
		e.ServoAction = &d.ServoAction.String
	}
	return e
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*entryData, error) {
	var d entryData
	err := row.Scan(
		&d.LogID,
		&d.Timestamp,
		&d.Latitude,
		&d.Longitude,
		&d.WaypointID,
		&d.Status,
		&d.ServoAction,
		&d.Event,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
