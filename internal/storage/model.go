package storage

import (
	"database/sql"
	"time"
)

// LogStatus is the lifecycle state of a mission log
type LogStatus string

const (
	StatusInProgress LogStatus = "In Progress"
	StatusCompleted  LogStatus = "Completed"
	StatusIncomplete LogStatus = "Incomplete"
)

// DefaultLogName is used when a log is created without a name
const DefaultLogName = "Unnamed Mission"

// MissionLog is a named, timestamped list of mission narration entries
type MissionLog struct {
	ID        string
	Name      string
	Status    LogStatus
	Timestamp time.Time
	Entries   []LogEntry
}

// LogEntry is a single line of mission narration. Timestamp is kept as the
// ISO-8601 text it arrived with.
type LogEntry struct {
	Timestamp   string
	Lat         *float64
	Lng         *float64
	WaypointID  *int
	Status      *string
	ServoAction *string
	Event       string
}

type entryData struct {
	LogID       string
	Timestamp   string
	Latitude    sql.NullFloat64
	Longitude   sql.NullFloat64
	WaypointID  sql.NullInt64
	Status      sql.NullString
	ServoAction sql.NullString
	Event       string
}
