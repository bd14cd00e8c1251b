package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrNoEntries is returned by ExportCSV when there is nothing to export
var ErrNoEntries = errors.New("no mission log entries to export")

var csvHeader = []string{"timestamp", "latitude", "longitude", "waypoint", "status", "servo_action", "event"}

// ExportCSV writes entries as CSV. Coordinates have 8 decimals, missing
// values are left empty and the event column is always quoted.
func ExportCSV(w io.Writer, entries []LogEntry) error {
	if len(entries) == 0 {
		return ErrNoEntries
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(csvHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, e := range entries {
		row := []string{
			e.Timestamp,
			formatCoord(e.Lat),
			formatCoord(e.Lng),
			formatOptional(e.WaypointID, strconv.Itoa),
			deref(e.Status),
			deref(e.ServoAction),
			`"` + strings.ReplaceAll(e.Event, `"`, `""`) + `"`,
		}
		if _, err := bw.WriteString("\n" + strings.Join(row, ",")); err != nil {
			return fmt.Errorf("writing entry: %w", err)
		}
	}

	return bw.Flush()
}

// ExportFileName returns the default export file name for t
func ExportFileName(t time.Time) string {
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format("2006-01-02T15:04:05.000Z"))
	return "mission_log_" + stamp + ".csv"
}

func formatCoord(v *float64) string {
	return formatOptional(v, func(f float64) string {
		return strconv.FormatFloat(f, 'f', 8, 64)
	})
}

func formatOptional[T any](v *T, format func(T) string) string {
	if v == nil {
		return ""
	}
	return format(*v)
}
