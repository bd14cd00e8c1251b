package storage

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestExportCSV(t *testing.T) {
	testCases := []struct {
		name    string
		entries []LogEntry
		want    string
		wantErr error
	}{
		{
			name:    "empty",
			wantErr: ErrNoEntries,
		},
		{
			name: "full entry",
			entries: []LogEntry{
				{
					Timestamp:   "2024-05-01T10:00:00.000Z",
					Lat:         ptr(-35.36326),
					Lng:         ptr(149.16523),
					WaypointID:  ptr(3),
					Status:      ptr("reached"),
					ServoAction: ptr("ON"),
					Event:       "Reached waypoint 3",
				},
			},
			want: "timestamp,latitude,longitude,waypoint,status,servo_action,event\n" +
				`2024-05-01T10:00:00.000Z,-35.36326000,149.16523000,3,reached,ON,"Reached waypoint 3"`,
		},
		{
			name: "missing values and quotes",
			entries: []LogEntry{
				{Timestamp: "t1", Event: `operator said "go"`},
				{Timestamp: "t2", Event: "a, b"},
			},
			want: "timestamp,latitude,longitude,waypoint,status,servo_action,event\n" +
				`t1,,,,,,"operator said ""go"""` + "\n" +
				`t2,,,,,,"a, b"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := ExportCSV(&buf, tc.entries)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if got := buf.String(); got != tc.want {
				t.Errorf("expected\n%s\ngot\n%s", tc.want, got)
			}
		})
	}
}

func TestExportFileName(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 2, 3, 456_000_000, time.UTC)
	if got, want := ExportFileName(ts), "mission_log_2024-05-01T10-02-03-456Z.csv"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
