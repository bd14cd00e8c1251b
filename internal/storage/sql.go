package storage

import (
	_ "embed"
)

const (
	insertLogSQL = `
INSERT INTO mission_logs (id,
                          name,
                          status,
                          created_at,
                          active)
VALUES (?, ?, ?, ?, 1)`

	abandonActiveLogSQL = `
UPDATE mission_logs
SET status = ?
WHERE active = 1
  AND status = ?`

	deactivateLogsSQL = `
UPDATE mission_logs
SET active = 0
WHERE active = 1`

	selectActiveLogIDSQL = `
SELECT id
FROM mission_logs
WHERE active = 1
  AND status = ?
LIMIT 1`

	selectLatestLogIDSQL = `
SELECT id
FROM mission_logs
ORDER BY created_at DESC, rowid DESC
LIMIT 1`

	selectLogsSQL = `
SELECT 
    id, 
    name, 
    status, 
    created_at 
FROM mission_logs
ORDER BY created_at DESC, rowid DESC`

	selectEntriesSQL = `
SELECT 
    log_id,
    timestamp,
    latitude,
    longitude,
    waypoint_id,
    status,
    servo_action,
    event
FROM log_entries
ORDER BY id`

	selectLogEntriesSQL = `
SELECT 
    log_id,
    timestamp,
    latitude,
    longitude,
    waypoint_id,
    status,
    servo_action,
    event
FROM log_entries
WHERE 
    log_id = ?
ORDER BY id`

	insertEntrySQL = `
INSERT INTO log_entries (log_id,
                         timestamp,
                         latitude,
                         longitude,
                         waypoint_id,
                         status,
                         servo_action,
                         event)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	deleteEntriesSQL = `DELETE FROM log_entries`

	deleteLogsSQL = `DELETE FROM mission_logs`
)

//go:embed schema.sql
var initSchemaSQL string
