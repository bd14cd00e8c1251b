package normalize

import (
	"time"

	"github.com/roman-kulish/rover-groundlink/internal/telemetry"
)

// Bridge translates a bridge-format telemetry payload, made of nested
// category objects (state, position, global, rtk, battery, mission), into an
// envelope. It reports false when the payload carries no recognized category.
func Bridge(raw []byte) (telemetry.Envelope, bool) {
	data, ok := decodeObject(raw)
	if !ok {
		return telemetry.Envelope{}, false
	}
	return bridgeEnvelope(data, time.Now().UnixMilli())
}

func bridgeEnvelope(data object, now int64) (telemetry.Envelope, bool) {
	env := telemetry.Envelope{Timestamp: now}

	if state, ok := data.child("state"); ok {
		heartbeat := now
		if f, ok := state.num("heartbeat_ts"); ok {
			heartbeat = int64(f)
		}

		env.State = &telemetry.StatePatch{
			Armed:              telemetry.Ptr(state.truthy("armed")),
			Mode:               telemetry.Ptr(state.stringOr("mode", telemetry.ModeUnknown)),
			SystemStatus:       telemetry.Ptr(state.stringOr("system_status", telemetry.SystemStatusUnknown)),
			HeartbeatTimestamp: telemetry.Ptr(heartbeat),
		}
	}

	var lat, lon, alt float64
	if position, ok := data.child("position"); ok {
		lat = position.floatOr("latitude", 0)
		lon = position.floatOr("longitude", 0)
		alt = position.floatOr("altitude", 0)

		env.Global = &telemetry.GlobalPatch{
			Latitude:          telemetry.Ptr(lat),
			Longitude:         telemetry.Ptr(lon),
			RelativeAltitude:  telemetry.Ptr(alt),
			GroundVelocity:    telemetry.Ptr(0.0),
			SatellitesVisible: telemetry.Ptr(0),
		}
	}

	// global overrides whatever position supplied
	if global, ok := data.child("global"); ok {
		env.Global = &telemetry.GlobalPatch{
			Latitude:          telemetry.Ptr(global.floatOr("latitude", lat)),
			Longitude:         telemetry.Ptr(global.floatOr("longitude", lon)),
			RelativeAltitude:  telemetry.Ptr(global.floatOr("altitude", alt)),
			GroundVelocity:    telemetry.Ptr(global.floatOr("vel", 0)),
			SatellitesVisible: telemetry.Ptr(global.intOr("satellites_visible", 0)),
		}
	}

	if rtk, ok := data.child("rtk"); ok {
		env.RTK = &telemetry.RTKPatch{
			FixType:     telemetry.Ptr(rtk.intOr("fix_type", 0)),
			BaselineAge: telemetry.Ptr(rtk.floatOr("baseline_age", 0)),
			BaseLinked:  telemetry.Ptr(rtk.truthy("base_linked")),
		}
	}

	if battery, ok := data.child("battery"); ok {
		env.Battery = &telemetry.BatteryPatch{
			Voltage:    telemetry.Ptr(battery.floatOr("voltage", 0)),
			Current:    telemetry.Ptr(battery.floatOr("current", 0)),
			Percentage: telemetry.Ptr(battery.floatOr("percentage", 0)),
		}
	}

	if mission, ok := data.child("mission"); ok {
		env.Mission = &telemetry.MissionPatch{
			TotalWaypoints:     telemetry.Ptr(mission.intOr("total_wp", 0)),
			CurrentWaypointSeq: telemetry.Ptr(mission.intOr("current_wp", 0)),
			Status:             telemetry.Ptr(mission.stringOr("status", telemetry.MissionIdle)),
			ProgressPercent:    telemetry.Ptr(mission.floatOr("progress_pct", 0)),
		}
	}

	return env, !env.IsEmpty()
}
