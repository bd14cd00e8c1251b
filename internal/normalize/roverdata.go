package normalize

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/roman-kulish/rover-groundlink/internal/telemetry"
)

// maxServoChannels is the number of servoN_pwm keys inspected in servo_output
const maxServoChannels = 16

// RoverData translates a flat rover_data payload into an envelope. Keys are
// heterogeneous: scalars for state and battery, a position object, several
// RTK representations, waypoint progress counters, servo_output and network.
// It reports false when the payload carries no recognized key.
func RoverData(raw []byte) (telemetry.Envelope, bool) {
	data, ok := decodeObject(raw)
	if !ok {
		return telemetry.Envelope{}, false
	}
	return roverDataEnvelope(data, time.Now().UnixMilli())
}

func roverDataEnvelope(data object, now int64) (telemetry.Envelope, bool) {
	env := telemetry.Envelope{Timestamp: now}

	if data.truthy("mode") || data.truthy("status") || data.has("last_heartbeat") {
		status := data.stringOr("status", telemetry.SystemStatusUnknown)

		heartbeat := now
		if seconds, ok := data.num("last_heartbeat"); ok && seconds != 0 {
			heartbeat = int64(math.Floor(seconds * 1000))
		}

		env.State = &telemetry.StatePatch{
			Armed:              telemetry.Ptr(strings.ToLower(status) == "armed"),
			Mode:               telemetry.Ptr(data.stringOr("mode", telemetry.ModeUnknown)),
			SystemStatus:       telemetry.Ptr(upper(status)),
			HeartbeatTimestamp: telemetry.Ptr(heartbeat),
		}
	}

	if position, ok := data.child("position"); ok {
		env.Global = &telemetry.GlobalPatch{
			Latitude:  telemetry.Ptr(position.floatOr("lat", 0)),
			Longitude: telemetry.Ptr(position.floatOr("lng", 0)),
			// the flat format has no altitude; the bridge reports distance to the next waypoint here
			RelativeAltitude:  telemetry.Ptr(data.floatOr("distanceToNext", 0)),
			GroundVelocity:    telemetry.Ptr(0.0),
			SatellitesVisible: telemetry.Ptr(data.intOr("satellites_visible", 0)),
		}
	}

	if data.has("battery") || data.has("voltage") || data.has("current") {
		env.Battery = &telemetry.BatteryPatch{
			Percentage: telemetry.Ptr(data.floatOr("battery", 0)),
			Voltage:    telemetry.Ptr(data.floatOr("voltage", 0)),
			Current:    telemetry.Ptr(data.floatOr("current", 0)),
		}
	}

	if data.truthy("rtk_status") || data.has("fix_type") || data.has("rtk_fix_type") {
		fixType := resolveFixType(data)

		baselineAge := data.floatOr("baseline_age", 0)
		if f, ok := data.num("rtk_baseline_age"); ok {
			baselineAge = f
		}

		baseLinked := fixType >= 5
		if b, ok := data.boolean("base_linked"); ok {
			baseLinked = b
		}
		if b, ok := data.boolean("rtk_base_linked"); ok {
			baseLinked = b
		}

		env.RTK = &telemetry.RTKPatch{
			FixType:     telemetry.Ptr(fixType),
			BaselineAge: telemetry.Ptr(baselineAge),
			BaseLinked:  telemetry.Ptr(baseLinked),
		}
	}

	if mission, ok := missionProgress(data); ok {
		env.Mission = mission
	}

	if output, ok := data.child("servo_output"); ok {
		servo := &telemetry.ServoPatch{
			ServoID:              telemetry.Ptr(0),
			Active:               telemetry.Ptr(false),
			LastCommandTimestamp: telemetry.Ptr(int64(0)),
		}

		if channels, ok := output.ints("channels"); ok {
			servo.PWMValues = channels
			for i := 1; i <= maxServoChannels; i++ {
				if pwm, ok := output.num(fmt.Sprintf("servo%d_pwm", i)); ok {
					if servo.ChannelPWM == nil {
						servo.ChannelPWM = make(map[int]int)
					}
					servo.ChannelPWM[i] = int(pwm)
				}
			}
		}

		env.Servo = servo
	}

	if network, ok := data.child("network"); ok {
		env.Network = &telemetry.NetworkPatch{
			ConnectionType:     telemetry.Ptr(telemetry.ConnectionType(network.nonEmptyOr("connection_type", string(telemetry.ConnectionNone)))),
			WifiSignalStrength: telemetry.Ptr(network.intOr("wifi_signal_strength", 0)),
			WifiRSSI:           telemetry.Ptr(network.intOr("wifi_rssi", telemetry.NoSignalRSSI)),
			InterfaceName:      telemetry.Ptr(network.nonEmptyOr("interface", "")),
			WifiConnected:      telemetry.Ptr(network.truthy("wifi_connected")),
			LoraConnected:      telemetry.Ptr(network.truthy("lora_connected")),
		}
	}

	return env, !env.IsEmpty()
}

// missionProgress infers waypoint progress from activeWaypointIndex,
// completedWaypointIds and current_waypoint_id.
func missionProgress(data object) (*telemetry.MissionPatch, bool) {
	activeIndex := -1
	if f, ok := data.num("activeWaypointIndex"); ok && f >= 0 {
		activeIndex = int(f)
	}
	completed := data.length("completedWaypointIds")

	if activeIndex < 0 && completed == 0 {
		return nil, false
	}

	current := 0
	if activeIndex >= 0 {
		current = activeIndex + 1
	}
	total := max(current, completed, data.intOr("current_waypoint_id", 0))

	var progress float64
	if total > 0 {
		progress = float64(current) / float64(total) * 100
	}

	status := telemetry.MissionIdle
	if current > 0 {
		status = telemetry.MissionActive
	}

	return &telemetry.MissionPatch{
		TotalWaypoints:     telemetry.Ptr(total),
		CurrentWaypointSeq: telemetry.Ptr(current),
		Status:             telemetry.Ptr(status),
		ProgressPercent:    telemetry.Ptr(progress),
	}, true
}
