package telemetry

import (
	"maps"
	"slices"
	"time"
)

// StatePatch carries the vehicle state fields present in an envelope
type StatePatch struct {
	Armed              *bool
	Mode               *string
	SystemStatus       *string
	HeartbeatTimestamp *int64
}

type GlobalPatch struct {
	Latitude          *float64
	Longitude         *float64
	RelativeAltitude  *float64
	GroundVelocity    *float64
	SatellitesVisible *int
}

type BatteryPatch struct {
	Voltage    *float64
	Current    *float64
	Percentage *float64
}

type RTKPatch struct {
	FixType     *int
	BaselineAge *float64
	BaseLinked  *bool
}

type MissionPatch struct {
	TotalWaypoints     *int
	CurrentWaypointSeq *int
	Status             *string
	ProgressPercent    *float64
}

// ServoPatch merges ChannelPWM key by key; every other field is replaced as a whole.
type ServoPatch struct {
	ServoID              *int
	Active               *bool
	LastCommandTimestamp *int64
	PWMValues            []int
	ChannelPWM           map[int]int
}

type NetworkPatch struct {
	ConnectionType     *ConnectionType
	WifiSignalStrength *int
	WifiRSSI           *int
	InterfaceName      *string
	WifiConnected      *bool
	LoraConnected      *bool
}

// Envelope is a partial, category-keyed telemetry patch. A nil category is
// left untouched by Apply; within a category only non-nil fields overwrite.
type Envelope struct {
	Timestamp int64 // Unix milliseconds; zero means "now" at apply time
	State     *StatePatch
	Global    *GlobalPatch
	Battery   *BatteryPatch
	RTK       *RTKPatch
	Mission   *MissionPatch
	Servo     *ServoPatch
	Network   *NetworkPatch
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}

// IsEmpty reports whether the envelope carries no category at all
func (e Envelope) IsEmpty() bool {
	return e.State == nil && e.Global == nil && e.Battery == nil && e.RTK == nil &&
		e.Mission == nil && e.Servo == nil && e.Network == nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Apply merges e into t category by category and stamps LastMessageTimestamp.
func (t *Telemetry) Apply(e Envelope) {
	if p := e.State; p != nil {
		set(&t.State.Armed, p.Armed)
		set(&t.State.Mode, p.Mode)
		set(&t.State.SystemStatus, p.SystemStatus)
		set(&t.State.HeartbeatTimestamp, p.HeartbeatTimestamp)
	}

	if p := e.Global; p != nil {
		set(&t.Global.Latitude, p.Latitude)
		set(&t.Global.Longitude, p.Longitude)
		set(&t.Global.RelativeAltitude, p.RelativeAltitude)
		set(&t.Global.GroundVelocity, p.GroundVelocity)
		set(&t.Global.SatellitesVisible, p.SatellitesVisible)
	}

	if p := e.Battery; p != nil {
		set(&t.Battery.Voltage, p.Voltage)
		set(&t.Battery.Current, p.Current)
		set(&t.Battery.Percentage, p.Percentage)
	}

	if p := e.RTK; p != nil {
		set(&t.RTK.FixType, p.FixType)
		set(&t.RTK.BaselineAge, p.BaselineAge)
		set(&t.RTK.BaseLinked, p.BaseLinked)
	}

	if p := e.Mission; p != nil {
		set(&t.Mission.TotalWaypoints, p.TotalWaypoints)
		set(&t.Mission.CurrentWaypointSeq, p.CurrentWaypointSeq)
		set(&t.Mission.Status, p.Status)
		set(&t.Mission.ProgressPercent, p.ProgressPercent)
	}

	if p := e.Servo; p != nil {
		set(&t.Servo.ServoID, p.ServoID)
		set(&t.Servo.Active, p.Active)
		set(&t.Servo.LastCommandTimestamp, p.LastCommandTimestamp)
		if p.PWMValues != nil {
			t.Servo.PWMValues = slices.Clone(p.PWMValues)
		}
		if len(p.ChannelPWM) > 0 {
			// never write into a map a published snapshot may share
			merged := maps.Clone(t.Servo.ChannelPWM)
			if merged == nil {
				merged = make(map[int]int, len(p.ChannelPWM))
			}
			maps.Copy(merged, p.ChannelPWM)
			t.Servo.ChannelPWM = merged
		}
	}

	if p := e.Network; p != nil {
		set(&t.Network.ConnectionType, p.ConnectionType)
		set(&t.Network.WifiSignalStrength, p.WifiSignalStrength)
		set(&t.Network.WifiRSSI, p.WifiRSSI)
		set(&t.Network.InterfaceName, p.InterfaceName)
		set(&t.Network.WifiConnected, p.WifiConnected)
		set(&t.Network.LoraConnected, p.LoraConnected)
	}

	ts := e.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	t.LastMessageTimestamp = &ts
}
