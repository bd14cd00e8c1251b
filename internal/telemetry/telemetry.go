package telemetry

import (
	"maps"
	"slices"
)

const (
	ConnectionNone     ConnectionType = "none"
	ConnectionWifi     ConnectionType = "wifi"
	ConnectionEthernet ConnectionType = "ethernet"
)

// Mission status labels reported by the bridge
const (
	MissionIdle   = "IDLE"
	MissionActive = "ACTIVE"
)

const (
	ModeUnknown          = "UNKNOWN"
	SystemStatusStandby  = "STANDBY"
	SystemStatusArmed    = "ARMED"
	SystemStatusDisarmed = "DISARMED"
	SystemStatusUnknown  = "UNKNOWN"

	// NoSignalRSSI is the Wi-Fi RSSI reported when no signal is known
	NoSignalRSSI = -100
)

type ConnectionType string

// VehicleState is the armed state and flight mode of the rover
type VehicleState struct {
	Armed              bool   `json:"armed"`
	Mode               string `json:"mode"`
	SystemStatus       string `json:"systemStatus"`
	HeartbeatTimestamp int64  `json:"heartbeatTimestamp"` // Unix milliseconds
}

// GlobalPosition is the rover GNSS position
type GlobalPosition struct {
	Latitude          float64 `json:"latitude"`          // Degrees
	Longitude         float64 `json:"longitude"`         // Degrees
	RelativeAltitude  float64 `json:"relativeAltitude"`  // Meters
	GroundVelocity    float64 `json:"groundVelocity"`    // m/s
	SatellitesVisible int     `json:"satellitesVisible"` // Count
}

type Battery struct {
	Voltage    float64 `json:"voltage"`    // V
	Current    float64 `json:"current"`    // A
	Percentage float64 `json:"percentage"` // 0-100
}

// RTK is the GNSS correction state. FixType uses the GPS fix-type scale (0-6)
// when reported by the bridge format and a 0-4 scale when derived from a
// status label in the flat format.
type RTK struct {
	FixType     int     `json:"fixType"`
	BaselineAge float64 `json:"baselineAgeSeconds"`
	BaseLinked  bool    `json:"baseLinked"`
}

type Mission struct {
	TotalWaypoints     int     `json:"totalWaypoints"`
	CurrentWaypointSeq int     `json:"currentWaypointSeq"` // 1-indexed, 0 when none
	Status             string  `json:"status"`
	ProgressPercent    float64 `json:"progressPercent"`
}

type Servo struct {
	ServoID              int         `json:"servoId"`
	Active               bool        `json:"active"`
	LastCommandTimestamp int64       `json:"lastCommandTimestamp"` // Unix milliseconds
	PWMValues            []int       `json:"pwmValues,omitempty"`
	ChannelPWM           map[int]int `json:"perChannelPwm,omitempty"`
}

type Network struct {
	ConnectionType     ConnectionType `json:"connectionType"`
	WifiSignalStrength int            `json:"wifiSignalStrength"` // 0-4 bars
	WifiRSSI           int            `json:"wifiRssi"`           // dBm
	InterfaceName      string         `json:"interfaceName"`
	WifiConnected      bool           `json:"wifiConnected"`
	LoraConnected      bool           `json:"loraConnected"`
}

// Telemetry is the canonical, always fully populated rover telemetry snapshot
type Telemetry struct {
	State                VehicleState   `json:"vehicleState"`
	Global               GlobalPosition `json:"globalPosition"`
	Battery              Battery        `json:"battery"`
	RTK                  RTK            `json:"rtk"`
	Mission              Mission        `json:"mission"`
	Servo                Servo          `json:"servo"`
	Network              Network        `json:"network"`
	LastMessageTimestamp *int64         `json:"lastMessageTimestamp"` // Unix milliseconds, nil until the first envelope
}

// Default returns a snapshot with every field set to its default value
func Default() Telemetry {
	return Telemetry{
		State: VehicleState{
			Mode:         ModeUnknown,
			SystemStatus: SystemStatusStandby,
		},
		Mission: Mission{
			Status: MissionIdle,
		},
		Network: Network{
			ConnectionType: ConnectionNone,
			WifiRSSI:       NoSignalRSSI,
		},
	}
}

// Clone returns a deep copy that shares no memory with t
func (t *Telemetry) Clone() *Telemetry {
	c := *t
	c.Servo.PWMValues = slices.Clone(t.Servo.PWMValues)
	c.Servo.ChannelPWM = maps.Clone(t.Servo.ChannelPWM)
	if t.LastMessageTimestamp != nil {
		ts := *t.LastMessageTimestamp
		c.LastMessageTimestamp = &ts
	}
	return &c
}
