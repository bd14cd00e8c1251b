package command

import "github.com/roman-kulish/rover-groundlink/internal/geo"

// Response is the envelope every bridge endpoint answers with
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Waypoint is a mission item as exchanged with the bridge. Current and
// Autocontinue are 0 or 1 on the wire.
type Waypoint struct {
	ID           int     `json:"id"`
	Command      string  `json:"command"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Alt          float64 `json:"alt"`
	Frame        int     `json:"frame"`
	Current      int     `json:"current"`
	Autocontinue int     `json:"autocontinue"`
	Param1       float64 `json:"param1"`
	Param2       float64 `json:"param2"`
	Param3       float64 `json:"param3"`
	Param4       float64 `json:"param4"`
}

// MissionResponse is returned by the mission download endpoint. Waypoint
// coordinates are passed through unchecked.
type MissionResponse struct {
	Response
	Waypoints []Waypoint `json:"waypoints,omitempty"`
}

// RTKStatus describes the NTRIP correction stream
type RTKStatus struct {
	Response
	Running    bool   `json:"running"`
	Caster     string `json:"caster,omitempty"`
	TotalBytes uint64 `json:"total_bytes"`
}

// Point returns the waypoint position
func (w Waypoint) Point() geo.Point {
	return geo.Point{Lat: w.Lat, Lng: w.Lng}
}

// DistancesForMission returns a copy of waypoints together with the distance
// in meters of each leg. Mission params are left as they are; param4 carries
// command semantics and is never used to hold a distance.
func DistancesForMission(waypoints []Waypoint) ([]Waypoint, []float64) {
	if len(waypoints) == 0 {
		return nil, nil
	}

	out := make([]Waypoint, len(waypoints))
	copy(out, waypoints)

	points := make([]geo.Point, len(out))
	for i, wp := range out {
		points[i] = wp.Point()
	}
	return out, geo.LegDistances(points)
}
