package command

import (
	"math"
	"testing"

	"github.com/roman-kulish/rover-groundlink/internal/geo"
)

func TestDistancesForMission(t *testing.T) {
	mission := []Waypoint{
		{ID: 1, Lat: 0, Lng: 0, Param4: 7},
		{ID: 2, Lat: 0, Lng: 0.001, Param4: 7},
		{ID: 3, Lat: 0.001, Lng: 0.001, Param4: 7},
	}

	out, legs := DistancesForMission(mission)
	if len(out) != 3 || len(legs) != 3 {
		t.Fatalf("expected 3 waypoints and 3 legs, got %d and %d", len(out), len(legs))
	}
	if legs[0] != 0 {
		t.Errorf("first leg should be zero, got %f", legs[0])
	}
	leg := geo.EarthRadius * 0.001 * math.Pi / 180
	for i := 1; i < 3; i++ {
		if math.Abs(legs[i]-leg) > 1e-6 {
			t.Errorf("leg %d: expected %.3fm, got %.3fm", i, leg, legs[i])
		}
	}

	out[0].Lat = 50
	if mission[0].Lat != 0 {
		t.Error("result must be a copy")
	}
	for _, wp := range out {
		if wp.Param4 != 7 {
			t.Errorf("params must be preserved, got %+v", wp)
		}
	}

	if out, legs := DistancesForMission(nil); out != nil || legs != nil {
		t.Error("expected nil results for an empty mission")
	}
}
