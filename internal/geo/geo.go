package geo

import (
	"math"

	"github.com/tkrajina/gpxgo/gpx"
)

// EarthRadius is the Earth radius in meters. It is taken from
// gpx.HaversineDistance (one radian of arc along the equator) so that
// Destination and Distance agree.
var EarthRadius = gpx.HaversineDistance(0, 0, 0, 180/math.Pi)

// Point is a WGS84 coordinate in degrees
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Distance returns the great-circle distance between two points in meters
func Distance(p1, p2 Point) float64 {
	return gpx.HaversineDistance(p1.Lat, p1.Lng, p2.Lat, p2.Lng)
}

// Bearing returns the initial bearing from p1 to p2 in degrees, normalized to [0, 360).
func Bearing(p1, p2 Point) float64 {
	lat1 := toRadians(p1.Lat)
	lat2 := toRadians(p2.Lat)
	dLng := toRadians(p2.Lng - p1.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)

	return math.Mod(toDegrees(math.Atan2(y, x))+360, 360)
}

// Destination returns the point reached by travelling distance meters from
// start along the given bearing (degrees).
func Destination(start Point, bearing, distance float64) Point {
	lat1 := toRadians(start.Lat)
	lng1 := toRadians(start.Lng)
	brng := toRadians(bearing)
	delta := distance / EarthRadius

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) +
		math.Cos(lat1)*math.Sin(delta)*math.Cos(brng))
	lng2 := lng1 + math.Atan2(math.Sin(brng)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2))

	return Point{Lat: toDegrees(lat2), Lng: toDegrees(lng2)}
}

// Circle generates numPoints points evenly spaced around a circle of the
// given radius (meters). The first point lies due north of center.
func Circle(center Point, radius float64, numPoints int) []Point {
	if numPoints <= 0 {
		return nil
	}

	points := make([]Point, 0, numPoints)
	for i := 0; i < numPoints; i++ {
		angle := float64(i) / float64(numPoints) * 360
		points = append(points, Destination(center, angle, radius))
	}
	return points
}

// RegularPolygon generates the vertices of a regular polygon with numSides
// sides, each radius meters from center. The first vertex lies on startBearing.
func RegularPolygon(center Point, radius float64, numSides int, startBearing float64) []Point {
	if numSides <= 0 {
		return nil
	}

	increment := 360 / float64(numSides)
	points := make([]Point, 0, numSides)
	for i := 0; i < numSides; i++ {
		bearing := math.Mod(startBearing+float64(i)*increment, 360)
		points = append(points, Destination(center, bearing, radius))
	}
	return points
}

// LegDistances returns, for each point, the distance in meters from the
// previous point. The first element is always zero.
func LegDistances(points []Point) []float64 {
	if len(points) == 0 {
		return nil
	}

	legs := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		legs[i] = Distance(points[i-1], points[i])
	}
	return legs
}

// PathLength returns the total length of the path through points in meters.
func PathLength(points []Point) float64 {
	var total float64
	for _, leg := range LegDistances(points) {
		total += leg
	}
	return total
}
