// Package geo holds the geographic value types and the two spherical Web
// Mercator projections used by the vector renderer and the tile math.
package geo

import "math"

const (
	// EarthRadius is the WGS84 semi-major axis used by Web Mercator (meters).
	EarthRadius = 6378137.0

	// OriginShift is half the projected circumference (pi * R), 20037508.342789244 m.
	OriginShift = math.Pi * EarthRadius

	// Circumference is the projected width (and height) of the world in meters.
	Circumference = 2 * OriginShift
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// XY is a projected coordinate. Its unit depends on the projection that
// produced it.
type XY struct {
	X float64
	Y float64
}

// Mercator projects lat/lon into degree-scaled Web Mercator units.
// x is the longitude itself; y is the log-tangent transform scaled back into
// a degree-like range so that both axes share one linear scale factor.
//
// Latitudes of +/-90 produce +/-Inf; the caller is expected to reject such
// bounds upstream.
func Mercator(lat, lon float64) XY {
	x := lon
	y := math.Log(math.Tan(math.Pi/4+lat/180*math.Pi/2)) / math.Pi * 180
	return XY{X: x, Y: y}
}

// MetersFromLatLng converts lat/lng into Web Mercator meters, shifted so the
// origin sits at the north-west corner of the world square and y grows
// toward the south. Both axes cover [0, Circumference).
func MetersFromLatLng(lat, lng float64) XY {
	x := lng*EarthRadius*math.Pi/180 + OriginShift
	y := OriginShift - math.Log(math.Tan((90+lat)*math.Pi/360))*EarthRadius
	return XY{X: x, Y: y}
}

// LatLngFromMeters is the inverse of MetersFromLatLng.
func LatLngFromMeters(m XY) Point {
	lng := (m.X - OriginShift) / EarthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp((OriginShift-m.Y)/EarthRadius)) - math.Pi/2) * 180 / math.Pi
	return Point{Lat: lat, Lon: lng}
}

// Mercator returns the degree-scaled projection of p.
func (p Point) Mercator() XY {
	return Mercator(p.Lat, p.Lon)
}

// Meters returns the shifted meter projection of p.
func (p Point) Meters() XY {
	return MetersFromLatLng(p.Lat, p.Lon)
}
