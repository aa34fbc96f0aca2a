package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/stretchr/testify/require"
)

func TestMercatorIdentityOnEquator(t *testing.T) {
	p := Mercator(0, 140.1)
	require.Equal(t, 140.1, p.X)
	require.InDelta(t, 0, p.Y, 1e-12)
}

func TestMercatorMonotonicInLatitude(t *testing.T) {
	prev := Mercator(-85, 0).Y
	for lat := -84.5; lat < 85; lat += 0.5 {
		y := Mercator(lat, 0).Y
		if y <= prev {
			t.Fatalf("mercator y not increasing at lat=%.1f: %v <= %v", lat, y, prev)
		}
		prev = y
	}
}

func TestMercatorPoles(t *testing.T) {
	// tan(pi/2) is finite in float64, so the north pole lands far outside the
	// +/-180 range instead of at +Inf.
	north := Mercator(90, 0).Y
	require.True(t, math.IsInf(north, 1) || north > 1000, "north pole should diverge, got %v", north)
	require.True(t, math.IsInf(Mercator(-90, 0).Y, -1), "south pole should diverge to -Inf")
}

func TestMercatorSymmetry(t *testing.T) {
	for _, lat := range []float64{1, 12.5, 36.08, 52.37, 80} {
		north := Mercator(lat, 0).Y
		south := Mercator(-lat, 0).Y
		require.InDelta(t, -north, south, 1e-9, "lat=%v", lat)
	}
}

func TestMetersFromLatLngMatchesOrbProjection(t *testing.T) {
	points := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 52.37, Lon: 9.73},
		{Lat: 37.78, Lon: -122.42},
		{Lat: 36.0849, Lon: 140.1062},
		{Lat: -33.86, Lon: 151.21},
	}

	for _, p := range points {
		got := MetersFromLatLng(p.Lat, p.Lon)
		merc := project.WGS84.ToMercator(orb.Point{p.Lon, p.Lat})

		require.InDelta(t, merc.X()+OriginShift, got.X, 1e-6, "x for %+v", p)
		require.InDelta(t, OriginShift-merc.Y(), got.Y, 1e-6, "y for %+v", p)
	}
}

func TestMetersFromLatLngOrigin(t *testing.T) {
	nw := MetersFromLatLng(85.0511287798066, -180)
	require.InDelta(t, 0, nw.X, 1e-6)
	require.InDelta(t, 0, nw.Y, 1e-3)

	center := MetersFromLatLng(0, 0)
	require.InDelta(t, OriginShift, center.X, 1e-6)
	require.InDelta(t, OriginShift, center.Y, 1e-6)
}

func TestMetersFromLatLngYGrowsSouth(t *testing.T) {
	north := MetersFromLatLng(36.0849, 140.1)
	south := MetersFromLatLng(36.0802, 140.1)
	require.Greater(t, south.Y, north.Y)
}

func TestLatLngFromMetersRoundTrip(t *testing.T) {
	for _, p := range []Point{{0, 0}, {52.37, 9.73}, {-41.3, 174.8}, {36.0849, 140.1062}} {
		back := LatLngFromMeters(MetersFromLatLng(p.Lat, p.Lon))
		require.InDelta(t, p.Lat, back.Lat, 1e-9)
		require.InDelta(t, p.Lon, back.Lon, 1e-9)
	}
}

func TestProjectionsShareLogTangent(t *testing.T) {
	// Both projections apply ln(tan(pi/4 + lat/2)); only scale and axis differ.
	for _, lat := range []float64{-60, -10, 0, 25, 36.08, 70} {
		deg := Mercator(lat, 0).Y
		m := MetersFromLatLng(lat, 0).Y
		require.InDelta(t, OriginShift-deg/180*OriginShift, m, 1e-6, "lat=%v", lat)
	}
}
