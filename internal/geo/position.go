// Package geo holds geodetic position types shared by the propagation and
// conjunction packages. Positions are modeled on a spherical Earth; the
// radius is supplied by the caller so alternate bodies stay testable.
package geo

import "math"

// Position is a geodetic latitude/longitude/altitude triple.
// Latitude and longitude are degrees, altitude is kilometers above the sphere.
type Position struct {
	LatDeg float64 `json:"latitude_deg"`
	LonDeg float64 `json:"longitude_deg"`
	AltKm  float64 `json:"altitude_km"`
}

// Cartesian converts the position to Earth-centered Cartesian coordinates (km)
// on a sphere of the given radius.
func (p Position) Cartesian(radiusKm float64) (x, y, z float64) {
	r := radiusKm + p.AltKm
	lat := p.LatDeg * math.Pi / 180.0
	lon := p.LonDeg * math.Pi / 180.0

	x = r * math.Cos(lat) * math.Cos(lon)
	y = r * math.Cos(lat) * math.Sin(lon)
	z = r * math.Sin(lat)
	return x, y, z
}

// DistanceKm returns the 3D Euclidean distance to other via the Cartesian
// embedding. Radial separation matters for proximity detection in an orbital
// shell, so this is deliberately not a great-circle distance.
func (p Position) DistanceKm(other Position, radiusKm float64) float64 {
	x1, y1, z1 := p.Cartesian(radiusKm)
	x2, y2, z2 := other.Cartesian(radiusKm)

	dx := x2 - x1
	dy := y2 - y1
	dz := z2 - z1
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
