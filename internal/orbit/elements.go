// Package orbit models Keplerian circular orbits and propagates tracked
// objects to geodetic positions. The propagator is pure and stateless; all
// physical constants are passed in explicitly rather than read from globals.
package orbit

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedElements reports orbital elements outside their valid domain.
// The registry validates at construction time, but the propagator re-validates
// defensively so it can never silently produce NaN positions.
var ErrMalformedElements = errors.New("malformed orbital elements")

// Constants holds the physical and operational constants the engine depends
// on. Modeled as an explicit value (not package state) so tests can swap in
// alternate celestial bodies.
type Constants struct {
	MuKm3S2            float64 // standard gravitational parameter (km³/s²)
	EarthRadiusKm      float64
	MinAltitudeKm      float64
	MaxAltitudeKm      float64
	DefaultThresholdKm float64 // conjunction proximity threshold
}

// DefaultConstants returns Earth constants and the default proximity
// threshold of 0.01 km.
func DefaultConstants() Constants {
	return Constants{
		MuKm3S2:            398600.4418,
		EarthRadiusKm:      6371.0,
		MinAltitudeKm:      160.0,
		MaxAltitudeKm:      40000.0,
		DefaultThresholdKm: 0.01,
	}
}

// Elements are the Keplerian parameters of a circular orbit.
type Elements struct {
	SemiMajorAxisKm float64 `json:"semi_major_axis_km"`
	InclinationDeg  float64 `json:"inclination_deg"`
	RAANDeg         float64 `json:"raan_deg"`
}

// PeriodSeconds computes the orbital period T = 2π·sqrt(a³/μ). The period is
// always derived from the current semi-major axis, never cached, so mutated
// elements cannot carry a stale value.
func (e Elements) PeriodSeconds(mu float64) float64 {
	return 2 * math.Pi * math.Sqrt(math.Pow(e.SemiMajorAxisKm, 3)/mu)
}

// AngularVelocity computes ω = 2π/T in rad/s.
func (e Elements) AngularVelocity(mu float64) float64 {
	return 2 * math.Pi / e.PeriodSeconds(mu)
}

// Validate checks the elements against their domains: the semi-major axis
// must place the orbit inside the allowed altitude band, inclination in
// [0, 180], RAAN in [0, 360).
func (e Elements) Validate(c Constants) error {
	minAxis := c.EarthRadiusKm + c.MinAltitudeKm
	maxAxis := c.EarthRadiusKm + c.MaxAltitudeKm
	if e.SemiMajorAxisKm <= minAxis || e.SemiMajorAxisKm > maxAxis {
		return fmt.Errorf("%w: semi-major axis %.3f km outside (%.1f, %.1f]",
			ErrMalformedElements, e.SemiMajorAxisKm, minAxis, maxAxis)
	}
	if e.InclinationDeg < 0 || e.InclinationDeg > 180 {
		return fmt.Errorf("%w: inclination %.3f outside [0, 180]", ErrMalformedElements, e.InclinationDeg)
	}
	if e.RAANDeg < 0 || e.RAANDeg >= 360 {
		return fmt.Errorf("%w: raan %.3f outside [0, 360)", ErrMalformedElements, e.RAANDeg)
	}
	return nil
}
