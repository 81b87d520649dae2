package orbit

import (
	"math"

	"github.com/Al3xBlack0ut/satelity/internal/geo"
)

// Propagator maps orbital elements and epoch-relative time to a geodetic
// position. Implementations must be pure functions of their inputs so calls
// can run concurrently without synchronization. Keplerian is the sole current
// variant; perturbed models slot in behind the same interface.
type Propagator interface {
	Propagate(el Elements, elapsedSeconds, initialLonDeg float64) (geo.Position, error)
}

// Keplerian propagates a circular orbit with the classic two-body model:
// constant angular velocity in the orbit plane, constant altitude, no
// perturbations and no Earth-rotation correction of the ground track.
type Keplerian struct {
	constants Constants
}

// NewKeplerian creates a propagator using the given constants.
func NewKeplerian(c Constants) *Keplerian {
	return &Keplerian{constants: c}
}

// Constants returns the constants the propagator was built with.
func (k *Keplerian) Constants() Constants {
	return k.constants
}

// Propagate computes the geodetic position at elapsedSeconds past the epoch,
// with initialLonDeg as the phase offset at the epoch. Negative elapsed times
// are valid (the orbit is periodic); huge magnitudes are reduced modulo the
// period before the phase angle is formed, for numerical stability.
func (k *Keplerian) Propagate(el Elements, elapsedSeconds, initialLonDeg float64) (geo.Position, error) {
	if err := el.Validate(k.constants); err != nil {
		return geo.Position{}, err
	}

	inclRad := el.InclinationDeg * math.Pi / 180.0
	raanRad := el.RAANDeg * math.Pi / 180.0
	initialRad := initialLonDeg * math.Pi / 180.0

	period := el.PeriodSeconds(k.constants.MuKm3S2)
	elapsed := math.Mod(elapsedSeconds, period)

	// Phase angle along the orbit plane.
	nu := el.AngularVelocity(k.constants.MuKm3S2)*elapsed + initialRad

	// sin(i)·sin(ν) is always in [-1, 1], so Asin cannot leave its domain.
	latRad := math.Asin(math.Sin(inclRad) * math.Sin(nu))
	lonRad := raanRad + math.Atan2(math.Cos(inclRad)*math.Sin(nu), math.Cos(nu))

	return geo.Position{
		LatDeg: latRad * 180.0 / math.Pi,
		LonDeg: NormalizeLonDeg(lonRad * 180.0 / math.Pi),
		AltKm:  el.SemiMajorAxisKm - k.constants.EarthRadiusKm,
	}, nil
}

// NormalizeLonDeg wraps a longitude into [-180, 180).
func NormalizeLonDeg(lonDeg float64) float64 {
	wrapped := math.Mod(lonDeg+180.0, 360.0)
	if wrapped < 0 {
		wrapped += 360.0
	}
	return wrapped - 180.0
}
