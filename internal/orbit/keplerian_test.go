package orbit

import (
	"errors"
	"math"
	"testing"
)

const tol = 1e-9

func TestPropagateAtEpoch(t *testing.T) {
	k := NewKeplerian(DefaultConstants())

	// At t=0 with L0=0: ν=0, sin(ν)=0 ⇒ lat=0; atan2(0,1)=0 ⇒ lon=raan.
	el := Elements{SemiMajorAxisKm: 6921, InclinationDeg: 51.6, RAANDeg: 90}
	pos, err := k.Propagate(el, 0, 0)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}

	if math.Abs(pos.LatDeg) > tol {
		t.Errorf("latitude = %.9f, want 0", pos.LatDeg)
	}
	if math.Abs(pos.LonDeg-90) > tol {
		t.Errorf("longitude = %.9f, want 90", pos.LonDeg)
	}
	if math.Abs(pos.AltKm-550) > tol {
		t.Errorf("altitude = %.9f, want 550", pos.AltKm)
	}
}

func TestPropagateEpochFormula(t *testing.T) {
	k := NewKeplerian(DefaultConstants())

	// With elapsed=0 and initial longitude L, the analytic form is
	// lat = asin(sin i · sin L), lon = norm(raan + atan2(cos i · sin L, cos L)).
	tests := []struct {
		name string
		el   Elements
		lon0 float64
	}{
		{"iss-like", Elements{6921, 51.6, 90}, 35},
		{"polar", Elements{7000, 90, 10}, -120},
		{"equatorial", Elements{6921, 0, 200}, 77.5},
		{"retrograde", Elements{7200, 120, 310}, 179},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := k.Propagate(tt.el, 0, tt.lon0)
			if err != nil {
				t.Fatalf("Propagate failed: %v", err)
			}

			i := tt.el.InclinationDeg * math.Pi / 180
			l := tt.lon0 * math.Pi / 180
			wantLat := math.Asin(math.Sin(i)*math.Sin(l)) * 180 / math.Pi
			wantLon := NormalizeLonDeg(tt.el.RAANDeg + math.Atan2(math.Cos(i)*math.Sin(l), math.Cos(l))*180/math.Pi)

			if math.Abs(pos.LatDeg-wantLat) > 1e-9 {
				t.Errorf("latitude = %.9f, want %.9f", pos.LatDeg, wantLat)
			}
			if math.Abs(pos.LonDeg-wantLon) > 1e-9 {
				t.Errorf("longitude = %.9f, want %.9f", pos.LonDeg, wantLon)
			}
		})
	}
}

func TestPropagatePeriodicity(t *testing.T) {
	c := DefaultConstants()
	k := NewKeplerian(c)
	el := Elements{SemiMajorAxisKm: 6921, InclinationDeg: 51.6, RAANDeg: 45}

	period := el.PeriodSeconds(c.MuKm3S2)
	base, err := k.Propagate(el, 1234.5, 20)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}

	for _, kPeriods := range []float64{1, -1, 7, 1000} {
		shifted, err := k.Propagate(el, 1234.5+kPeriods*period, 20)
		if err != nil {
			t.Fatalf("Propagate failed: %v", err)
		}
		if math.Abs(shifted.LatDeg-base.LatDeg) > 1e-6 {
			t.Errorf("k=%v: latitude = %.9f, want %.9f", kPeriods, shifted.LatDeg, base.LatDeg)
		}
		if math.Abs(shifted.LonDeg-base.LonDeg) > 1e-6 {
			t.Errorf("k=%v: longitude = %.9f, want %.9f", kPeriods, shifted.LonDeg, base.LonDeg)
		}
	}
}

func TestPropagateNegativeElapsed(t *testing.T) {
	k := NewKeplerian(DefaultConstants())
	el := Elements{SemiMajorAxisKm: 6921, InclinationDeg: 51.6, RAANDeg: 45}

	// Propagation before the epoch is valid; the orbit is periodic.
	pos, err := k.Propagate(el, -600, 0)
	if err != nil {
		t.Fatalf("Propagate with negative elapsed failed: %v", err)
	}
	if pos.LatDeg < -90 || pos.LatDeg > 90 {
		t.Errorf("latitude = %.6f outside [-90, 90]", pos.LatDeg)
	}
	if pos.LonDeg < -180 || pos.LonDeg >= 180 {
		t.Errorf("longitude = %.6f outside [-180, 180)", pos.LonDeg)
	}
}

func TestPropagateAltitudeConstant(t *testing.T) {
	c := DefaultConstants()
	k := NewKeplerian(c)
	el := Elements{SemiMajorAxisKm: 7150, InclinationDeg: 98, RAANDeg: 200}

	wantAlt := el.SemiMajorAxisKm - c.EarthRadiusKm
	for _, elapsed := range []float64{0, 17, 300, 86400, -86400, 1e9} {
		pos, err := k.Propagate(el, elapsed, 12)
		if err != nil {
			t.Fatalf("Propagate(%v) failed: %v", elapsed, err)
		}
		if math.Abs(pos.AltKm-wantAlt) > tol {
			t.Errorf("elapsed=%v: altitude = %.9f, want %.9f", elapsed, pos.AltKm, wantAlt)
		}
	}
}

func TestPropagateRejectsMalformedElements(t *testing.T) {
	k := NewKeplerian(DefaultConstants())

	_, err := k.Propagate(Elements{SemiMajorAxisKm: -1, InclinationDeg: 51.6, RAANDeg: 90}, 0, 0)
	if !errors.Is(err, ErrMalformedElements) {
		t.Fatalf("Propagate = %v, want ErrMalformedElements", err)
	}
}

func TestNormalizeLonDeg(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{90, 90},
		{180, -180},
		{-180, -180},
		{181, -179},
		{359, -1},
		{360, 0},
		{540, -180},
		{-270, 90},
		{720.5, 0.5},
	}

	for _, tt := range tests {
		if got := NormalizeLonDeg(tt.in); math.Abs(got-tt.want) > tol {
			t.Errorf("NormalizeLonDeg(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPropagateAlternateBody(t *testing.T) {
	// The constants are injected, so a different body just works.
	mars := Constants{
		MuKm3S2:            42828.37,
		EarthRadiusKm:      3389.5,
		MinAltitudeKm:      100,
		MaxAltitudeKm:      20000,
		DefaultThresholdKm: 0.01,
	}
	k := NewKeplerian(mars)

	pos, err := k.Propagate(Elements{SemiMajorAxisKm: 3789.5, InclinationDeg: 45, RAANDeg: 0}, 0, 0)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if math.Abs(pos.AltKm-400) > tol {
		t.Errorf("altitude = %.6f, want 400", pos.AltKm)
	}
}
