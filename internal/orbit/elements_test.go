package orbit

import (
	"errors"
	"math"
	"testing"
)

func TestPeriodSeconds(t *testing.T) {
	c := DefaultConstants()

	// ISS-like orbit: a = 6371 + 420 km. Expected T = 2π·sqrt(a³/μ) ≈ 5553 s.
	el := Elements{SemiMajorAxisKm: 6791, InclinationDeg: 51.6, RAANDeg: 100}
	period := el.PeriodSeconds(c.MuKm3S2)

	want := 2 * math.Pi * math.Sqrt(math.Pow(6791, 3)/c.MuKm3S2)
	if math.Abs(period-want) > 1e-9 {
		t.Errorf("PeriodSeconds = %.6f, want %.6f", period, want)
	}
	if period < 5500 || period > 5650 {
		t.Errorf("PeriodSeconds = %.1f, expected ~5560 s for a 420 km orbit", period)
	}
}

func TestPeriodTracksSemiMajorAxis(t *testing.T) {
	c := DefaultConstants()
	el := Elements{SemiMajorAxisKm: 6921, InclinationDeg: 51.6, RAANDeg: 90}
	before := el.PeriodSeconds(c.MuKm3S2)

	el.SemiMajorAxisKm = 7371
	after := el.PeriodSeconds(c.MuKm3S2)
	if after <= before {
		t.Errorf("period after raising the orbit = %.1f, want > %.1f", after, before)
	}
}

func TestAngularVelocity(t *testing.T) {
	c := DefaultConstants()
	el := Elements{SemiMajorAxisKm: 6921, InclinationDeg: 51.6, RAANDeg: 90}

	omega := el.AngularVelocity(c.MuKm3S2)
	want := 2 * math.Pi / el.PeriodSeconds(c.MuKm3S2)
	if math.Abs(omega-want) > 1e-15 {
		t.Errorf("AngularVelocity = %v, want %v", omega, want)
	}
}

func TestValidate(t *testing.T) {
	c := DefaultConstants()

	tests := []struct {
		name    string
		el      Elements
		wantErr bool
	}{
		{"valid LEO", Elements{6921, 51.6, 90}, false},
		{"valid polar", Elements{7000, 90, 0}, false},
		{"valid retrograde", Elements{7000, 180, 359.99}, false},
		{"zero axis", Elements{0, 51.6, 90}, true},
		{"negative axis", Elements{-6921, 51.6, 90}, true},
		{"below minimum altitude", Elements{c.EarthRadiusKm + 100, 51.6, 90}, true},
		{"above maximum altitude", Elements{c.EarthRadiusKm + 50000, 51.6, 90}, true},
		{"inclination too low", Elements{6921, -0.1, 90}, true},
		{"inclination too high", Elements{6921, 180.1, 90}, true},
		{"raan negative", Elements{6921, 51.6, -1}, true},
		{"raan 360", Elements{6921, 51.6, 360}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.el.Validate(c)
			if tt.wantErr && !errors.Is(err, ErrMalformedElements) {
				t.Errorf("Validate = %v, want ErrMalformedElements", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
		})
	}
}
