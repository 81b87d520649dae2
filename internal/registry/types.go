// Package registry owns the catalog of orbits and tracked satellites. The
// store is an in-memory structure guarded by a mutex; durability comes from
// timestamped JSON snapshots written to disk (see snapshot.go). The
// propagation and conjunction packages never mutate registry records; they
// consume read-only snapshots valid for the duration of one call.
package registry

import (
	"time"

	"github.com/Al3xBlack0ut/satelity/internal/orbit"
)

// Status classifies a tracked object's operational state. Only active objects
// participate in propagation and conjunction detection.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusDeorbited Status = "deorbited"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDeorbited:
		return true
	}
	return false
}

// OrbitRecord is a cataloged circular orbit. Altitude is stored rather than
// the semi-major axis; the axis is derived when elements are built.
type OrbitRecord struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	AltitudeKm     float64 `json:"altitude_km"`
	InclinationDeg float64 `json:"inclination_deg"`
	RAANDeg        float64 `json:"raan_deg"`
}

// Elements converts the record into propagation-ready orbital elements.
func (o OrbitRecord) Elements(c orbit.Constants) orbit.Elements {
	return orbit.Elements{
		SemiMajorAxisKm: c.EarthRadiusKm + o.AltitudeKm,
		InclinationDeg:  o.InclinationDeg,
		RAANDeg:         o.RAANDeg,
	}
}

// SatelliteRecord is a cataloged tracked object.
type SatelliteRecord struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Operator      string    `json:"operator"`
	LaunchedAt    time.Time `json:"launched_at"` // the propagation epoch
	Status        Status    `json:"status"`
	InitialLonDeg float64   `json:"initial_longitude_deg"`
	OrbitID       int64     `json:"orbit_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// TrackedObject is the read-only projection the orbital engine consumes: one
// object's identity, resolved elements, epoch, and phase offset.
type TrackedObject struct {
	ID            int64
	Elements      orbit.Elements
	Epoch         time.Time
	InitialLonDeg float64
	Active        bool
}
