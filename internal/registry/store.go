package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Al3xBlack0ut/satelity/internal/orbit"
)

var (
	// ErrNotFound reports a lookup for an id that is not in the catalog.
	ErrNotFound = errors.New("not found")
	// ErrNameTaken reports a create/update that collides with an existing name.
	ErrNameTaken = errors.New("name already in use")
	// ErrOrbitInUse reports a delete of an orbit still referenced by satellites.
	ErrOrbitInUse = errors.New("orbit referenced by satellites")
	// ErrUnknownOrbit reports a satellite referencing a nonexistent orbit.
	ErrUnknownOrbit = errors.New("unknown orbit id")
	// ErrInvalidRecord reports a record that fails domain validation.
	ErrInvalidRecord = errors.New("invalid record")
)

// Store provides thread-safe access to the orbit/satellite catalog.
type Store struct {
	mu        sync.RWMutex
	constants orbit.Constants

	orbits     map[int64]OrbitRecord
	satellites map[int64]SatelliteRecord
	orbitSeq   int64
	satSeq     int64

	// revision increments on every mutation; caches key off it to detect
	// catalog changes without diffing contents.
	revision uint64
}

// NewStore creates an empty catalog validated against the given constants.
func NewStore(c orbit.Constants) *Store {
	return &Store{
		constants:  c,
		orbits:     make(map[int64]OrbitRecord),
		satellites: make(map[int64]SatelliteRecord),
	}
}

// Constants returns the constants the store validates against.
func (s *Store) Constants() orbit.Constants {
	return s.constants
}

// Revision returns the current catalog revision. It changes on every
// successful mutation.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Counts returns the number of cataloged orbits and satellites.
func (s *Store) Counts() (orbits, satellites int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orbits), len(s.satellites)
}

func (s *Store) validateOrbit(o OrbitRecord) error {
	if strings.TrimSpace(o.Name) == "" {
		return fmt.Errorf("%w: orbit name is required", ErrInvalidRecord)
	}
	if len(o.Name) > 100 {
		return fmt.Errorf("%w: orbit name longer than 100 characters", ErrInvalidRecord)
	}
	if err := o.Elements(s.constants).Validate(s.constants); err != nil {
		return err
	}
	return nil
}

func (s *Store) validateSatellite(rec SatelliteRecord) error {
	if strings.TrimSpace(rec.Name) == "" {
		return fmt.Errorf("%w: satellite name is required", ErrInvalidRecord)
	}
	if len(rec.Name) > 100 {
		return fmt.Errorf("%w: satellite name longer than 100 characters", ErrInvalidRecord)
	}
	if strings.TrimSpace(rec.Operator) == "" {
		return fmt.Errorf("%w: operator is required", ErrInvalidRecord)
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidRecord, rec.Status)
	}
	if rec.InitialLonDeg < -180 || rec.InitialLonDeg > 180 {
		return fmt.Errorf("%w: initial longitude %.3f outside [-180, 180]", ErrInvalidRecord, rec.InitialLonDeg)
	}
	if rec.LaunchedAt.IsZero() {
		return fmt.Errorf("%w: launch time is required", ErrInvalidRecord)
	}
	if !rec.LaunchedAt.Before(time.Now().UTC()) {
		return fmt.Errorf("%w: launch time must be in the past", ErrInvalidRecord)
	}
	if _, ok := s.orbits[rec.OrbitID]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOrbit, rec.OrbitID)
	}
	return nil
}

// orbitNameTaken reports whether name belongs to an orbit other than exceptID.
func (s *Store) orbitNameTaken(name string, exceptID int64) bool {
	for _, o := range s.orbits {
		if o.Name == name && o.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Store) satelliteNameTaken(name string, exceptID int64) bool {
	for _, rec := range s.satellites {
		if rec.Name == name && rec.ID != exceptID {
			return true
		}
	}
	return false
}

// CreateOrbit catalogs a new orbit and returns it with its assigned id.
func (s *Store) CreateOrbit(o OrbitRecord) (OrbitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateOrbit(o); err != nil {
		return OrbitRecord{}, err
	}
	if s.orbitNameTaken(o.Name, 0) {
		return OrbitRecord{}, fmt.Errorf("%w: orbit %q", ErrNameTaken, o.Name)
	}

	s.orbitSeq++
	o.ID = s.orbitSeq
	s.orbits[o.ID] = o
	s.revision++
	return o, nil
}

// GetOrbit returns the orbit with the given id.
func (s *Store) GetOrbit(id int64) (OrbitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orbits[id]
	if !ok {
		return OrbitRecord{}, fmt.Errorf("%w: orbit %d", ErrNotFound, id)
	}
	return o, nil
}

// ListOrbits returns one page of orbits ordered by id, filtered by a
// case-insensitive name substring when nameFilter is non-empty, along with
// the total match count.
func (s *Store) ListOrbits(skip, limit int, nameFilter string) ([]OrbitRecord, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]OrbitRecord, 0, len(s.orbits))
	needle := strings.ToLower(nameFilter)
	for _, o := range s.orbits {
		if needle != "" && !strings.Contains(strings.ToLower(o.Name), needle) {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	return page(matched, skip, limit), len(matched)
}

// UpdateOrbit replaces the orbit's mutable fields.
func (s *Store) UpdateOrbit(id int64, o OrbitRecord) (OrbitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orbits[id]; !ok {
		return OrbitRecord{}, fmt.Errorf("%w: orbit %d", ErrNotFound, id)
	}
	o.ID = id
	if err := s.validateOrbit(o); err != nil {
		return OrbitRecord{}, err
	}
	if s.orbitNameTaken(o.Name, id) {
		return OrbitRecord{}, fmt.Errorf("%w: orbit %q", ErrNameTaken, o.Name)
	}

	s.orbits[id] = o
	s.revision++
	return o, nil
}

// DeleteOrbit removes an orbit. Orbits still referenced by satellites cannot
// be deleted.
func (s *Store) DeleteOrbit(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orbits[id]; !ok {
		return fmt.Errorf("%w: orbit %d", ErrNotFound, id)
	}
	for _, rec := range s.satellites {
		if rec.OrbitID == id {
			return fmt.Errorf("%w: orbit %d", ErrOrbitInUse, id)
		}
	}

	delete(s.orbits, id)
	s.revision++
	return nil
}

// CreateSatellite catalogs a new satellite and returns it with its assigned id.
func (s *Store) CreateSatellite(rec SatelliteRecord) (SatelliteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateSatellite(rec); err != nil {
		return SatelliteRecord{}, err
	}
	if s.satelliteNameTaken(rec.Name, 0) {
		return SatelliteRecord{}, fmt.Errorf("%w: satellite %q", ErrNameTaken, rec.Name)
	}

	s.satSeq++
	rec.ID = s.satSeq
	rec.CreatedAt = time.Now().UTC()
	s.satellites[rec.ID] = rec
	s.revision++
	return rec, nil
}

// GetSatellite returns the satellite with the given id.
func (s *Store) GetSatellite(id int64) (SatelliteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.satellites[id]
	if !ok {
		return SatelliteRecord{}, fmt.Errorf("%w: satellite %d", ErrNotFound, id)
	}
	return rec, nil
}

// ListSatellites returns one page of satellites ordered by id, filtered by a
// case-insensitive operator substring when operatorFilter is non-empty, along
// with the total match count.
func (s *Store) ListSatellites(skip, limit int, operatorFilter string) ([]SatelliteRecord, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]SatelliteRecord, 0, len(s.satellites))
	needle := strings.ToLower(operatorFilter)
	for _, rec := range s.satellites {
		if needle != "" && !strings.Contains(strings.ToLower(rec.Operator), needle) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	return page(matched, skip, limit), len(matched)
}

// UpdateSatellite replaces the satellite's mutable fields.
func (s *Store) UpdateSatellite(id int64, rec SatelliteRecord) (SatelliteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.satellites[id]
	if !ok {
		return SatelliteRecord{}, fmt.Errorf("%w: satellite %d", ErrNotFound, id)
	}
	rec.ID = id
	rec.CreatedAt = existing.CreatedAt
	if err := s.validateSatellite(rec); err != nil {
		return SatelliteRecord{}, err
	}
	if s.satelliteNameTaken(rec.Name, id) {
		return SatelliteRecord{}, fmt.Errorf("%w: satellite %q", ErrNameTaken, rec.Name)
	}

	s.satellites[id] = rec
	s.revision++
	return rec, nil
}

// DeleteSatellite removes a satellite from the catalog.
func (s *Store) DeleteSatellite(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.satellites[id]; !ok {
		return fmt.Errorf("%w: satellite %d", ErrNotFound, id)
	}
	delete(s.satellites, id)
	s.revision++
	return nil
}

// Snapshot returns the tracked-object projection the orbital engine consumes:
// every cataloged satellite with resolved elements, ordered by id. The slice
// is a copy; callers may hold it for the duration of one call without
// observing later mutations.
func (s *Store) Snapshot() []TrackedObject {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects := make([]TrackedObject, 0, len(s.satellites))
	for _, rec := range s.satellites {
		o, ok := s.orbits[rec.OrbitID]
		if !ok {
			continue // referential integrity is enforced on write
		}
		objects = append(objects, TrackedObject{
			ID:            rec.ID,
			Elements:      o.Elements(s.constants),
			Epoch:         rec.LaunchedAt,
			InitialLonDeg: rec.InitialLonDeg,
			Active:        rec.Status == StatusActive,
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].ID < objects[j].ID })
	return objects
}

func page[T any](items []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return items[skip:end]
}
