package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Catalog is the serializable form of the store's contents.
type Catalog struct {
	SavedAt    time.Time         `json:"saved_at"`
	Orbits     []OrbitRecord     `json:"orbits"`
	Satellites []SatelliteRecord `json:"satellites"`
}

// Export copies the catalog contents into a serializable Catalog, ordered by id.
func (s *Store) Export() Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cat := Catalog{
		SavedAt:    time.Now().UTC(),
		Orbits:     make([]OrbitRecord, 0, len(s.orbits)),
		Satellites: make([]SatelliteRecord, 0, len(s.satellites)),
	}
	for _, o := range s.orbits {
		cat.Orbits = append(cat.Orbits, o)
	}
	for _, rec := range s.satellites {
		cat.Satellites = append(cat.Satellites, rec)
	}
	sort.Slice(cat.Orbits, func(i, j int) bool { return cat.Orbits[i].ID < cat.Orbits[j].ID })
	sort.Slice(cat.Satellites, func(i, j int) bool { return cat.Satellites[i].ID < cat.Satellites[j].ID })
	return cat
}

// Restore replaces the store contents with a previously exported catalog.
// Records keep their ids; the sequence counters resume past the highest id.
func (s *Store) Restore(cat Catalog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orbits := make(map[int64]OrbitRecord, len(cat.Orbits))
	var orbitSeq int64
	for _, o := range cat.Orbits {
		if o.ID <= 0 {
			return fmt.Errorf("%w: orbit id %d", ErrInvalidRecord, o.ID)
		}
		if err := s.validateOrbit(o); err != nil {
			return fmt.Errorf("restoring orbit %d: %w", o.ID, err)
		}
		orbits[o.ID] = o
		if o.ID > orbitSeq {
			orbitSeq = o.ID
		}
	}

	satellites := make(map[int64]SatelliteRecord, len(cat.Satellites))
	var satSeq int64
	for _, rec := range cat.Satellites {
		if rec.ID <= 0 {
			return fmt.Errorf("%w: satellite id %d", ErrInvalidRecord, rec.ID)
		}
		if _, ok := orbits[rec.OrbitID]; !ok {
			return fmt.Errorf("restoring satellite %d: %w: %d", rec.ID, ErrUnknownOrbit, rec.OrbitID)
		}
		satellites[rec.ID] = rec
		if rec.ID > satSeq {
			satSeq = rec.ID
		}
	}

	s.orbits = orbits
	s.satellites = satellites
	s.orbitSeq = orbitSeq
	s.satSeq = satSeq
	s.revision++
	return nil
}

// Snapshots manages catalog snapshot files on disk. Files are named by their
// save timestamp and pruned oldest-first beyond maxFiles.
type Snapshots struct {
	dir      string
	maxFiles int
}

// NewSnapshots creates a Snapshots that stores files in dir and keeps at most
// maxFiles.
func NewSnapshots(dir string, maxFiles int) *Snapshots {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Snapshots{
		dir:      dir,
		maxFiles: maxFiles,
	}
}

// Save writes the catalog to a timestamped file and prunes old snapshots.
func (s *Snapshots) Save(cat Catalog, ts time.Time) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}

	filename := fmt.Sprintf("catalog_%d.json", ts.Unix())
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot file: %w", err)
	}

	return s.prune()
}

// LoadLatest reads the newest snapshot by the timestamp in the filename.
func (s *Snapshots) LoadLatest() (Catalog, time.Time, error) {
	files, err := s.listFiles()
	if err != nil {
		return Catalog{}, time.Time{}, err
	}
	if len(files) == 0 {
		return Catalog{}, time.Time{}, fmt.Errorf("no snapshot files found")
	}

	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(s.dir, latest.name))
	if err != nil {
		return Catalog{}, time.Time{}, fmt.Errorf("reading snapshot file: %w", err)
	}

	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return Catalog{}, time.Time{}, fmt.Errorf("decoding snapshot file %s: %w", latest.name, err)
	}
	return cat, latest.ts, nil
}

type snapshotFile struct {
	name string
	ts   time.Time
}

func (s *Snapshots) listFiles() ([]snapshotFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshot dir: %w", err)
	}

	var files []snapshotFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "catalog_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		tsStr := strings.TrimSuffix(strings.TrimPrefix(name, "catalog_"), ".json")
		unix, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, snapshotFile{name: name, ts: time.Unix(unix, 0)})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})
	return files, nil
}

func (s *Snapshots) prune() error {
	files, err := s.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= s.maxFiles {
		return nil
	}

	for _, f := range files[:len(files)-s.maxFiles] {
		if err := os.Remove(filepath.Join(s.dir, f.name)); err != nil {
			return fmt.Errorf("pruning snapshot file %s: %w", f.name, err)
		}
	}
	return nil
}
