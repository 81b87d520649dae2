package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Al3xBlack0ut/satelity/internal/orbit"
)

func TestExportRestoreRoundTrip(t *testing.T) {
	s := testStore(t)
	o, _ := s.CreateOrbit(validOrbit("leo-550"))
	s.CreateSatellite(validSatellite("sat-1", o.ID))
	s.CreateSatellite(validSatellite("sat-2", o.ID))

	cat := s.Export()

	restored := NewStore(orbit.DefaultConstants())
	if err := restored.Restore(cat); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	orbits, sats := restored.Counts()
	if orbits != 1 || sats != 2 {
		t.Fatalf("Counts = (%d, %d), want (1, 2)", orbits, sats)
	}

	// Sequence counters must resume past restored ids.
	next, err := restored.CreateSatellite(validSatellite("sat-3", o.ID))
	if err != nil {
		t.Fatalf("CreateSatellite after restore failed: %v", err)
	}
	if next.ID != 3 {
		t.Errorf("next satellite id = %d, want 3", next.ID)
	}
}

func TestRestoreRejectsDanglingOrbitRef(t *testing.T) {
	s := testStore(t)

	cat := Catalog{
		Orbits: []OrbitRecord{{ID: 1, Name: "leo", AltitudeKm: 550, InclinationDeg: 51.6, RAANDeg: 90}},
		Satellites: []SatelliteRecord{{
			ID: 1, Name: "sat", Operator: "ops", Status: StatusActive,
			LaunchedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), OrbitID: 42,
		}},
	}
	if err := s.Restore(cat); err == nil {
		t.Fatal("Restore with dangling orbit reference succeeded, want error")
	}
}

func TestSnapshotsSaveLoadPrune(t *testing.T) {
	dir := t.TempDir()
	snaps := NewSnapshots(dir, 2)

	s := testStore(t)
	o, _ := s.CreateOrbit(validOrbit("leo-550"))
	s.CreateSatellite(validSatellite("sat-1", o.ID))

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		if err := snaps.Save(s.Export(), base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	// Only maxFiles snapshots remain after pruning.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("snapshot files = %d, want 2", len(entries))
	}

	cat, ts, err := snaps.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if !ts.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("latest timestamp = %v, want %v", ts, base.Add(3*time.Minute))
	}
	if len(cat.Orbits) != 1 || len(cat.Satellites) != 1 {
		t.Errorf("catalog = %d orbits, %d satellites", len(cat.Orbits), len(cat.Satellites))
	}
}

func TestSnapshotsLoadLatestEmpty(t *testing.T) {
	snaps := NewSnapshots(filepath.Join(t.TempDir(), "missing"), 5)
	if _, _, err := snaps.LoadLatest(); err == nil {
		t.Fatal("LoadLatest on empty dir succeeded, want error")
	}
}
