package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Al3xBlack0ut/satelity/internal/orbit"
	"github.com/Al3xBlack0ut/satelity/internal/registry"
)

func TestImportRegistersOrbitAndSatellite(t *testing.T) {
	body := issName + "\n" + issLine1 + "\n" + issLine2 + "\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	store := registry.NewStore(orbit.DefaultConstants())
	im := NewImporter(store, NewFetcher(server.URL, testLogger), "nasa", testLogger)

	summary, err := im.Import(context.Background())
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if summary.Parsed != 1 || summary.Imported != 1 || summary.Skipped != 0 {
		t.Fatalf("summary = %+v, want 1 parsed, 1 imported", summary)
	}

	orbits, sats := store.Counts()
	if orbits != 1 || sats != 1 {
		t.Fatalf("store counts = (%d, %d), want (1, 1)", orbits, sats)
	}

	recs, total := store.ListSatellites(0, 10, "")
	if total != 1 {
		t.Fatalf("satellite total = %d, want 1", total)
	}
	sat := recs[0]
	if sat.Name != issName || sat.Operator != "nasa" || sat.Status != registry.StatusActive {
		t.Errorf("satellite record = %+v", sat)
	}

	orb, err := store.GetOrbit(sat.OrbitID)
	if err != nil {
		t.Fatalf("GetOrbit: %v", err)
	}
	if orb.InclinationDeg != 51.64 || orb.RAANDeg != 100.0 {
		t.Errorf("orbit = %+v, want inclination 51.64 raan 100", orb)
	}
	if orb.AltitudeKm < 380 || orb.AltitudeKm > 470 {
		t.Errorf("orbit altitude = %g, want ISS-like", orb.AltitudeKm)
	}
}

func TestImportEntriesSkipsDuplicates(t *testing.T) {
	store := registry.NewStore(orbit.DefaultConstants())
	im := NewImporter(store, nil, "", testLogger)

	entry, err := parseEntry(issName, issLine1, issLine2)
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}

	first := im.ImportEntries([]Entry{entry})
	if first.Imported != 1 {
		t.Fatalf("first import = %+v, want 1 imported", first)
	}

	second := im.ImportEntries([]Entry{entry})
	if second.Imported != 0 || second.Skipped != 1 {
		t.Fatalf("second import = %+v, want 1 skipped", second)
	}

	orbits, sats := store.Counts()
	if orbits != 1 || sats != 1 {
		t.Fatalf("store counts = (%d, %d), want (1, 1) after duplicate import", orbits, sats)
	}
}

func TestImportEntriesSkipsBadLines(t *testing.T) {
	store := registry.NewStore(orbit.DefaultConstants())
	im := NewImporter(store, nil, "", testLogger)

	entry, err := parseEntry(issName, issLine1, issLine2)
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	entry.Line1 = entry.Line1[:40] // truncated, fails length validation

	summary := im.ImportEntries([]Entry{entry})
	if summary.Imported != 0 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v, want 1 skipped", summary)
	}
	if _, sats := store.Counts(); sats != 0 {
		t.Fatalf("store has %d satellites after skipped import, want 0", sats)
	}
}
