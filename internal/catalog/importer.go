package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/Al3xBlack0ut/satelity/internal/metrics"
	"github.com/Al3xBlack0ut/satelity/internal/registry"
)

// Summary reports the outcome of one import run.
type Summary struct {
	Parsed   int `json:"parsed"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Importer pulls a TLE feed and registers each usable object as an orbit plus
// a satellite record.
type Importer struct {
	store    *registry.Store
	fetcher  *Fetcher
	operator string
	logger   *slog.Logger
}

// NewImporter builds an Importer. operator is stamped on every imported
// satellite record; empty selects "tle-import".
func NewImporter(store *registry.Store, fetcher *Fetcher, operator string, logger *slog.Logger) *Importer {
	if operator == "" {
		operator = "tle-import"
	}
	return &Importer{store: store, fetcher: fetcher, operator: operator, logger: logger}
}

// Import fetches the configured feed, parses it, and registers every entry
// that passes SGP4 initialization and the altitude shell check. Individual
// bad entries are skipped, not fatal; only fetch and parse errors abort.
func (im *Importer) Import(ctx context.Context) (Summary, error) {
	raw, err := im.fetcher.Fetch(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch: %w", err)
	}

	summary, err := im.ImportReader(bytes.NewReader(raw))
	if err != nil {
		return Summary{}, err
	}
	im.logger.Info("catalog import complete",
		"source", im.fetcher.SourceURL(),
		"parsed", summary.Parsed,
		"imported", summary.Imported,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

// ImportReader parses TLE text from r and registers the entries, bypassing
// the fetcher. Used when the caller supplies the feed directly.
func (im *Importer) ImportReader(r io.Reader) (Summary, error) {
	entries, err := Parse(r, im.logger)
	if err != nil {
		return Summary{}, fmt.Errorf("parse: %w", err)
	}
	return im.ImportEntries(entries), nil
}

// ImportEntries registers the given entries. Callers that already hold parsed
// entries (tests, file-based imports) can bypass the fetch.
func (im *Importer) ImportEntries(entries []Entry) Summary {
	summary := Summary{Parsed: len(entries)}
	for _, entry := range entries {
		if err := im.importEntry(entry); err != nil {
			summary.Skipped++
			im.logger.Warn("skipping catalog entry",
				"norad_id", entry.NORADID, "name", entry.Name, "error", err)
			continue
		}
		summary.Imported++
	}

	orbits, sats := im.store.Counts()
	metrics.SetCatalogCounts(orbits, sats)
	return summary
}

func (im *Importer) importEntry(entry Entry) error {
	if err := validateTLELines(entry.Line1, entry.Line2); err != nil {
		return err
	}

	// go-satellite surfaces SGP4 init failures through the Error field.
	sat := satellite.TLEToSat(entry.Line1, entry.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return fmt.Errorf("sgp4 init failed: code=%d %s", sat.Error, sat.ErrorStr)
	}

	consts := im.store.Constants()
	el, initialLon := entry.CircularElements(consts)
	if err := el.Validate(consts); err != nil {
		return fmt.Errorf("derived elements: %w", err)
	}

	orbitRec, err := im.store.CreateOrbit(registry.OrbitRecord{
		Name:           entry.Name + " orbit",
		AltitudeKm:     el.SemiMajorAxisKm - consts.EarthRadiusKm,
		InclinationDeg: el.InclinationDeg,
		RAANDeg:        el.RAANDeg,
	})
	if err != nil {
		if errors.Is(err, registry.ErrNameTaken) {
			return fmt.Errorf("orbit %q already cataloged", entry.Name+" orbit")
		}
		return fmt.Errorf("create orbit: %w", err)
	}

	_, err = im.store.CreateSatellite(registry.SatelliteRecord{
		Name:          entry.Name,
		Operator:      im.operator,
		LaunchedAt:    entry.Epoch,
		Status:        registry.StatusActive,
		InitialLonDeg: initialLon,
		OrbitID:       orbitRec.ID,
	})
	if err != nil {
		// Roll back the orbit so a skipped satellite leaves nothing behind.
		if delErr := im.store.DeleteOrbit(orbitRec.ID); delErr != nil {
			im.logger.Error("orphaned orbit after failed satellite create",
				"orbit_id", orbitRec.ID, "error", delErr)
		}
		return fmt.Errorf("create satellite: %w", err)
	}
	return nil
}

// validateTLELines performs basic format validation before handing lines to
// go-satellite, which calls log.Fatal on malformed input.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}
