package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Al3xBlack0ut/satelity/internal/conjunction"
	"github.com/Al3xBlack0ut/satelity/internal/orbit"
	"github.com/Al3xBlack0ut/satelity/internal/registry"
)

// diag runs an offline conjunction sweep over a catalog snapshot file, for
// sanity-checking the detector against a known catalog without the server.
func main() {
	var (
		snapshotPath = flag.String("snapshot", "", "path to a catalog snapshot JSON file")
		startStr     = flag.String("start", "", "sweep start (RFC3339, default now)")
		endStr       = flag.String("end", "", "sweep end (RFC3339, default start+1h)")
		step         = flag.String("step", "1m", "grid step spec, e.g. 30s, 1m, 2h")
		threshold    = flag.Float64("threshold", 0, "proximity threshold in km (0 = default)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if *snapshotPath == "" {
		fmt.Fprintln(os.Stderr, "usage: diag -snapshot <file> [-start t] [-end t] [-step 1m] [-threshold km]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*snapshotPath)
	if err != nil {
		fmt.Println("ERROR reading snapshot:", err)
		os.Exit(1)
	}

	var cat registry.Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		fmt.Println("ERROR decoding snapshot:", err)
		os.Exit(1)
	}

	consts := orbit.DefaultConstants()
	store := registry.NewStore(consts)
	if err := store.Restore(cat); err != nil {
		fmt.Println("ERROR restoring catalog:", err)
		os.Exit(1)
	}
	orbits, sats := store.Counts()
	fmt.Printf("Loaded catalog: %d orbits, %d satellites (saved %v)\n", orbits, sats, cat.SavedAt.Format(time.RFC3339))

	start := time.Now().UTC()
	if *startStr != "" {
		start, err = time.Parse(time.RFC3339, *startStr)
		if err != nil {
			fmt.Println("ERROR parsing start:", err)
			os.Exit(1)
		}
	}
	end := start.Add(time.Hour)
	if *endStr != "" {
		end, err = time.Parse(time.RFC3339, *endStr)
		if err != nil {
			fmt.Println("ERROR parsing end:", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Sweep: %v .. %v step %s\n", start.Format(time.RFC3339), end.Format(time.RFC3339), *step)

	detector := conjunction.NewDetector(orbit.NewKeplerian(consts), consts, conjunction.Config{}, logger)
	events, err := detector.Detect(context.Background(), store.Snapshot(), start, end, *step, *threshold)
	if err != nil {
		fmt.Println("ERROR running sweep:", err)
		os.Exit(1)
	}

	for _, e := range events {
		fmt.Printf("  %v: objects %d/%d separated by %.4f km at (%.3f, %.3f) alt %.1f km\n",
			e.Time.Format(time.RFC3339), e.ObjectA, e.ObjectB, e.SeparationKm,
			e.Position.LatDeg, e.Position.LonDeg, e.Position.AltKm)
	}
	fmt.Printf("\nTotal conjunction events: %d\n", len(events))
}
