// Package conjunction finds close approaches between tracked objects. A sweep
// samples a time grid, propagates every active object to each timestamp, and
// reports the pairs whose three-dimensional separation falls under the
// threshold.
package conjunction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Al3xBlack0ut/satelity/internal/geo"
	"github.com/Al3xBlack0ut/satelity/internal/metrics"
	"github.com/Al3xBlack0ut/satelity/internal/orbit"
	"github.com/Al3xBlack0ut/satelity/internal/registry"
	"github.com/Al3xBlack0ut/satelity/internal/timegrid"
)

// DefaultMaxSteps caps the number of sampled timestamps per sweep when the
// config leaves it unset.
const DefaultMaxSteps = 100000

// Event is one close approach between two objects at one sampled timestamp.
// ObjectA is always the lower of the two ids; Position is object A's.
type Event struct {
	ObjectA      int64        `json:"object_a"`
	ObjectB      int64        `json:"object_b"`
	Time         time.Time    `json:"time"`
	Position     geo.Position `json:"position"`
	SeparationKm float64      `json:"separation_km"`
}

// Config tunes a Detector. Zero values select defaults.
type Config struct {
	ThresholdKm float64 // default separation threshold when a request omits one
	MaxSteps    int     // ceiling on sampled timestamps per sweep
	Parallelism int     // concurrent timestamp workers, defaults to NumCPU
}

// Detector runs conjunction sweeps against a fixed propagator.
type Detector struct {
	prop   orbit.Propagator
	consts orbit.Constants
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// NewDetector builds a Detector. consts supplies the body radius used for
// separation distances and the fallback threshold.
func NewDetector(prop orbit.Propagator, consts orbit.Constants, cfg Config, logger *slog.Logger) *Detector {
	if cfg.ThresholdKm <= 0 {
		cfg.ThresholdKm = consts.DefaultThresholdKm
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.NumCPU()
	}
	return &Detector{
		prop:   prop,
		consts: consts,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("satelity/conjunction"),
	}
}

// Detect sweeps [start, end) on the given step and returns every pair of
// active objects closer than thresholdKm at a sampled timestamp, sorted by
// (time, object A, object B). thresholdKm <= 0 selects the configured
// default. Inactive objects are skipped; with fewer than two active objects
// the result is empty. Any propagation failure aborts the whole sweep.
func (d *Detector) Detect(ctx context.Context, objects []registry.TrackedObject, start, end time.Time, stepSpec string, thresholdKm float64) ([]Event, error) {
	if thresholdKm <= 0 {
		thresholdKm = d.cfg.ThresholdKm
	}

	step, err := timegrid.ParseStep(stepSpec)
	if err != nil {
		return nil, err
	}
	grid, err := timegrid.New(start, end, step, d.cfg.MaxSteps)
	if err != nil {
		return nil, err
	}

	active := make([]registry.TrackedObject, 0, len(objects))
	for _, obj := range objects {
		if obj.Active {
			active = append(active, obj)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	ctx, span := d.tracer.Start(ctx, "conjunction.sweep", trace.WithAttributes(
		attribute.Int("sweep.objects", len(active)),
		attribute.Int("sweep.steps", grid.Count()),
		attribute.Float64("sweep.threshold_km", thresholdKm),
	))
	defer span.End()

	began := time.Now()

	if len(active) < 2 {
		metrics.RecordSweep(time.Since(began), grid.Count(), 0)
		return []Event{}, nil
	}

	// Each timestamp is scanned in its own goroutine, bounded by a semaphore.
	// The first propagation failure cancels the remaining workers.
	perStep := make([][]Event, grid.Count())
	errs := make([]error, grid.Count())
	sem := make(chan struct{}, d.cfg.Parallelism)
	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < grid.Count(); i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-sweepCtx.Done():
				errs[idx] = sweepCtx.Err()
				return
			}

			events, err := d.scanStep(active, grid.At(idx), thresholdKm)
			if err != nil {
				errs[idx] = err
				cancel()
				return
			}
			perStep[idx] = events
		}(i)
	}
	wg.Wait()

	// Prefer a real propagation error over the cancellations it caused.
	var firstErr error
	for _, e := range errs {
		if e == nil || errors.Is(e, context.Canceled) {
			continue
		}
		firstErr = e
		break
	}
	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, "sweep aborted")
		return nil, firstErr
	}

	events := make([]Event, 0)
	for _, stepEvents := range perStep {
		events = append(events, stepEvents...)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Time.Equal(events[j].Time) {
			return events[i].Time.Before(events[j].Time)
		}
		if events[i].ObjectA != events[j].ObjectA {
			return events[i].ObjectA < events[j].ObjectA
		}
		return events[i].ObjectB < events[j].ObjectB
	})

	elapsed := time.Since(began)
	metrics.RecordSweep(elapsed, grid.Count(), len(events))
	span.SetAttributes(attribute.Int("sweep.events", len(events)))
	d.logger.Info("conjunction sweep complete",
		"objects", len(active),
		"steps", grid.Count(),
		"events", len(events),
		"threshold_km", thresholdKm,
		"duration", elapsed.Round(time.Microsecond).String(),
	)
	return events, nil
}

// scanStep propagates every active object to t and scans all pairs. active
// must be sorted by id so emitted pairs keep object A < object B.
func (d *Detector) scanStep(active []registry.TrackedObject, t time.Time, thresholdKm float64) ([]Event, error) {
	positions := make([]geo.Position, len(active))
	for i, obj := range active {
		pos, err := d.prop.Propagate(obj.Elements, t.Sub(obj.Epoch).Seconds(), obj.InitialLonDeg)
		if err != nil {
			return nil, fmt.Errorf("propagate object %d at %s: %w", obj.ID, t.Format(time.RFC3339), err)
		}
		positions[i] = pos
	}

	var events []Event
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			sep := positions[i].DistanceKm(positions[j], d.consts.EarthRadiusKm)
			if sep < thresholdKm {
				events = append(events, Event{
					ObjectA:      active[i].ID,
					ObjectB:      active[j].ID,
					Time:         t,
					Position:     positions[i],
					SeparationKm: sep,
				})
			}
		}
	}
	return events, nil
}
