// Package timegrid plans the fixed-step timestamp grids used to sample a time
// interval. A grid is lazy, finite, and restartable: it stores only its start,
// step, and element count, and enumerates timestamps on demand.
package timegrid

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strconv"
	"time"
)

var (
	// ErrInvalidStepSpec reports an unrecognized step duration token.
	ErrInvalidStepSpec = errors.New("invalid step spec")
	// ErrInvalidInterval reports an interval whose end precedes its start.
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrIntervalTooLarge reports a range/step combination whose step count
	// exceeds the safety ceiling. Unbounded grids are a resource-exhaustion
	// vector, so callers must pass an explicit ceiling.
	ErrIntervalTooLarge = errors.New("interval too large")
)

// stepPattern matches a positive integer followed by a unit token.
var stepPattern = regexp.MustCompile(`^(\d+)(ms|s|m|h|d)$`)

var unitDurations = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
}

// ParseStep converts a step spec token such as "1m", "30s", or "1d" into a
// duration. The value must be at least 1.
func ParseStep(spec string) (time.Duration, error) {
	m := stepPattern.FindStringSubmatch(spec)
	if m == nil {
		return 0, fmt.Errorf("%w: %q (expected e.g. 1ms, 30s, 1m, 2h, 1d)", ErrInvalidStepSpec, spec)
	}

	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || value < 1 {
		return 0, fmt.Errorf("%w: %q (value must be >= 1)", ErrInvalidStepSpec, spec)
	}

	return time.Duration(value) * unitDurations[m[2]], nil
}

// Grid is a finite arithmetic sequence of timestamps: start, start+step, ...
// up to but excluding the interval end.
type Grid struct {
	start time.Time
	step  time.Duration
	count int
}

// New builds a grid over [start, end) at the given step. The first element is
// exactly start and the endpoint is excluded; an empty interval (end == start)
// yields exactly one element. maxSteps caps the element count (0 disables the
// ceiling).
func New(start, end time.Time, step time.Duration, maxSteps int) (Grid, error) {
	if step <= 0 {
		return Grid{}, fmt.Errorf("%w: step %v must be positive", ErrInvalidStepSpec, step)
	}
	if end.Before(start) {
		return Grid{}, fmt.Errorf("%w: end %s before start %s",
			ErrInvalidInterval, end.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339))
	}

	// Quotient-then-remainder keeps the ceiling division overflow-safe: a
	// multi-century interval saturates end.Sub(start) at math.MaxInt64, and
	// adding step-1 before dividing would wrap negative.
	count := 1
	if d := end.Sub(start); d > 0 {
		count = int(d / step)
		if d%step > 0 {
			count++
		}
	}

	if maxSteps > 0 && count > maxSteps {
		return Grid{}, fmt.Errorf("%w: %d steps exceed ceiling %d", ErrIntervalTooLarge, count, maxSteps)
	}

	return Grid{start: start, step: step, count: count}, nil
}

// Count returns the number of timestamps in the grid.
func (g Grid) Count() int {
	return g.count
}

// Step returns the grid spacing.
func (g Grid) Step() time.Duration {
	return g.step
}

// At returns the i-th timestamp. i must be in [0, Count()).
func (g Grid) At(i int) time.Time {
	return g.start.Add(time.Duration(i) * g.step)
}

// Times enumerates all timestamps in order. The sequence can be ranged over
// any number of times.
func (g Grid) Times() iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for i := 0; i < g.count; i++ {
			if !yield(g.At(i)) {
				return
			}
		}
	}
}
