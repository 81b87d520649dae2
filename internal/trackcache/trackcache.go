// Package trackcache provides an in-memory position cache with a rolling
// window.
//
// The cache holds the positions of every active object for [now, now+horizon]
// continuously. A background worker computes new position sets at the leading
// edge and evicts expired entries from the trailing edge. When the registry
// changes, the cache is rebuilt without interrupting reads.
package trackcache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/Al3xBlack0ut/satelity/internal/geo"
	"github.com/Al3xBlack0ut/satelity/internal/metrics"
	"github.com/Al3xBlack0ut/satelity/internal/orbit"
	"github.com/Al3xBlack0ut/satelity/internal/registry"
)

// Config holds cache configuration.
type Config struct {
	Step    time.Duration // position set interval (default 5s)
	Horizon time.Duration // how far ahead to cache (default 600s)
	Buffer  time.Duration // keep entries this long past expiration (default 60s)
}

// ObjectPosition is one object's position within a set.
type ObjectPosition struct {
	ObjectID int64 `json:"object_id"`
	geo.Position
}

// PositionSet holds all active objects' positions at one timestamp.
type PositionSet struct {
	Timestamp time.Time        `json:"timestamp"`
	Revision  uint64           `json:"catalog_revision"`
	Positions []ObjectPosition `json:"positions"`
}

type cacheEntry struct {
	set         *PositionSet
	generatedAt time.Time
}

// TrackCache is the rolling-window cache. Safe for concurrent use.
type TrackCache struct {
	mu      sync.RWMutex
	entries map[time.Time]*cacheEntry

	config Config
	prop   orbit.Propagator
	store  *registry.Store
	logger *slog.Logger

	// Registry revision the current window was built from.
	currentRevision atomic.Uint64

	// Counters (lock-free).
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	rebuilding atomic.Bool
}

// New creates a track cache over the given registry.
func New(config Config, prop orbit.Propagator, store *registry.Store, logger *slog.Logger) *TrackCache {
	if config.Step <= 0 {
		config.Step = 5 * time.Second
	}
	if config.Horizon <= 0 {
		config.Horizon = 600 * time.Second
	}
	if config.Buffer <= 0 {
		config.Buffer = 60 * time.Second
	}

	logger.Info("track cache initialized",
		"step_seconds", config.Step.Seconds(),
		"horizon_seconds", config.Horizon.Seconds(),
		"buffer_seconds", config.Buffer.Seconds(),
	)

	return &TrackCache{
		entries: make(map[time.Time]*cacheEntry),
		config:  config,
		prop:    prop,
		store:   store,
		logger:  logger,
	}
}

// RoundToStep rounds a timestamp down to the nearest step boundary so cache
// lookups hit consistently. Always converts to UTC first.
func (c *TrackCache) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(c.config.Step)
}

// Step returns the cache step.
func (c *TrackCache) Step() time.Duration {
	return c.config.Step
}

// Get returns the position set for the given timestamp, or nil if not cached.
// The timestamp is rounded to the step boundary.
func (c *TrackCache) Get(t time.Time) *PositionSet {
	key := c.RoundToStep(t)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
		metrics.IncCacheHits()
		return entry.set
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

// GetLatest returns the position set closest to (but not after) now.
func (c *TrackCache) GetLatest() *PositionSet {
	now := c.RoundToStep(time.Now())

	c.mu.RLock()
	defer c.mu.RUnlock()

	// Walk backwards from now to find the most recent entry.
	for i := 0; i < 10; i++ {
		key := now.Add(-time.Duration(i) * c.config.Step)
		if entry, ok := c.entries[key]; ok {
			c.hits.Add(1)
			metrics.IncCacheHits()
			return entry.set
		}
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

// compute builds the position set for one timestamp from the current registry
// snapshot. Objects whose elements fail to propagate are skipped with a
// warning so one bad record cannot blank the whole window.
func (c *TrackCache) compute(t time.Time) *PositionSet {
	objects := c.store.Snapshot()
	revision := c.store.Revision()

	start := time.Now()
	positions := make([]ObjectPosition, 0, len(objects))
	failed := 0
	for _, obj := range objects {
		if !obj.Active {
			continue
		}
		pos, err := c.prop.Propagate(obj.Elements, t.Sub(obj.Epoch).Seconds(), obj.InitialLonDeg)
		if err != nil {
			failed++
			c.logger.Warn("cache propagation failed", "object_id", obj.ID, "error", err)
			continue
		}
		positions = append(positions, ObjectPosition{ObjectID: obj.ID, Position: pos})
	}
	metrics.RecordPropagationBatch(time.Since(start), len(positions), failed)
	if failed > 0 {
		metrics.IncCacheRegenErrors()
	}

	return &PositionSet{
		Timestamp: c.RoundToStep(t),
		Revision:  revision,
		Positions: positions,
	}
}

// put stores a position set. Caller must not hold mu.
func (c *TrackCache) put(set *PositionSet) {
	entry := &cacheEntry{set: set, generatedAt: time.Now()}

	c.mu.Lock()
	c.entries[set.Timestamp] = entry
	count := len(c.entries)
	c.mu.Unlock()

	metrics.SetCacheEntries(count)
}

// evictExpired removes entries older than now - buffer.
func (c *TrackCache) evictExpired() int {
	cutoff := time.Now().Add(-c.config.Buffer)
	var removed int

	c.mu.Lock()
	for ts := range c.entries {
		if ts.Before(cutoff) {
			delete(c.entries, ts)
			removed++
		}
	}
	count := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddCacheEvictions(removed)
		metrics.SetCacheEntries(count)
		c.logger.Debug("cache eviction", "entries_removed", removed)
	}

	return removed
}

// replaceAll atomically replaces all cache entries (used during a rebuild).
func (c *TrackCache) replaceAll(newEntries map[time.Time]*cacheEntry) {
	c.mu.Lock()
	c.entries = newEntries
	count := len(c.entries)
	c.mu.Unlock()
	metrics.SetCacheEntries(count)
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Entries         int       `json:"entries"`
	SizeBytes       int64     `json:"size_bytes"`
	OldestTimestamp time.Time `json:"oldest_timestamp"`
	NewestTimestamp time.Time `json:"newest_timestamp"`
	Hits            int64     `json:"hits"`
	Misses          int64     `json:"misses"`
	Evictions       int64     `json:"evictions"`
	Rebuilding      bool      `json:"rebuilding"`
	Revision        uint64    `json:"catalog_revision"`
}

// Stats returns current cache statistics.
func (c *TrackCache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)

	var oldest, newest time.Time
	var size int64
	for ts, entry := range c.entries {
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
		if newest.IsZero() || ts.After(newest) {
			newest = ts
		}
		// Rough footprint: positions plus fixed per-entry overhead.
		size += int64(len(entry.set.Positions))*int64(unsafe.Sizeof(ObjectPosition{})) + 96
	}
	c.mu.RUnlock()

	return Stats{
		Entries:         count,
		SizeBytes:       size,
		OldestTimestamp: oldest,
		NewestTimestamp: newest,
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Evictions:       c.evictions.Load(),
		Rebuilding:      c.rebuilding.Load(),
		Revision:        c.currentRevision.Load(),
	}
}

// Start begins the background cache maintenance loop. It performs an initial
// warmup (filling the full [now, now+horizon] window), then continuously:
//   - Computes new position sets at the leading edge
//   - Evicts expired entries from the trailing edge
//   - Detects registry changes and triggers a rebuild
//
// Blocks until ctx is cancelled.
func (c *TrackCache) Start(ctx context.Context) {
	c.warmup(ctx)

	ticker := time.NewTicker(c.config.Step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("track cache worker stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// warmup fills the cache with position sets for [now, now+horizon].
func (c *TrackCache) warmup(ctx context.Context) {
	c.currentRevision.Store(c.store.Revision())

	now := c.RoundToStep(time.Now())
	numFrames := int(c.config.Horizon/c.config.Step) + 1

	c.logger.Info("track cache warmup starting",
		"frames", numFrames,
		"from", now.UTC().Format(time.RFC3339),
		"to", now.Add(c.config.Horizon).UTC().Format(time.RFC3339),
	)

	start := time.Now()
	for i := 0; i < numFrames; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.put(c.compute(now.Add(time.Duration(i) * c.config.Step)))
	}

	c.logger.Info("track cache warmup complete",
		"generated", numFrames,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// tick runs one iteration of the maintenance loop.
func (c *TrackCache) tick(ctx context.Context) {
	if c.store.Revision() != c.currentRevision.Load() {
		c.rebuild(ctx)
		return
	}

	c.generateLeadingEdge()
	c.evictExpired()
}

// generateLeadingEdge computes the position set at the leading edge of the
// window.
func (c *TrackCache) generateLeadingEdge() {
	target := c.RoundToStep(time.Now().Add(c.config.Horizon))

	c.mu.RLock()
	_, exists := c.entries[target]
	c.mu.RUnlock()
	if exists {
		return
	}

	c.put(c.compute(target))
}

// rebuild recomputes the entire window against the current registry revision.
// Reads against the old window continue uninterrupted until the atomic swap.
func (c *TrackCache) rebuild(ctx context.Context) {
	revision := c.store.Revision()
	c.logger.Info("track cache rebuild starting",
		"old_revision", c.currentRevision.Load(),
		"new_revision", revision,
	)

	c.rebuilding.Store(true)
	metrics.SetCacheRebuilding(true)
	defer func() {
		c.rebuilding.Store(false)
		metrics.SetCacheRebuilding(false)
	}()

	start := time.Now()
	now := c.RoundToStep(time.Now())
	numFrames := int(c.config.Horizon/c.config.Step) + 1

	newEntries := make(map[time.Time]*cacheEntry, numFrames)
	for i := 0; i < numFrames; i++ {
		select {
		case <-ctx.Done():
			c.logger.Warn("track cache rebuild cancelled")
			return
		default:
		}

		set := c.compute(now.Add(time.Duration(i) * c.config.Step))
		newEntries[set.Timestamp] = &cacheEntry{set: set, generatedAt: time.Now()}
	}

	c.replaceAll(newEntries)
	c.currentRevision.Store(revision)

	c.logger.Info("track cache rebuild complete",
		"frames", numFrames,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
