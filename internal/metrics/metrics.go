// Package metrics defines the Prometheus collectors for the satelity service:
// HTTP traffic, propagation and conjunction-sweep timings, catalog sizes,
// position-cache effectiveness, and SSE stream activity.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satelity_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "satelity_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "satelity_propagation_duration_seconds",
			Help:    "Time to propagate all tracked objects to one timestamp.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	propagationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satelity_propagations_total",
			Help: "Total single-object propagations, by outcome.",
		},
		[]string{"outcome"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "satelity_conjunction_sweep_duration_seconds",
			Help:    "Wall time of a full conjunction detection sweep.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
		},
	)

	sweepSteps = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "satelity_conjunction_sweep_steps",
			Help:    "Number of timestamps sampled per sweep.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	conjunctionEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satelity_conjunction_events_total",
			Help: "Total conjunction events reported across all sweeps.",
		},
	)

	catalogOrbits = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satelity_catalog_orbits",
			Help: "Current number of cataloged orbits.",
		},
	)

	catalogSatellites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satelity_catalog_satellites",
			Help: "Current number of cataloged satellites.",
		},
	)

	cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satelity_position_cache_hits_total",
			Help: "Position cache lookups served from the rolling window.",
		},
	)

	cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satelity_position_cache_misses_total",
			Help: "Position cache lookups that fell outside the window.",
		},
	)

	cacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satelity_position_cache_evictions_total",
			Help: "Position sets evicted from the trailing edge of the window.",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satelity_position_cache_entries",
			Help: "Position sets currently held in the rolling window.",
		},
	)

	cacheRegenErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satelity_position_cache_regeneration_errors_total",
			Help: "Failed attempts to compute a position set for the cache.",
		},
	)

	cacheRebuilding = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satelity_position_cache_rebuilding",
			Help: "1 while the cache is rebuilding after a catalog change.",
		},
	)

	streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satelity_stream_connections_total",
			Help: "SSE stream connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satelity_streams_active",
			Help: "Currently connected SSE streams.",
		},
	)

	streamMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satelity_stream_messages_total",
			Help: "SSE data messages sent.",
		},
	)

	streamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satelity_stream_bytes_total",
			Help: "Bytes written to SSE streams.",
		},
	)

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satelity_stream_errors_total",
			Help: "SSE stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		propagationDuration,
		propagationsTotal,
		sweepDuration,
		sweepSteps,
		conjunctionEventsTotal,
		catalogOrbits,
		catalogSatellites,
		cacheHits,
		cacheMisses,
		cacheEvictions,
		cacheEntries,
		cacheRegenErrors,
		cacheRebuilding,
		streamConnections,
		streamsActive,
		streamMessages,
		streamBytes,
		streamErrors,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagationBatch records the wall time of one propagate-all pass and
// the per-object outcomes.
func RecordPropagationBatch(d time.Duration, success, failed int) {
	propagationDuration.Observe(d.Seconds())
	propagationsTotal.WithLabelValues("success").Add(float64(success))
	if failed > 0 {
		propagationsTotal.WithLabelValues("error").Add(float64(failed))
	}
}

// RecordSweep records one completed conjunction sweep.
func RecordSweep(d time.Duration, steps, events int) {
	sweepDuration.Observe(d.Seconds())
	sweepSteps.Observe(float64(steps))
	conjunctionEventsTotal.Add(float64(events))
}

// SetCatalogCounts updates the catalog size gauges.
func SetCatalogCounts(orbits, satellites int) {
	catalogOrbits.Set(float64(orbits))
	catalogSatellites.Set(float64(satellites))
}

func IncCacheHits()           { cacheHits.Inc() }
func IncCacheMisses()         { cacheMisses.Inc() }
func AddCacheEvictions(n int) { cacheEvictions.Add(float64(n)) }
func SetCacheEntries(n int)   { cacheEntries.Set(float64(n)) }
func IncCacheRegenErrors()    { cacheRegenErrors.Inc() }
func SetCacheRebuilding(active bool) {
	if active {
		cacheRebuilding.Set(1)
	} else {
		cacheRebuilding.Set(0)
	}
}

func IncStreamConnections(event string) { streamConnections.WithLabelValues(event).Inc() }
func IncStreamsActive()                 { streamsActive.Inc() }
func DecStreamsActive()                 { streamsActive.Dec() }
func IncStreamMessages()                { streamMessages.Inc() }
func AddStreamBytes(n int64)            { streamBytes.Add(float64(n)) }
func IncStreamErrors(reason string)     { streamErrors.WithLabelValues(reason).Inc() }

// knownRoutes are exact paths recorded with their own label.
var knownRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/orbits":           true,
	"/api/v1/satellites":       true,
	"/api/v1/conjunctions":     true,
	"/api/v1/catalog/import":   true,
	"/api/v1/cache/stats":      true,
	"/api/v1/stream/positions": true,
}

// normalizeRoute collapses parameterized paths to a single label so the
// scraped series stay bounded no matter how many catalog ids exist. Unknown
// paths (bots, scanners) all map to "other".
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/orbits/"); ok {
		if isID(rest) {
			return "/api/v1/orbits/{id}"
		}
		return "other"
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/satellites/"); ok {
		if isID(rest) {
			return "/api/v1/satellites/{id}"
		}
		if id, tail, found := strings.Cut(rest, "/"); found && isID(id) && tail == "position" {
			return "/api/v1/satellites/{id}/position"
		}
		return "other"
	}

	return "other"
}

func isID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
