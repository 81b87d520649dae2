package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Al3xBlack0ut/satelity/internal/orbit"
	"github.com/Al3xBlack0ut/satelity/internal/registry"
	"github.com/Al3xBlack0ut/satelity/internal/trackcache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func testStore(t *testing.T) *registry.Store {
	t.Helper()
	store := registry.NewStore(orbit.DefaultConstants())
	orb, err := store.CreateOrbit(registry.OrbitRecord{
		Name:           "leo shell",
		AltitudeKm:     550,
		InclinationDeg: 53,
		RAANDeg:        0,
	})
	if err != nil {
		t.Fatalf("CreateOrbit: %v", err)
	}
	if _, err := store.CreateSatellite(registry.SatelliteRecord{
		Name:       "bird-1",
		Operator:   "testlab",
		LaunchedAt: time.Now().Add(-time.Hour),
		Status:     registry.StatusActive,
		OrbitID:    orb.ID,
	}); err != nil {
		t.Fatalf("CreateSatellite: %v", err)
	}
	return store
}

func testCache(store *registry.Store) *trackcache.TrackCache {
	return trackcache.New(trackcache.Config{
		Step:    5 * time.Second,
		Horizon: 30 * time.Second,
		Buffer:  10 * time.Second,
	}, orbit.NewKeplerian(store.Constants()), store, testLogger())
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
	}
}

// TestMetadataMessageJSON verifies the metadata message format.
func TestMetadataMessageJSON(t *testing.T) {
	msg := metadataMessage{
		Type:            "metadata",
		CatalogRevision: 17,
		ObjectCount:     42,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	if parsed["type"] != "metadata" {
		t.Errorf("type = %v, want metadata", parsed["type"])
	}
	if parsed["catalog_revision"].(float64) != 17 {
		t.Errorf("catalog_revision = %v, want 17", parsed["catalog_revision"])
	}
	if parsed["object_count"].(float64) != 42 {
		t.Errorf("object_count = %v, want 42", parsed["object_count"])
	}
}

// TestBatchMessageJSON verifies the position batch serialization.
func TestBatchMessageJSON(t *testing.T) {
	msg := positionBatchMessage{
		Type: "position_batch",
		T:    "2026-03-01T12:00:00Z",
		Objects: []trackcache.ObjectPosition{
			{ObjectID: 7},
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	if parsed["type"] != "position_batch" {
		t.Errorf("type = %v, want position_batch", parsed["type"])
	}
	if parsed["t"] != "2026-03-01T12:00:00Z" {
		t.Errorf("t = %v, want 2026-03-01T12:00:00Z", parsed["t"])
	}

	objects, ok := parsed["objects"].([]any)
	if !ok || len(objects) != 1 {
		t.Fatalf("objects = %v, want 1-element array", parsed["objects"])
	}
	obj := objects[0].(map[string]any)
	if obj["object_id"].(float64) != 7 {
		t.Errorf("objects[0].object_id = %v, want 7", obj["object_id"])
	}
	for _, field := range []string{"latitude_deg", "longitude_deg", "altitude_km"} {
		if _, ok := obj[field]; !ok {
			t.Errorf("objects[0] missing %s", field)
		}
	}
}

// TestSSEMessageFormat verifies the SSE wire format: "data: {json}\n\n".
func TestSSEMessageFormat(t *testing.T) {
	store := testStore(t)
	handler := NewHandler(testCache(store), store, Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  5 * time.Second,
	}, testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/positions?step=1", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	// Cancel the request shortly after the metadata message.
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.HandlePositions(w, req)

	resp := w.Result()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	// Parse the SSE body for the metadata message.
	body := w.Body.String()
	scanner := bufio.NewScanner(strings.NewReader(body))
	var foundMetadata bool

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			jsonStr := strings.TrimPrefix(line, "data: ")
			var msg map[string]any
			if err := json.Unmarshal([]byte(jsonStr), &msg); err != nil {
				t.Errorf("invalid JSON in SSE data line: %v", err)
				continue
			}
			if msg["type"] == "metadata" {
				foundMetadata = true
				if _, ok := msg["catalog_revision"]; !ok {
					t.Error("metadata missing catalog_revision")
				}
				if msg["object_count"].(float64) != 1 {
					t.Errorf("object_count = %v, want 1", msg["object_count"])
				}
			}
		}
	}

	if !foundMetadata {
		t.Error("did not receive metadata message")
	}

	// Verify SSE format: lines should be "data: ...", "retry: ...",
	// ":" (keepalive), or empty.
	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") && line != ":" {
			if strings.TrimSpace(line) != "" {
				t.Errorf("unexpected SSE line: %q", line)
			}
		}
	}
}

// TestRateLimiting verifies per-IP concurrent stream limits.
func TestRateLimiting(t *testing.T) {
	limiter := newConnLimiter(3, 100)

	// Acquire up to the limit.
	var firstRelease func()
	for i := 0; i < 3; i++ {
		release, ok := limiter.acquire("10.0.0.1")
		if !ok {
			t.Fatalf("acquire %d should succeed", i+1)
		}
		if i == 0 {
			firstRelease = release
		}
	}

	// 4th should fail.
	if _, ok := limiter.acquire("10.0.0.1"); ok {
		t.Error("acquire beyond limit should fail")
	}

	// Different IP should still work.
	if _, ok := limiter.acquire("10.0.0.2"); !ok {
		t.Error("different IP should not be rate limited")
	}

	// Release one and try again.
	firstRelease()
	if _, ok := limiter.acquire("10.0.0.1"); !ok {
		t.Error("acquire after release should succeed")
	}

	// Calling a release twice must not free a second slot.
	firstRelease()
	if c := limiter.active("10.0.0.1"); c != 3 {
		t.Errorf("active = %d, want 3", c)
	}
	if c := limiter.active("10.0.0.2"); c != 1 {
		t.Errorf("active = %d, want 1", c)
	}
}

// TestRateLimitingGlobalCap verifies the global cap fires across IPs.
func TestRateLimitingGlobalCap(t *testing.T) {
	limiter := newConnLimiter(10, 2)

	if _, ok := limiter.acquire("10.0.0.1"); !ok {
		t.Fatal("first acquire should succeed")
	}
	release, ok := limiter.acquire("10.0.0.2")
	if !ok {
		t.Fatal("second acquire should succeed")
	}
	if _, ok := limiter.acquire("10.0.0.3"); ok {
		t.Error("acquire beyond global cap should fail")
	}

	release()
	if _, ok := limiter.acquire("10.0.0.3"); !ok {
		t.Error("acquire after release should succeed")
	}
}

// TestRateLimitingConcurrent verifies rate limiter thread safety.
func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newConnLimiter(100, 100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, ok := limiter.acquire("10.0.0.1"); ok {
				defer release()
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.active("10.0.0.1"); c != 0 {
		t.Errorf("active after all released = %d, want 0", c)
	}
}

// TestRateLimitHTTPResponse verifies 429 response when limit exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	store := testStore(t)
	handler := NewHandler(testCache(store), store, Config{
		MaxConcurrentPerIP: 1,
		KeepaliveInterval:  30 * time.Second,
	}, testLogger())

	// Hold the first connection open.
	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/positions", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		ctx, cancel := context.WithCancel(req.Context())
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		go func() {
			// Signal ready after short delay to allow acquire.
			time.Sleep(50 * time.Millisecond)
			close(ready)
			// Hold connection for a bit.
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		handler.HandlePositions(w, req)
	}()

	// Wait for first connection to be established.
	<-ready

	// Second connection from same IP should get 429.
	req := httptest.NewRequest("GET", "/api/v1/stream/positions", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.HandlePositions(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	<-done
}

// TestInvalidQueryParams verifies error responses for bad step values.
func TestInvalidQueryParams(t *testing.T) {
	store := testStore(t)
	handler := NewHandler(testCache(store), store, testConfig(), testLogger())

	tests := []struct {
		name  string
		query string
	}{
		{"bad step", "?step=0"},
		{"step too large", "?step=100"},
		{"step non-numeric", "?step=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/positions"+tt.query, nil)
			req.RemoteAddr = "127.0.0.1:12345"
			w := httptest.NewRecorder()
			handler.HandlePositions(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}
