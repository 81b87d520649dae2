package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/Al3xBlack0ut/satelity/internal/api"
	"github.com/Al3xBlack0ut/satelity/internal/auth"
	"github.com/Al3xBlack0ut/satelity/internal/catalog"
	"github.com/Al3xBlack0ut/satelity/internal/conjunction"
	"github.com/Al3xBlack0ut/satelity/internal/health"
	"github.com/Al3xBlack0ut/satelity/internal/metrics"
	"github.com/Al3xBlack0ut/satelity/internal/observability"
	"github.com/Al3xBlack0ut/satelity/internal/orbit"
	"github.com/Al3xBlack0ut/satelity/internal/registry"
	"github.com/Al3xBlack0ut/satelity/internal/stream"
	"github.com/Al3xBlack0ut/satelity/internal/trackcache"
	"github.com/Al3xBlack0ut/satelity/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("SATELITY_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), logger)
	if err != nil {
		logger.Error("invalid tracing configuration", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	consts := orbit.DefaultConstants()
	store := registry.NewStore(consts)
	prop := orbit.NewKeplerian(consts)

	snapCfg := loadSnapshotConfig(logger)
	snapshots := registry.NewSnapshots(snapCfg.Dir, snapCfg.MaxFiles)

	// Attempt to restore the catalog from the latest snapshot on startup.
	cat, savedAt, err := snapshots.LoadLatest()
	if err != nil {
		logger.Info("no catalog snapshot found, starting empty", "error", err)
	} else if err := store.Restore(cat); err != nil {
		logger.Warn("failed to restore catalog snapshot", "error", err)
	} else {
		orbits, sats := store.Counts()
		logger.Info("restored catalog from snapshot",
			"orbits", orbits, "satellites", sats, "saved_at", savedAt.Format(time.RFC3339))
	}
	metrics.SetCatalogCounts(store.Counts())

	cacheCfg := loadCacheConfig(logger)
	tCache := trackcache.New(cacheCfg, prop, store, logger)

	detector := conjunction.NewDetector(prop, consts, loadSweepConfig(logger), logger)

	importCfg := loadImportConfig(logger)
	fetcher := catalog.NewFetcher(importCfg.SourceURL, logger)
	importer := catalog.NewImporter(store, fetcher, importCfg.Operator, logger)

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(tCache, store, streamCfg, logger)

	srv := api.NewServer(addr, logger, authCfg, api.Deps{
		Store:    store,
		Cache:    tCache,
		Detector: detector,
		Prop:     prop,
		Importer: importer,
		Stream:   streamHandler,
		Static:   http.FileServerFS(web.Content),
	})

	// Start cache background worker.
	go tCache.Start(ctx)

	// Periodically persist the catalog when it has changed.
	go func() {
		ticker := time.NewTicker(snapCfg.Interval)
		defer ticker.Stop()
		lastSaved := store.Revision()
		for {
			select {
			case <-ticker.C:
				rev := store.Revision()
				if rev == lastSaved {
					continue
				}
				if err := snapshots.Save(store.Export(), time.Now().UTC()); err != nil {
					logger.Warn("failed to save catalog snapshot", "error", err)
					continue
				}
				lastSaved = rev
				logger.Debug("saved catalog snapshot", "revision", rev)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()
	health.SetReady(true)

	<-ctx.Done()
	health.SetReady(false)
	logger.Info("shutting down server...")

	// Best-effort final snapshot so a restart picks up where we left off.
	if err := snapshots.Save(store.Export(), time.Now().UTC()); err != nil {
		logger.Warn("failed to save final catalog snapshot", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("SATELITY_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("SATELITY_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("SATELITY_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("SATELITY_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

type snapshotConfig struct {
	Dir      string
	MaxFiles int
	Interval time.Duration
}

func loadSnapshotConfig(logger *slog.Logger) snapshotConfig {
	cfg := snapshotConfig{
		Dir:      "/tmp/satelity/snapshots",
		MaxFiles: 5,
		Interval: 300 * time.Second,
	}

	if v := os.Getenv("SATELITY_SNAPSHOT_DIR"); v != "" {
		cfg.Dir = v
	}

	if v := os.Getenv("SATELITY_SNAPSHOT_MAX_FILES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATELITY_SNAPSHOT_MAX_FILES value, using default", "value", v, "default", 5)
		} else {
			cfg.MaxFiles = n
		}
	}

	if v := os.Getenv("SATELITY_SNAPSHOT_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATELITY_SNAPSHOT_INTERVAL value, using default", "value", v, "default", 300)
		} else {
			cfg.Interval = time.Duration(n) * time.Second
		}
	}

	logger.Info("snapshot config",
		"dir", cfg.Dir,
		"max_files", cfg.MaxFiles,
		"interval_seconds", cfg.Interval.Seconds(),
	)

	return cfg
}

func loadCacheConfig(logger *slog.Logger) trackcache.Config {
	cfg := trackcache.Config{
		Step:    5 * time.Second,
		Horizon: 600 * time.Second,
		Buffer:  60 * time.Second,
	}

	if v := os.Getenv("SATELITY_CACHE_STEP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATELITY_CACHE_STEP value, using default", "value", v, "default", 5)
		} else {
			cfg.Step = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SATELITY_CACHE_HORIZON"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATELITY_CACHE_HORIZON value, using default", "value", v, "default", 600)
		} else {
			cfg.Horizon = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SATELITY_CACHE_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATELITY_CACHE_BUFFER value, using default", "value", v, "default", 60)
		} else {
			cfg.Buffer = time.Duration(n) * time.Second
		}
	}

	logger.Info("cache config",
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
		"buffer_seconds", cfg.Buffer.Seconds(),
	)

	return cfg
}

func loadSweepConfig(logger *slog.Logger) conjunction.Config {
	cfg := conjunction.Config{
		MaxSteps:    conjunction.DefaultMaxSteps,
		Parallelism: runtime.NumCPU(),
	}

	if v := os.Getenv("SATELITY_SWEEP_THRESHOLD_KM"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			logger.Warn("invalid SATELITY_SWEEP_THRESHOLD_KM value, using default", "value", v)
		} else {
			cfg.ThresholdKm = f
		}
	}

	if v := os.Getenv("SATELITY_SWEEP_MAX_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATELITY_SWEEP_MAX_STEPS value, using default", "value", v, "default", conjunction.DefaultMaxSteps)
		} else {
			cfg.MaxSteps = n
		}
	}

	if v := os.Getenv("SATELITY_SWEEP_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATELITY_SWEEP_PARALLELISM value, using default", "value", v, "default", cfg.Parallelism)
		} else {
			cfg.Parallelism = n
		}
	}

	logger.Info("sweep config",
		"threshold_km", cfg.ThresholdKm,
		"max_steps", cfg.MaxSteps,
		"parallelism", cfg.Parallelism,
	)

	return cfg
}

type importConfig struct {
	SourceURL string
	Operator  string
}

func loadImportConfig(logger *slog.Logger) importConfig {
	cfg := importConfig{}

	if v := os.Getenv("SATELITY_TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}
	if v := os.Getenv("SATELITY_IMPORT_OPERATOR"); v != "" {
		cfg.Operator = v
	}

	logger.Info("import config", "source_url", cfg.SourceURL, "operator", cfg.Operator)

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		MaxConcurrent:      1000,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("SATELITY_STREAM_MAX_CONCURRENT_PER_IP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATELITY_STREAM_MAX_CONCURRENT_PER_IP value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("SATELITY_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATELITY_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 1000)
		} else {
			cfg.MaxConcurrent = n
		}
	}

	if v := os.Getenv("SATELITY_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATELITY_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SATELITY_STREAM_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SATELITY_STREAM_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = b
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_concurrent", cfg.MaxConcurrent,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}
