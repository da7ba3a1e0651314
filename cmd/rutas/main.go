package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rutas/internal/cache"
	"rutas/internal/config"
	"rutas/internal/engine"
	"rutas/internal/handler"
	"rutas/internal/hub"
	"rutas/internal/ingestor"
	"rutas/internal/middleware"
	"rutas/internal/querylog"
	"rutas/internal/store"
	"rutas/pkg/catalogsrc"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting rutas server",
		"version", version,
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"catalog_source", cfg.CatalogSource,
		"redis_enabled", cfg.RedisEnabled,
		"query_log_enabled", cfg.QueryLogEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(cfg.Tuning.EngineOptions(), logger)
	wsHub := hub.NewHub(logger)

	var (
		journeyCache handler.JourneyCache
		snapshots    ingestor.SnapshotStore
		purge        func(context.Context)
	)
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", "error", err)
		} else {
			defer redisCache.Close()
			jc := cache.NewJourneyCache(redisCache, cfg.CacheTTL, logger)
			journeyCache = jc
			purge = jc.Purge
			snapshots = cache.NewCatalogSnapshotter(redisCache, 0, logger)
		}
	}

	var queries handler.QueryRecorder
	if cfg.QueryLogEnabled {
		recorder, err := querylog.Open(ctx, cfg.QueryLogPath, logger)
		if err != nil {
			logger.Error("failed to open query log", "error", err)
			os.Exit(1)
		}
		defer recorder.Close()
		queries = recorder
	}

	eng.OnCatalogLoaded(func(stats store.CatalogStats) {
		if purge != nil {
			go purge(ctx)
		}
		routes, err := eng.GetAllRoutes()
		if err != nil {
			logger.Warn("failed to read catalog for notification", "error", err)
			return
		}
		wsHub.CatalogUpdated(stats, routes)
	})

	var catalogIng *ingestor.CatalogIngestor
	if cfg.CatalogSource != "" {
		src := catalogsrc.New(cfg.CatalogSource, store.MaxPayloadBytes, logger)
		catalogIng = ingestor.NewCatalogIngestor(src, eng, snapshots, cfg.CatalogRefreshInterval, logger)
		catalogIng.SetOnUpdate(func(context.Context, store.CatalogStats) {
			handler.ServerStats.IncCatalogUpdates()
		})
	}

	var stopsSource ingestor.Fetcher
	if cfg.StopsSource != "" {
		stopsSource = catalogsrc.New(cfg.StopsSource, store.MaxPayloadBytes, logger)
	}
	stopsIng := ingestor.NewStopsIngestor(stopsSource, eng, cfg.CatalogRefreshInterval, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	defer limiter.Close()
	limiter.OnBlocked(handler.ServerStats.IncRateLimitBlocked)

	router := handler.NewRouter(handler.RouterDeps{
		Engine:         eng,
		Hub:            wsHub,
		Cache:          journeyCache,
		Queries:        queries,
		Limiter:        limiter,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Version:        version,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go wsHub.Run(ctx)
	go stopsIng.Run(ctx)

	if catalogIng != nil {
		go catalogIng.Start(ctx)
	}

	if prunable, ok := queries.(*querylog.Recorder); ok {
		go pruneQueryLog(ctx, prunable, logger)
	}

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// pruneQueryLog drops unmatched queries not seen for 90 days, once a day.
func pruneQueryLog(ctx context.Context, r *querylog.Recorder, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Prune(ctx, time.Now().AddDate(0, 0, -90)); err != nil {
				logger.Warn("query log prune failed", "error", err)
			}
		}
	}
}
