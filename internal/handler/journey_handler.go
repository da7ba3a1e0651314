package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rutas/internal/domain"
	"rutas/internal/engine"
	"rutas/internal/querylog"
)

// JourneyCache caches search results per catalog fingerprint.
type JourneyCache interface {
	Get(ctx context.Context, fingerprint, origin, dest string) ([]domain.Journey, bool, error)
	Put(ctx context.Context, fingerprint, origin, dest string, journeys []domain.Journey) error
}

// QueryRecorder keeps searches that found nothing.
type QueryRecorder interface {
	Record(ctx context.Context, origin, dest string, generation uint64) error
	Top(ctx context.Context, limit int) ([]querylog.UnmatchedQuery, error)
}

type JourneyHandler struct {
	engine  *engine.Engine
	cache   JourneyCache
	queries QueryRecorder
	logger  *slog.Logger
}

// NewJourneyHandler builds the search handler. cache and queries may be nil.
func NewJourneyHandler(e *engine.Engine, cache JourneyCache, queries QueryRecorder, logger *slog.Logger) *JourneyHandler {
	return &JourneyHandler{
		engine:  e,
		cache:   cache,
		queries: queries,
		logger:  logger.With("handler", "journey"),
	}
}

type JourneysResponse struct {
	Origin      string           `json:"origin"`
	Destination string           `json:"destination"`
	Journeys    []domain.Journey `json:"journeys"`
	Count       int              `json:"count"`
	Cached      bool             `json:"cached"`
	ServerTime  time.Time        `json:"server_time"`
}

func (h *JourneyHandler) FindRoute(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	origin := r.URL.Query().Get("origin")
	dest := r.URL.Query().Get("dest")
	if strings.TrimSpace(origin) == "" || strings.TrimSpace(dest) == "" {
		respondError(w, http.StatusBadRequest, "origin and dest parameters are required")
		return
	}

	// Over-long inputs are answered empty before the cache, whose keys
	// ignore surrounding whitespace.
	if h.engine.QueryTooLong(origin, dest) {
		h.respond(w, origin, dest, nil, false)
		return
	}

	stats := h.engine.Stats()
	if h.cache != nil && stats.IsLoaded {
		journeys, ok, err := h.cache.Get(ctx, stats.Fingerprint, origin, dest)
		if err == nil && ok {
			ServerStats.IncCacheHits()
			h.logger.Debug("FindRoute cache hit", "duration_ms", time.Since(start).Milliseconds())
			h.respond(w, origin, dest, journeys, true)
			return
		}
		ServerStats.IncCacheMisses()
	}

	journeys, search, err := h.engine.SearchWithStats(origin, dest)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	// Empty results are not cached so every miss reaches the query log.
	if h.cache != nil && len(journeys) > 0 && search.Generation == stats.Generation {
		if err := h.cache.Put(ctx, stats.Fingerprint, origin, dest, journeys); err != nil {
			h.logger.Warn("failed to cache journeys", "error", err)
		}
	}
	if len(journeys) == 0 && h.queries != nil {
		if err := h.queries.Record(ctx, origin, dest, search.Generation); err != nil {
			h.logger.Warn("failed to record unmatched query", "error", err)
		}
	}

	h.logger.Debug("FindRoute response",
		"phase", search.Phase,
		"results", len(journeys),
		"ceiling_hit", search.CeilingHit,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	h.respond(w, origin, dest, journeys, false)
}

func (h *JourneyHandler) respond(w http.ResponseWriter, origin, dest string, journeys []domain.Journey, cached bool) {
	if journeys == nil {
		journeys = []domain.Journey{}
	}
	respondJSON(w, http.StatusOK, JourneysResponse{
		Origin:      origin,
		Destination: dest,
		Journeys:    journeys,
		Count:       len(journeys),
		Cached:      cached,
		ServerTime:  time.Now(),
	})
}

type UnmatchedResponse struct {
	Queries []querylog.UnmatchedQuery `json:"queries"`
	Count   int                       `json:"count"`
}

func (h *JourneyHandler) UnmatchedQueries(w http.ResponseWriter, r *http.Request) {
	if h.queries == nil {
		respondError(w, http.StatusNotFound, "query log disabled")
		return
	}

	limit := queryInt(r, "limit", querylog.DefaultLimit, 200)
	queries, err := h.queries.Top(r.Context(), limit)
	if err != nil {
		h.logger.Error("UnmatchedQueries failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read query log")
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	respondJSON(w, http.StatusOK, UnmatchedResponse{Queries: queries, Count: len(queries)})
}
