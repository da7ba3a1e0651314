package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rutas/internal/domain"
	"rutas/internal/engine"
	"rutas/internal/store"
)

type CatalogHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewCatalogHandler(e *engine.Engine, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		engine: e,
		logger: logger.With("handler", "catalog"),
	}
}

// LoadCatalog replaces the live catalog with the request body.
func (h *CatalogHandler) LoadCatalog(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, store.MaxPayloadBytes+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondEngineError(w, store.ErrPayloadTooLarge)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := h.engine.LoadCatalog(payload); err != nil {
		h.logger.Warn("LoadCatalog rejected", "error", err, "size_bytes", len(payload))
		respondEngineError(w, err)
		return
	}

	stats := h.engine.Stats()
	h.logger.Info("LoadCatalog accepted",
		"version", stats.Version,
		"generation", stats.Generation,
		"routes", stats.RoutesCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	respondJSON(w, http.StatusOK, stats)
}

type RoutesResponse struct {
	Routes     []*domain.Route `json:"routes"`
	Count      int             `json:"count"`
	Version    string          `json:"version,omitempty"`
	ServerTime time.Time       `json:"server_time"`
}

func (h *CatalogHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	stats := h.engine.Stats()
	if stats.IsLoaded {
		etag := fmt.Sprintf(`"%s"`, stats.Fingerprint)
		if r.Header.Get("If-None-Match") == etag {
			h.logger.Debug("ListRoutes not modified (ETag match)")
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}

	routes, err := h.engine.GetAllRoutes()
	if err != nil {
		respondEngineError(w, err)
		return
	}

	h.logger.Debug("ListRoutes response",
		"count", len(routes),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondJSON(w, http.StatusOK, RoutesResponse{
		Routes:     routes,
		Count:      len(routes),
		Version:    stats.Version,
		ServerTime: time.Now(),
	})
}

func (h *CatalogHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing route id")
		return
	}

	route, ok, err := h.engine.GetRouteByID(id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if !ok {
		h.logger.Debug("GetRoute not found", "id", id)
		respondError(w, http.StatusNotFound, "route not found")
		return
	}

	respondJSON(w, http.StatusOK, route)
}

type CatalogStatsResponse struct {
	store.CatalogStats
	IndexedStops int `json:"indexed_stops"`
}

func (h *CatalogHandler) Stats(w http.ResponseWriter, r *http.Request) {
	indexed, err := h.engine.IndexedStops()
	if err != nil {
		respondEngineError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	respondJSON(w, http.StatusOK, CatalogStatsResponse{
		CatalogStats: h.engine.Stats(),
		IndexedStops: indexed,
	})
}
