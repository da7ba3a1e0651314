package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"rutas/internal/engine"
)

type HealthHandler struct {
	engine *engine.Engine
}

func NewHealthHandler(e *engine.Engine) *HealthHandler {
	return &HealthHandler{engine: e}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready          bool      `json:"ready"`
	RoutesCount    int       `json:"routes_count"`
	CatalogVersion string    `json:"catalog_version,omitempty"`
	ServerTime     time.Time `json:"server_time"`
}

// Readyz reports ready once any catalog is live, whether it was fetched,
// restored from a snapshot or posted.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()
	status := http.StatusOK
	if !stats.IsLoaded {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ReadyResponse{
		Ready:          stats.IsLoaded,
		RoutesCount:    stats.RoutesCount,
		CatalogVersion: stats.Version,
		ServerTime:     time.Now(),
	})
}
