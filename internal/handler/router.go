package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"rutas/internal/engine"
	"rutas/internal/hub"
	"rutas/internal/middleware"
)

// RouterDeps are the collaborators behind the HTTP API. Cache, Queries
// and Limiter are optional.
type RouterDeps struct {
	Engine         *engine.Engine
	Hub            *hub.Hub
	Cache          JourneyCache
	Queries        QueryRecorder
	Limiter        *middleware.RateLimiter
	AllowedOrigins []string
	Version        string
	Logger         *slog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	catalogHandler := NewCatalogHandler(d.Engine, d.Logger)
	journeyHandler := NewJourneyHandler(d.Engine, d.Cache, d.Queries, d.Logger)
	stopsHandler := NewStopsHandler(d.Engine, d.Logger)
	healthHandler := NewHealthHandler(d.Engine)
	var clients ClientCounter
	if d.Hub != nil {
		clients = d.Hub
	}
	statsHandler := NewStatsHandler(d.Engine, clients, d.Limiter, d.Version)

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "If-None-Match", RequestIDHeader},
		ExposedHeaders: []string{"ETag", RequestIDHeader, "Retry-After", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	if d.Hub != nil {
		wsHandler := NewWSHandler(d.Hub, d.Engine, d.AllowedOrigins, d.Logger)
		r.Get("/v1/ws", wsHandler.ServeWS)
	}

	r.Group(func(r chi.Router) {
		if d.Limiter != nil {
			d.Limiter.SetCost(RequestCost)
			r.Use(d.Limiter.Middleware)
		}
		r.Use(GzipMiddleware)

		r.Post("/v1/catalog", catalogHandler.LoadCatalog)
		r.Get("/v1/catalog/stats", catalogHandler.Stats)
		r.Get("/v1/routes", catalogHandler.ListRoutes)
		r.Get("/v1/routes/{id}", catalogHandler.GetRoute)

		r.Get("/v1/journeys", journeyHandler.FindRoute)
		r.Get("/v1/queries/unmatched", journeyHandler.UnmatchedQueries)

		r.Get("/v1/stops/nearest", stopsHandler.Nearest)
		r.Get("/v1/stops/nearby", stopsHandler.Nearby)
		r.Get("/v1/gap", stopsHandler.Gap)
		r.Get("/v1/balance/validate", stopsHandler.ValidateBalance)

		r.Get("/v1/stats", statsHandler.GetStats)
	})

	return r
}

// RequestCost prices a request in rate limit units. Journey searches and
// catalog uploads are the expensive calls.
func RequestCost(r *http.Request) int {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/catalog":
		return 10
	case r.URL.Path == "/v1/journeys":
		return 3
	default:
		return 1
	}
}
