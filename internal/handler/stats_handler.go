package handler

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"rutas/internal/engine"
	"rutas/internal/middleware"
)

// Stats tracks server-wide metrics
type Stats struct {
	startTime        time.Time
	requestCount     atomic.Int64
	wsConnections    atomic.Int64
	wsMessagesIn     atomic.Int64
	wsMessagesOut    atomic.Int64
	cacheHits        atomic.Int64
	cacheMisses      atomic.Int64
	rateLimitBlocked atomic.Int64
	catalogUpdates   atomic.Int64
}

// Global stats instance
var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()         { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections()    { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections()    { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()     { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut()    { s.wsMessagesOut.Add(1) }
func (s *Stats) IncCacheHits()        { s.cacheHits.Add(1) }
func (s *Stats) IncCacheMisses()      { s.cacheMisses.Add(1) }
func (s *Stats) IncRateLimitBlocked() { s.rateLimitBlocked.Add(1) }
func (s *Stats) IncCatalogUpdates()   { s.catalogUpdates.Add(1) }

// ClientCounter reports connected websocket clients.
type ClientCounter interface {
	ClientCount() int
}

type StatsHandler struct {
	engine  *engine.Engine
	clients ClientCounter
	limiter *middleware.RateLimiter
	version string
}

// NewStatsHandler builds the stats endpoint. clients and limiter may be nil.
func NewStatsHandler(e *engine.Engine, clients ClientCounter, limiter *middleware.RateLimiter, version string) *StatsHandler {
	return &StatsHandler{
		engine:  e,
		clients: clients,
		limiter: limiter,
		version: version,
	}
}

type StatsResponse struct {
	Server    ServerStatsResponse      `json:"server"`
	Catalog   CatalogSummaryResponse   `json:"catalog"`
	WebSocket WebSocketStatsResponse   `json:"websocket"`
	Cache     CacheStatsResponse       `json:"cache"`
	RateLimit *middleware.LimiterStats `json:"rate_limit,omitempty"`
	Go        GoStatsResponse          `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	RateLimited   int64     `json:"rate_limited"`
	Version       string    `json:"version"`
}

type CatalogSummaryResponse struct {
	Routes     int       `json:"routes"`
	Stops      int       `json:"stops"`
	Version    string    `json:"version"`
	Generation uint64    `json:"generation"`
	IsLoaded   bool      `json:"is_loaded"`
	LastUpdate time.Time `json:"last_update"`
	// SourceUpdates counts catalogs applied by the background ingestor.
	SourceUpdates int64 `json:"source_updates"`
}

type WebSocketStatsResponse struct {
	Clients     int   `json:"clients"`
	Connections int64 `json:"connections"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
}

type CacheStatsResponse struct {
	Hits   int64   `json:"hits"`
	Misses int64   `json:"misses"`
	Ratio  float64 `json:"hit_ratio"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(ServerStats.startTime)

	catalog := h.engine.Stats()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	hits := ServerStats.cacheHits.Load()
	misses := ServerStats.cacheMisses.Load()
	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}

	clients := 0
	if h.clients != nil {
		clients = h.clients.ClientCount()
	}

	var limits *middleware.LimiterStats
	if h.limiter != nil {
		ls := h.limiter.Stats()
		limits = &ls
	}

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
			RateLimited:   ServerStats.rateLimitBlocked.Load(),
			Version:       h.version,
		},
		Catalog: CatalogSummaryResponse{
			Routes:     catalog.RoutesCount,
			Stops:      catalog.StopsCount,
			Version:    catalog.Version,
			Generation: catalog.Generation,
			IsLoaded:   catalog.IsLoaded,
			LastUpdate: catalog.LastUpdate,

			SourceUpdates: ServerStats.catalogUpdates.Load(),
		},
		WebSocket: WebSocketStatsResponse{
			Clients:     clients,
			Connections: ServerStats.wsConnections.Load(),
			MessagesIn:  ServerStats.wsMessagesIn.Load(),
			MessagesOut: ServerStats.wsMessagesOut.Load(),
		},
		Cache: CacheStatsResponse{
			Hits:   hits,
			Misses: misses,
			Ratio:  ratio,
		},
		RateLimit: limits,
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(response)
}
