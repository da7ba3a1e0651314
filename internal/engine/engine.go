// Package engine exposes the route-finding operations offered to hosts:
// catalog loading, route lookup, journey search and last-mile queries.
package engine

import (
	"log/slog"
	"sync"

	"rutas/internal/domain"
	"rutas/internal/journey"
	"rutas/internal/spatial"
	"rutas/internal/store"
)

// DefaultMinBalance is the minimum fare balance, in MXN, for a trip.
const DefaultMinBalance = 180.0

type Options struct {
	Search     journey.Options
	Spatial    spatial.Options
	MinBalance float64
}

func DefaultOptions() Options {
	return Options{
		Search:     journey.DefaultOptions(),
		Spatial:    spatial.DefaultOptions(),
		MinBalance: DefaultMinBalance,
	}
}

type Engine struct {
	store      *store.CatalogStore
	searcher   *journey.Searcher
	index      *spatial.Index
	minBalance float64
	logger     *slog.Logger

	mu        sync.RWMutex
	listeners []func(store.CatalogStats)
}

func New(opts Options, logger *slog.Logger) *Engine {
	catalog := store.NewCatalogStore(logger)
	return &Engine{
		store:      catalog,
		searcher:   journey.NewSearcher(catalog, opts.Search, logger),
		index:      spatial.NewIndex(catalog, opts.Spatial, logger),
		minBalance: opts.MinBalance,
		logger:     logger.With("component", "engine"),
	}
}

// OnCatalogLoaded registers fn to run after every successful load.
func (e *Engine) OnCatalogLoaded(fn func(store.CatalogStats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// LoadCatalog validates payload and makes it the live catalog. On error
// the previous catalog stays live.
func (e *Engine) LoadCatalog(payload []byte) error {
	if err := e.store.Load(payload); err != nil {
		return err
	}

	stats := e.store.GetStats()
	e.mu.RLock()
	listeners := e.listeners
	e.mu.RUnlock()
	for _, fn := range listeners {
		fn(stats)
	}
	return nil
}

func (e *Engine) GetRouteByID(id string) (*domain.Route, bool, error) {
	return e.store.GetRouteByID(id)
}

func (e *Engine) GetAllRoutes() ([]*domain.Route, error) {
	return e.store.GetAllRoutes()
}

func (e *Engine) FindRoute(origin, dest string) ([]domain.Journey, error) {
	return e.searcher.FindRoute(origin, dest)
}

// SearchWithStats is FindRoute plus the search work counters.
func (e *Engine) SearchWithStats(origin, dest string) ([]domain.Journey, journey.Stats, error) {
	return e.searcher.Search(origin, dest)
}

// FindNearestStop returns nil when no stop coordinates are known.
// QueryTooLong reports whether FindRoute would reject the inputs by length.
func (e *Engine) QueryTooLong(origin, dest string) bool {
	return e.searcher.QueryTooLong(origin, dest)
}

func (e *Engine) FindNearestStop(lat, lng float64) (*domain.StopInfo, error) {
	return e.index.FindNearestStop(lat, lng)
}

func (e *Engine) StopsWithin(lat, lng, radiusKm float64, limit int) ([]domain.StopInfo, error) {
	return e.index.StopsWithin(lat, lng, radiusKm, limit)
}

func (e *Engine) AnalyzeGap(userLat, userLng, destLat, destLng float64) (domain.GapAnalysis, error) {
	return e.index.AnalyzeGap(userLat, userLng, destLat, destLng)
}

// ValidateBalance reports whether amount covers the minimum balance.
// NaN never does.
func (e *Engine) ValidateBalance(amount float64) bool {
	return amount >= e.minBalance
}

func (e *Engine) SetSupplementaryStops(stops map[string][2]float64) int {
	n := e.index.SetSupplementaryStops(stops)
	e.logger.Info("supplementary stops updated", "accepted", n, "received", len(stops))
	return n
}

func (e *Engine) IsHub(name string) bool {
	return e.searcher.IsHub(name)
}

func (e *Engine) Stats() store.CatalogStats {
	return e.store.GetStats()
}

// IndexedStops returns how many stops the spatial index holds.
func (e *Engine) IndexedStops() (int, error) {
	return e.index.Len()
}
