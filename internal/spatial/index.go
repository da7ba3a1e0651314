// Package spatial answers nearest-stop and coverage-gap queries over the
// stop coordinates of the live catalog.
package spatial

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/rtree"
	"golang.org/x/sync/singleflight"

	"rutas/internal/domain"
	"rutas/internal/geo"
	"rutas/internal/store"
)

const (
	DefaultReferenceLat = 21.1
	DefaultCandidates   = 8
	DefaultWalkKm       = 0.5
	DefaultPrivateKm    = 3.0

	kmPerDegree = 111.195
)

type Options struct {
	// ReferenceLat is the latitude whose cosine scales longitudes so that
	// planar distance in the tree approximates ground distance.
	ReferenceLat float64
	// Candidates is how many planar nearest entries are re-ranked by
	// haversine distance.
	Candidates int
	WalkKm     float64
	PrivateKm  float64
}

func DefaultOptions() Options {
	return Options{
		ReferenceLat: DefaultReferenceLat,
		Candidates:   DefaultCandidates,
		WalkKm:       DefaultWalkKm,
		PrivateKm:    DefaultPrivateKm,
	}
}

// CatalogSource provides the live catalog generation.
type CatalogSource interface {
	Snapshot() (*store.Snapshot, error)
}

type entry struct {
	name     string
	lat, lng float64
}

// Index is rebuilt lazily whenever the catalog generation or the
// supplementary stop set changes. Every tree is built from one catalog
// snapshot, so a query never sees stops from two generations.
type Index struct {
	source   CatalogSource
	opts     Options
	lngScale float64
	logger   *slog.Logger

	mu         sync.RWMutex
	tree       *rtree.RTree
	count      int
	built      bool
	catalogGen uint64
	suppGen    uint64
	builds     int

	rebuilds singleflight.Group

	suppMu  sync.RWMutex
	supp    map[string][2]float64
	suppVer uint64
}

func NewIndex(source CatalogSource, opts Options, logger *slog.Logger) *Index {
	if opts.Candidates < 1 {
		opts.Candidates = 1
	}
	return &Index{
		source:   source,
		opts:     opts,
		lngScale: math.Cos(opts.ReferenceLat * math.Pi / 180),
		tree:     &rtree.RTree{},
		supp:     map[string][2]float64{},
		logger:   logger.With("component", "spatial_index"),
	}
}

// SetSupplementaryStops replaces the extra named stop coordinates indexed
// alongside the catalog. Entries with invalid coordinates are dropped.
func (x *Index) SetSupplementaryStops(stops map[string][2]float64) int {
	next := make(map[string][2]float64, len(stops))
	for name, c := range stops {
		if name == "" || geo.ValidatePoint(c[0], c[1], "stop") != nil {
			continue
		}
		next[name] = c
	}

	x.suppMu.Lock()
	x.supp = next
	x.suppVer++
	x.suppMu.Unlock()

	return len(next)
}

func (x *Index) supplementary() (map[string][2]float64, uint64) {
	x.suppMu.RLock()
	defer x.suppMu.RUnlock()
	return x.supp, x.suppVer
}

// inputs returns the catalog routes and supplementary stops the tree
// should currently reflect, with their generations.
func (x *Index) inputs() ([]*domain.Route, uint64, map[string][2]float64, uint64, error) {
	var (
		routes     []*domain.Route
		catalogGen uint64
	)
	snap, err := x.source.Snapshot()
	switch {
	case err == nil:
		routes, catalogGen = snap.Routes, snap.Generation
	case errors.Is(err, store.ErrNotLoaded):
	default:
		return nil, 0, nil, 0, err
	}

	supp, suppGen := x.supplementary()
	return routes, catalogGen, supp, suppGen, nil
}

func (x *Index) isFresh(catalogGen, suppGen uint64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.built && x.catalogGen == catalogGen && x.suppGen == suppGen
}

// refresh rebuilds the tree when its inputs changed. Concurrent callers
// share one rebuild; queries keep the previous tree until the new one is
// swapped in.
func (x *Index) refresh() error {
	_, catalogGen, _, suppGen, err := x.inputs()
	if err != nil {
		return err
	}
	if x.isFresh(catalogGen, suppGen) {
		return nil
	}

	_, err, _ = x.rebuilds.Do("rebuild", func() (interface{}, error) {
		return nil, x.rebuild()
	})
	return err
}

func (x *Index) rebuild() error {
	routes, catalogGen, supp, suppGen, err := x.inputs()
	if err != nil {
		return err
	}
	// A flight that finished just before this one may already cover these inputs.
	if x.isFresh(catalogGen, suppGen) {
		return nil
	}

	start := time.Now()
	tree, count := x.build(routes, supp)

	x.mu.Lock()
	if !x.built || (catalogGen >= x.catalogGen && suppGen >= x.suppGen) {
		x.tree, x.count = tree, count
		x.catalogGen, x.suppGen = catalogGen, suppGen
		x.built = true
	}
	x.builds++
	x.mu.Unlock()

	x.logger.Info("spatial index rebuilt",
		"catalog_generation", catalogGen,
		"supplementary_version", suppGen,
		"stops", count,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (x *Index) build(routes []*domain.Route, supp map[string][2]float64) (*rtree.RTree, int) {
	tree := &rtree.RTree{}
	seen := make(map[entry]struct{})

	add := func(e entry) {
		if _, dup := seen[e]; dup {
			return
		}
		seen[e] = struct{}{}
		p := x.point(e.lat, e.lng)
		tree.Insert(p, p, e)
	}

	for _, route := range routes {
		for _, stop := range route.Stops {
			lat, lng := stop.Lat, stop.Lng
			// Stops listed without coordinates borrow them from the
			// supplementary set when the name is known there.
			if lat == 0 && lng == 0 {
				c, ok := supp[stop.Name]
				if !ok {
					continue
				}
				lat, lng = c[0], c[1]
			}
			add(entry{name: stop.Name, lat: lat, lng: lng})
		}
	}
	for name, c := range supp {
		add(entry{name: name, lat: c[0], lng: c[1]})
	}

	return tree, len(seen)
}

func (x *Index) point(lat, lng float64) [2]float64 {
	return [2]float64{lat, lng * x.lngScale}
}

// Len returns the number of indexed stops, rebuilding first if needed.
func (x *Index) Len() (int, error) {
	if err := x.refresh(); err != nil {
		return 0, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.count, nil
}

// FindNearestStop returns the stop with the smallest haversine distance
// among the closest planar candidates, or nil when no stop is indexed.
func (x *Index) FindNearestStop(lat, lng float64) (*domain.StopInfo, error) {
	if err := x.refresh(); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.nearest(lat, lng), nil
}

func (x *Index) nearest(lat, lng float64) *domain.StopInfo {
	q := x.point(lat, lng)
	candidates := make([]entry, 0, x.opts.Candidates)

	x.tree.Nearby(
		func(min, max [2]float64, _ interface{}, _ bool) float64 {
			return boxDistSq(q, min, max)
		},
		func(_, _ [2]float64, data interface{}, _ float64) bool {
			candidates = append(candidates, data.(entry))
			return len(candidates) < x.opts.Candidates
		},
	)

	var best *domain.StopInfo
	for _, c := range candidates {
		d := geo.HaversineKm(lat, lng, c.lat, c.lng)
		if best == nil || d < best.DistanceKm {
			best = &domain.StopInfo{Name: c.name, Lat: c.lat, Lng: c.lng, DistanceKm: d}
		}
	}
	return best
}

// StopsWithin returns indexed stops within radiusKm of the point, nearest first.
func (x *Index) StopsWithin(lat, lng, radiusKm float64, limit int) ([]domain.StopInfo, error) {
	if err := x.refresh(); err != nil {
		return nil, err
	}

	// Pad the box so the scaled-longitude approximation never clips a
	// stop that is inside the true radius.
	dLat := radiusKm / kmPerDegree * 1.1
	dLng := radiusKm / (kmPerDegree * math.Max(math.Cos(lat*math.Pi/180), 0.01)) * 1.1
	lo := x.point(lat-dLat, lng-dLng)
	hi := x.point(lat+dLat, lng+dLng)

	var result []domain.StopInfo
	x.mu.RLock()
	x.tree.Search(lo, hi, func(_, _ [2]float64, data interface{}) bool {
		e := data.(entry)
		if d := geo.HaversineKm(lat, lng, e.lat, e.lng); d <= radiusKm {
			result = append(result, domain.StopInfo{Name: e.name, Lat: e.lat, Lng: e.lng, DistanceKm: d})
		}
		return true
	})
	x.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].DistanceKm < result[j].DistanceKm
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// AnalyzeGap classifies last-mile reachability from the origin side.
func (x *Index) AnalyzeGap(userLat, userLng, destLat, destLng float64) (domain.GapAnalysis, error) {
	if err := x.refresh(); err != nil {
		return domain.GapAnalysis{}, err
	}

	x.mu.RLock()
	origin := x.nearest(userLat, userLng)
	dest := x.nearest(destLat, destLng)
	x.mu.RUnlock()

	return domain.GapAnalysis{
		OriginGap:      origin,
		DestGap:        dest,
		Recommendation: x.classify(origin),
	}, nil
}

func (x *Index) classify(origin *domain.StopInfo) domain.Recommendation {
	switch {
	case origin == nil || origin.DistanceKm > x.opts.PrivateKm:
		return domain.RecommendNoPublicCoverage
	case origin.DistanceKm < x.opts.WalkKm:
		return domain.RecommendWalk
	default:
		return domain.RecommendPrivate
	}
}

func boxDistSq(p, min, max [2]float64) float64 {
	var d float64
	for i := 0; i < 2; i++ {
		switch {
		case p[i] < min[i]:
			d += (min[i] - p[i]) * (min[i] - p[i])
		case p[i] > max[i]:
			d += (p[i] - max[i]) * (p[i] - max[i])
		}
	}
	return d
}
