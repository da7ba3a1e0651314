// Package journey finds ranked direct and single-transfer itineraries
// between two free-text places over the live catalog.
package journey

import (
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"rutas/internal/domain"
	"rutas/internal/matcher"
	"rutas/internal/store"
)

// DefaultHubs are well-known terminals preferred as transfer points.
var DefaultHubs = []string{
	"El Crucero",
	"Plaza Las Américas",
	"ADO Centro",
	"Zona Hotelera",
	"Muelle Ultramar",
}

type Options struct {
	Threshold      float64
	Hubs           []string
	MaxQueryLength int
	MaxResults     int
	MaxDirect      int
	MaxPairs       int
	MaxComparisons int
}

func DefaultOptions() Options {
	return Options{
		Threshold:      matcher.DefaultThreshold,
		Hubs:           DefaultHubs,
		MaxQueryLength: 100,
		MaxResults:     5,
		MaxDirect:      200,
		MaxPairs:       2000,
		MaxComparisons: 10_000_000,
	}
}

// SnapshotSource provides the live catalog generation.
type SnapshotSource interface {
	Snapshot() (*store.Snapshot, error)
}

type Searcher struct {
	source SnapshotSource
	opts   Options
	hubs   []string
	logger *slog.Logger
}

func NewSearcher(source SnapshotSource, opts Options, logger *slog.Logger) *Searcher {
	hubs := make([]string, 0, len(opts.Hubs))
	for _, h := range opts.Hubs {
		if n := domain.NormalizeName(h); n != "" {
			hubs = append(hubs, n)
		}
	}

	return &Searcher{
		source: source,
		opts:   opts,
		hubs:   hubs,
		logger: logger.With("component", "journey_search"),
	}
}

// Phase names reported in Stats.
const (
	PhaseGuard    = "guard"
	PhaseDirect   = "direct"
	PhaseTransfer = "transfer"
)

// Stats describes the work done by one search.
type Stats struct {
	Phase           string
	Generation      uint64
	RoutesScanned   int
	OriginMatches   int
	DestMatches     int
	Direct          int
	PairsConsidered int
	Comparisons     int
	Candidates      int
	CeilingHit      bool
}

// FindRoute returns at most MaxResults journeys from origin to dest.
// Over-long inputs yield an empty result rather than an error.
func (s *Searcher) FindRoute(origin, dest string) ([]domain.Journey, error) {
	journeys, _, err := s.Search(origin, dest)
	return journeys, err
}

// Search is FindRoute plus the work counters of the call.
func (s *Searcher) Search(origin, dest string) ([]domain.Journey, Stats, error) {
	start := time.Now()
	stats := Stats{Phase: PhaseGuard}

	if s.QueryTooLong(origin, dest) {
		s.logger.Debug("query rejected by length guard",
			"origin_len", len(origin),
			"dest_len", len(dest),
		)
		return []domain.Journey{}, stats, nil
	}

	snap, err := s.source.Snapshot()
	if err != nil {
		return nil, stats, err
	}
	stats.Generation = snap.Generation

	originMatcher := matcher.New(origin, s.opts.Threshold)
	destMatcher := matcher.New(dest, s.opts.Threshold)

	items, fromOrigin, toDest := s.findDirect(snap.Routes, originMatcher, destMatcher, &stats)
	if len(items) == 0 {
		stats.Phase = PhaseTransfer
		items = s.findTransfers(fromOrigin, toDest, &stats)
	}

	journeys := finalize(items, s.opts.MaxResults)

	s.logger.Debug("route search completed",
		"origin", originMatcher.Query(),
		"dest", destMatcher.Query(),
		"phase", stats.Phase,
		"generation", stats.Generation,
		"routes_scanned", stats.RoutesScanned,
		"origin_matches", stats.OriginMatches,
		"dest_matches", stats.DestMatches,
		"pairs", stats.PairsConsidered,
		"comparisons", stats.Comparisons,
		"ceiling_hit", stats.CeilingHit,
		"results", len(journeys),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return journeys, stats, nil
}

// resolved is a route together with the stop index a query matched on it.
type resolved struct {
	route *domain.Route
	idx   int
}

func (s *Searcher) findDirect(routes []*domain.Route, om, dm *matcher.Matcher, stats *Stats) ([]ranked, []resolved, []resolved) {
	stats.Phase = PhaseDirect

	var (
		direct     []ranked
		fromOrigin []resolved
		toDest     []resolved
	)

	for _, route := range routes {
		stats.RoutesScanned++

		oi, okOrigin := om.Match(route)
		di, okDest := dm.Match(route)

		if okOrigin {
			stats.OriginMatches++
			fromOrigin = append(fromOrigin, resolved{route: route, idx: oi})
		}
		if okDest {
			stats.DestMatches++
			toDest = append(toDest, resolved{route: route, idx: di})
		}

		// Routes run both ways, so any two distinct stops make a direct trip.
		if okOrigin && okDest && oi != di {
			direct = append(direct, ranked{journey: domain.Journey{
				Kind:       domain.JourneyDirect,
				Legs:       []*domain.Route{route},
				TotalPrice: route.Price,
			}})
			if len(direct) >= s.opts.MaxDirect {
				stats.CeilingHit = true
				break
			}
		}
	}

	stats.Direct = len(direct)
	if len(direct) > 0 {
		sortByPrice(direct)
		if len(direct) > s.opts.MaxResults {
			direct = direct[:s.opts.MaxResults]
		}
	}
	return direct, fromOrigin, toDest
}

type candidate struct {
	a, b     *domain.Route
	stopName string
	price    float64
	hub      bool
}

func (s *Searcher) findTransfers(fromOrigin, toDest []resolved, stats *Stats) []ranked {
	lookups := make(map[*domain.Route]map[string]int, len(toDest))
	var candidates []candidate

search:
	for _, a := range fromOrigin {
		for _, b := range toDest {
			if a.route.ID == b.route.ID {
				continue
			}
			if stats.PairsConsidered >= s.opts.MaxPairs || stats.Comparisons >= s.opts.MaxComparisons {
				stats.CeilingHit = true
				break search
			}
			stats.PairsConsidered++

			lookup, ok := lookups[b.route]
			if !ok {
				if stats.Comparisons+len(b.route.Stops) > s.opts.MaxComparisons {
					stats.CeilingHit = true
					break search
				}
				stats.Comparisons += len(b.route.Stops)
				lookup = stopIndex(b.route)
				lookups[b.route] = lookup
			}

			c, found, exhausted := s.sharedStop(a, b, lookup, stats)
			if found {
				candidates = append(candidates, c)
			}
			if exhausted {
				stats.CeilingHit = true
				break search
			}
		}
	}

	stats.Candidates = len(candidates)
	rankCandidates(candidates)
	if len(candidates) > s.opts.MaxResults {
		candidates = candidates[:s.opts.MaxResults]
	}

	items := make([]ranked, 0, len(candidates))
	for _, c := range candidates {
		point := c.stopName
		items = append(items, ranked{
			journey: domain.Journey{
				Kind:          domain.JourneyTransfer,
				Legs:          []*domain.Route{c.a, c.b},
				TransferPoint: &point,
				TotalPrice:    c.price,
			},
			hub: c.hub,
		})
	}
	return items
}

// sharedStop scans a after its origin stop for a stop that b serves before
// its destination stop. A hub stop wins over the first stop found.
func (s *Searcher) sharedStop(a, b resolved, lookup map[string]int, stats *Stats) (candidate, bool, bool) {
	var (
		first    string
		found    bool
		hubStop  string
		hubFound bool
	)

	exhausted := false
	for i := a.idx + 1; i < len(a.route.Stops); i++ {
		if stats.Comparisons >= s.opts.MaxComparisons {
			exhausted = true
			break
		}
		stats.Comparisons++

		name := normalizedAt(a.route, i)
		j, ok := lookup[name]
		if !ok || j >= b.idx {
			continue
		}

		display := a.route.Stops[i].Name
		if !found {
			first, found = display, true
		}
		if s.isHub(name) {
			hubStop, hubFound = display, true
			break
		}
	}

	if !found {
		return candidate{}, false, exhausted
	}

	c := candidate{
		a:        a.route,
		b:        b.route,
		stopName: first,
		price:    a.route.Price + b.route.Price,
	}
	if hubFound {
		c.stopName = hubStop
		c.hub = true
	}
	return c, true, exhausted
}

func (s *Searcher) isHub(normalized string) bool {
	for _, h := range s.hubs {
		if strings.Contains(normalized, h) {
			return true
		}
	}
	return false
}

// QueryTooLong reports whether either input exceeds MaxQueryLength
// characters. Such queries always yield an empty result.
func (s *Searcher) QueryTooLong(origin, dest string) bool {
	return utf8.RuneCountInString(origin) > s.opts.MaxQueryLength ||
		utf8.RuneCountInString(dest) > s.opts.MaxQueryLength
}

// IsHub reports whether a stop name contains one of the preferred hubs.
func (s *Searcher) IsHub(name string) bool {
	return s.isHub(domain.NormalizeName(name))
}

// stopIndex maps each normalized stop name of r to its first position.
func stopIndex(r *domain.Route) map[string]int {
	idx := make(map[string]int, len(r.Stops))
	for i := range r.Stops {
		name := normalizedAt(r, i)
		if _, ok := idx[name]; !ok {
			idx[name] = i
		}
	}
	return idx
}

func normalizedAt(r *domain.Route, i int) string {
	if len(r.StopsNormalized) == len(r.Stops) {
		return r.StopsNormalized[i]
	}
	return domain.NormalizeName(r.Stops[i].Name)
}
