// Package matcher resolves free-text stop queries against the stops of a route.
package matcher

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"rutas/internal/domain"
)

const (
	DefaultThreshold = 0.75

	// containmentScore is the floor applied when one name contains the other.
	containmentScore = 0.95
)

// Matcher scores one query against many routes. Scores are cached by
// normalized stop name for the lifetime of the Matcher, so a Matcher is
// meant to live for a single search and is not safe for concurrent use.
type Matcher struct {
	query     string
	threshold float64
	metric    *metrics.JaroWinkler
	cache     map[string]float64
}

func New(query string, threshold float64) *Matcher {
	metric := metrics.NewJaroWinkler()
	metric.CaseSensitive = true

	return &Matcher{
		query:     domain.NormalizeName(query),
		threshold: threshold,
		metric:    metric,
		cache:     make(map[string]float64),
	}
}

// Query returns the normalized query text.
func (m *Matcher) Query() string {
	return m.query
}

// Match returns the index of the best-scoring stop of route, if its score
// exceeds the threshold. Ties keep the lowest index.
func (m *Matcher) Match(route *domain.Route) (int, bool) {
	if m.query == "" {
		return -1, false
	}

	best, bestScore := -1, 0.0
	for i := range route.Stops {
		score := m.Score(normalizedAt(route, i))
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 || bestScore <= m.threshold {
		return -1, false
	}
	return best, true
}

// Score returns the similarity in [0,1] between the query and an already
// normalized stop name.
func (m *Matcher) Score(stop string) float64 {
	if score, ok := m.cache[stop]; ok {
		return score
	}

	score := strutil.Similarity(m.query, stop, m.metric)
	if m.query != "" && stop != "" && (strings.Contains(stop, m.query) || strings.Contains(m.query, stop)) {
		score = max(score, containmentScore)
	}

	m.cache[stop] = score
	return score
}

// CacheSize reports how many distinct stop names were scored.
func (m *Matcher) CacheSize() int {
	return len(m.cache)
}

func normalizedAt(route *domain.Route, i int) string {
	if len(route.StopsNormalized) == len(route.Stops) {
		return route.StopsNormalized[i]
	}
	return domain.NormalizeName(route.Stops[i].Name)
}
