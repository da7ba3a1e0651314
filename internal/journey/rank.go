package journey

import (
	"sort"

	"rutas/internal/domain"
)

// ranked is a journey plus what the final ordering needs to know about it.
type ranked struct {
	journey domain.Journey
	hub     bool
}

// comparePrice orders prices ascending. Incomparable values (NaN) compare
// as equal so sorting never depends on them.
func comparePrice(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func sortByPrice(items []ranked) {
	sort.SliceStable(items, func(i, j int) bool {
		return comparePrice(items[i].journey.TotalPrice, items[j].journey.TotalPrice) < 0
	})
}

func rankCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].hub != candidates[j].hub {
			return candidates[i].hub
		}
		return comparePrice(candidates[i].price, candidates[j].price) < 0
	})
}

func score(r ranked) int {
	switch {
	case r.journey.Kind == domain.JourneyDirect:
		return 2
	case r.hub:
		return 1
	default:
		return 0
	}
}

// finalize orders by score then price, keeps the first limit entries and
// detaches their legs from the shared catalog.
func finalize(items []ranked, limit int) []domain.Journey {
	sort.SliceStable(items, func(i, j int) bool {
		si, sj := score(items[i]), score(items[j])
		if si != sj {
			return si > sj
		}
		return comparePrice(items[i].journey.TotalPrice, items[j].journey.TotalPrice) < 0
	})
	if len(items) > limit {
		items = items[:limit]
	}

	result := make([]domain.Journey, len(items))
	for i, item := range items {
		j := item.journey
		legs := make([]*domain.Route, len(j.Legs))
		for k, leg := range j.Legs {
			legs[k] = leg.Clone()
		}
		j.Legs = legs
		result[i] = j
	}
	return result
}
