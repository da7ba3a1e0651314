package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rutas/internal/domain"
)

func newRoute(stops ...string) *domain.Route {
	r := &domain.Route{ID: "R"}
	for i, name := range stops {
		r.Stops = append(r.Stops, domain.Stop{Name: name, Order: i})
	}
	r.Normalize()
	return r
}

func TestMatch(t *testing.T) {
	route := newRoute("Plaza Las Américas", "El Crucero", "Terminal ADO Centro", "Zona Hotelera")

	tests := []struct {
		name    string
		query   string
		wantIdx int
		wantOK  bool
	}{
		{"exact", "El Crucero", 1, true},
		{"case and whitespace", "  el CRUCERO ", 1, true},
		{"one letter typo", "El Crocero", 1, true},
		{"substring of stop", "ado centro", 2, true},
		{"stop inside query", "parada zona hotelera km 9", 3, true},
		{"unrelated", "XyZ123Rubbish", -1, false},
		{"empty", "", -1, false},
		{"blank", "   ", -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := New(tt.query, DefaultThreshold).Match(route)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantIdx, idx)
		})
	}
}

func TestMatch_TiesKeepFirstIndex(t *testing.T) {
	route := newRoute("Mercado 28", "Hospital General", "Mercado 28")

	idx, ok := New("mercado 28", DefaultThreshold).Match(route)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestMatch_ThresholdIsStrict(t *testing.T) {
	route := newRoute("abc")
	m := New("abc", 1.0)

	_, ok := m.Match(route)
	assert.False(t, ok, "a perfect score must still exceed the threshold")
}

func TestMatch_EmptyStopNameNeverContains(t *testing.T) {
	route := newRoute("", "El Crucero")

	idx, ok := New("crucero", DefaultThreshold).Match(route)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestScore_ContainmentBoost(t *testing.T) {
	m := New("ado", DefaultThreshold)
	assert.GreaterOrEqual(t, m.Score("terminal ado centro"), 0.95)
}

func TestScore_CachedAcrossRoutes(t *testing.T) {
	m := New("el crucero", DefaultThreshold)

	m.Match(newRoute("El Crucero", "Mercado 28"))
	m.Match(newRoute("Mercado 28", "El Crucero", "Av. Kabah"))

	assert.Equal(t, 3, m.CacheSize())
}

func TestMatch_UnnormalizedRoute(t *testing.T) {
	route := &domain.Route{Stops: []domain.Stop{{Name: "Av. Kabah"}, {Name: "Villas Otoch"}}}

	idx, ok := New("villas otoch", DefaultThreshold).Match(route)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestMatch_PaddedStopNamesNormalizeLikeQueries(t *testing.T) {
	padded := newRoute("  Av. Kabah", "El Crucero  ")
	assert.Equal(t, []string{"av. kabah", "el crucero"}, padded.StopsNormalized)

	m := New(" El Crucero ", DefaultThreshold)
	idx, ok := m.Match(padded)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 1.0, m.Score(padded.StopsNormalized[1]))

	raw := &domain.Route{Stops: []domain.Stop{{Name: " Av. Kabah "}}}
	idx, ok = New("av. kabah", DefaultThreshold).Match(raw)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}
