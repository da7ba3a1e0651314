package journey

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rutas/internal/domain"
	"rutas/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func route(id string, price float64, stops ...string) *domain.Route {
	r := &domain.Route{ID: id, Name: id, Price: price, TransportKind: domain.TransportKindBus}
	for i, name := range stops {
		r.Stops = append(r.Stops, domain.Stop{Name: name, Order: i})
	}
	return r
}

func loadedStore(t *testing.T, routes ...*domain.Route) *store.CatalogStore {
	t.Helper()
	data, err := json.Marshal(domain.Catalog{Version: "test", Routes: routes})
	require.NoError(t, err)

	s := store.NewCatalogStore(testLogger())
	require.NoError(t, s.Load(data))
	return s
}

func newSearcher(t *testing.T, routes ...*domain.Route) *Searcher {
	return NewSearcher(loadedStore(t, routes...), DefaultOptions(), testLogger())
}

func legIDs(j domain.Journey) []string {
	ids := make([]string, len(j.Legs))
	for i, leg := range j.Legs {
		ids[i] = leg.ID
	}
	return ids
}

func TestFindRoute_InputGuardBeforeLoad(t *testing.T) {
	searcher := NewSearcher(store.NewCatalogStore(testLogger()), DefaultOptions(), testLogger())
	long := strings.Repeat("a", 101)

	got, err := searcher.FindRoute(long, "B")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	got, err = searcher.FindRoute("A", long)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindRoute_GuardCountsCharacters(t *testing.T) {
	searcher := newSearcher(t, route("R1", 15, "Plaza Las Américas", "El Crucero"))

	// 100 two-byte characters are within the limit.
	_, stats, err := searcher.Search(strings.Repeat("é", 100), "El Crucero")
	require.NoError(t, err)
	assert.NotEqual(t, PhaseGuard, stats.Phase)
}

func TestFindRoute_NotLoaded(t *testing.T) {
	searcher := NewSearcher(store.NewCatalogStore(testLogger()), DefaultOptions(), testLogger())

	_, err := searcher.FindRoute("A", "B")
	assert.ErrorIs(t, err, store.ErrNotLoaded)
}

func TestFindRoute_DirectBothDirections(t *testing.T) {
	searcher := newSearcher(t, route("R1", 15, "A", "B", "C"))

	for _, q := range [][2]string{{"A", "C"}, {"C", "A"}} {
		t.Run(q[0]+"->"+q[1], func(t *testing.T) {
			got, err := searcher.FindRoute(q[0], q[1])
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, domain.JourneyDirect, got[0].Kind)
			assert.Equal(t, []string{"R1"}, legIDs(got[0]))
			assert.Equal(t, 15.0, got[0].TotalPrice)
			assert.Nil(t, got[0].TransferPoint)
		})
	}
}

func TestFindRoute_SameStopIsNotDirect(t *testing.T) {
	searcher := newSearcher(t, route("R1", 15, "A", "B", "C"))

	got, err := searcher.FindRoute("B", "B")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindRoute_SingleTransfer(t *testing.T) {
	searcher := newSearcher(t,
		route("R_A", 12, "Start", "Hub", "X"),
		route("R_B", 10, "Y", "Hub", "End"),
	)

	got, stats, err := searcher.Search("Start", "End")
	require.NoError(t, err)
	require.Len(t, got, 1)

	j := got[0]
	assert.Equal(t, domain.JourneyTransfer, j.Kind)
	assert.Equal(t, []string{"R_A", "R_B"}, legIDs(j))
	require.NotNil(t, j.TransferPoint)
	assert.Equal(t, "Hub", *j.TransferPoint)
	assert.Equal(t, 22.0, j.TotalPrice)
	assert.Equal(t, PhaseTransfer, stats.Phase)
	assert.Equal(t, 0, stats.Direct)
}

func TestFindRoute_TransferRespectsTravelOrder(t *testing.T) {
	// The shared stop is before the origin on R_A, so no transfer exists.
	searcher := newSearcher(t,
		route("R_A", 12, "Hub", "Start", "X"),
		route("R_B", 10, "Y", "Hub", "End"),
	)

	got, err := searcher.FindRoute("Start", "End")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindRoute_TransferPrefersHub(t *testing.T) {
	searcher := newSearcher(t,
		route("R_A", 12, "Start", "Mid", "Plaza Las Américas", "X"),
		route("R_B", 10, "Y", "Mid", "Plaza Las Américas", "End"),
	)

	got, err := searcher.FindRoute("Start", "End")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].TransferPoint)
	assert.Equal(t, "Plaza Las Américas", *got[0].TransferPoint)
}

func TestFindRoute_HubTransferRanksAboveCheaper(t *testing.T) {
	searcher := newSearcher(t,
		route("R_A", 30, "Start", "Plaza Las Américas", "Mid"),
		route("R_B", 30, "Y", "Plaza Las Américas", "End"),
		route("R_C", 5, "Mid", "Q", "End"),
	)

	got, err := searcher.FindRoute("Start", "End")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Plaza Las Américas", *got[0].TransferPoint)
	assert.Equal(t, 60.0, got[0].TotalPrice)
	assert.Equal(t, "Mid", *got[1].TransferPoint)
	assert.Equal(t, 35.0, got[1].TotalPrice)
}

func TestFindRoute_FuzzyTypo(t *testing.T) {
	searcher := newSearcher(t, route("R1", 15, "El Crucero", "Mercado 28", "Muelle Ultramar"))

	got, err := searcher.FindRoute("El Crocero", "Muelle Ultramar")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.JourneyDirect, got[0].Kind)

	got, err = searcher.FindRoute("XyZ123Rubbish", "Muelle Ultramar")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindRoute_DirectShortCircuitsTransfers(t *testing.T) {
	routes := []*domain.Route{
		route("T_A", 1, "Villas Otoch", "Hub", "X"),
		route("T_B", 1, "Y", "Hub", "Mercado 28"),
	}
	for i := 0; i < 7; i++ {
		routes = append(routes, route(fmt.Sprintf("D%d", i), float64(20-i), "Villas Otoch", "Mercado 28"))
	}
	searcher := newSearcher(t, routes...)

	got, stats, err := searcher.Search("Villas Otoch", "Mercado 28")
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, PhaseDirect, stats.Phase)
	assert.Zero(t, stats.PairsConsidered)
	for i, j := range got {
		assert.Equal(t, domain.JourneyDirect, j.Kind)
		if i > 0 {
			assert.LessOrEqual(t, got[i-1].TotalPrice, j.TotalPrice)
		}
	}
	assert.Equal(t, 14.0, got[0].TotalPrice)
}

func TestFindRoute_DirectCeiling(t *testing.T) {
	var routes []*domain.Route
	for i := 0; i < 250; i++ {
		routes = append(routes, route(fmt.Sprintf("D%d", i), 10, "A", "B"))
	}
	searcher := newSearcher(t, routes...)

	got, stats, err := searcher.Search("A", "B")
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, 200, stats.Direct)
	assert.True(t, stats.CeilingHit)
}

func TestFindRoute_NeverMoreThanFive(t *testing.T) {
	var routes []*domain.Route
	for i := 0; i < 7; i++ {
		routes = append(routes,
			route(fmt.Sprintf("A%d", i), float64(i), "Start", fmt.Sprintf("Mid%d", i)),
			route(fmt.Sprintf("B%d", i), float64(i), fmt.Sprintf("Mid%d", i), "End"),
		)
	}
	searcher := newSearcher(t, routes...)

	got, stats, err := searcher.Search("Start", "End")
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Candidates)
	require.Len(t, got, 5)
	for i, j := range got {
		assert.Equal(t, domain.JourneyTransfer, j.Kind)
		assert.Equal(t, float64(2*i), j.TotalPrice)
	}
}

func TestFindRoute_LegsAreCopies(t *testing.T) {
	s := loadedStore(t, route("R1", 15, "A", "B", "C"))
	searcher := NewSearcher(s, DefaultOptions(), testLogger())

	got, err := searcher.FindRoute("A", "C")
	require.NoError(t, err)
	require.Len(t, got, 1)
	got[0].Legs[0].Stops[0].Name = "mutated"
	got[0].Legs[0].StopsNormalized[0] = "mutated"

	again, err := searcher.FindRoute("A", "C")
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "A", again[0].Legs[0].Stops[0].Name)
}

func TestFindRoute_AdversarialDisjointPrefixes(t *testing.T) {
	var routes []*domain.Route
	for i := 0; i < 2000; i++ {
		stops := []string{"Qqq Alpha"}
		for j := 0; j < 20; j++ {
			stops = append(stops, fmt.Sprintf("s%d_%d", i, j))
		}
		routes = append(routes, route(fmt.Sprintf("O%d", i), 10, stops...))
	}
	for i := 0; i < 2000; i++ {
		var stops []string
		for j := 0; j < 20; j++ {
			stops = append(stops, fmt.Sprintf("t%d_%d", i, j))
		}
		stops = append(stops, "Zzz Omega")
		routes = append(routes, route(fmt.Sprintf("D%d", i), 10, stops...))
	}
	searcher := newSearcher(t, routes...)

	start := time.Now()
	got, stats, err := searcher.Search("Qqq Alpha", "Zzz Omega")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 2000, stats.OriginMatches)
	assert.Equal(t, 2000, stats.DestMatches)
	assert.Equal(t, 2000, stats.PairsConsidered)
	assert.True(t, stats.CeilingHit)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestFindRoute_ComparisonCeiling(t *testing.T) {
	var routes []*domain.Route
	for i := 0; i < 50; i++ {
		stops := []string{"Qqq Alpha"}
		for j := 0; j < 400; j++ {
			stops = append(stops, fmt.Sprintf("s%d_%d", i, j))
		}
		routes = append(routes, route(fmt.Sprintf("O%d", i), 10, stops...))

		stops = nil
		for j := 0; j < 400; j++ {
			stops = append(stops, fmt.Sprintf("t%d_%d", i, j))
		}
		stops = append(stops, "Zzz Omega")
		routes = append(routes, route(fmt.Sprintf("D%d", i), 10, stops...))
	}

	opts := DefaultOptions()
	opts.MaxPairs = math.MaxInt
	opts.MaxComparisons = 100_000
	searcher := NewSearcher(loadedStore(t, routes...), opts, testLogger())

	got, stats, err := searcher.Search("Qqq Alpha", "Zzz Omega")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.True(t, stats.CeilingHit)
	assert.LessOrEqual(t, stats.Comparisons, opts.MaxComparisons)
	assert.Less(t, stats.PairsConsidered, 50*50)
}

func TestFindRoute_UsesLatestCatalog(t *testing.T) {
	s := loadedStore(t, route("R1", 15, "A", "B"))
	searcher := NewSearcher(s, DefaultOptions(), testLogger())

	data, err := json.Marshal(domain.Catalog{Routes: []*domain.Route{route("R2", 9, "C", "D")}})
	require.NoError(t, err)
	require.NoError(t, s.Load(data))

	got, err := searcher.FindRoute("A", "B")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = searcher.FindRoute("C", "D")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "R2", got[0].Legs[0].ID)
}

func TestIsHub(t *testing.T) {
	searcher := NewSearcher(store.NewCatalogStore(testLogger()), DefaultOptions(), testLogger())

	assert.True(t, searcher.IsHub("Terminal ADO Centro"))
	assert.True(t, searcher.IsHub("entrada zona hotelera"))
	assert.False(t, searcher.IsHub("Mercado 28"))
}
