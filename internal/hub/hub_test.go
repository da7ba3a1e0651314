package hub

import (
	"context"
	"encoding/json"
	"io"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rutas/internal/domain"
	"rutas/internal/store"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Event{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_CatalogUpdated(t *testing.T) {
	h := startHub(t)

	follower := NewClient("follower", 8)
	other := NewClient("other", 8)
	h.Register(follower)
	h.Register(other)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 10*time.Millisecond)
	h.Subscribe(follower, []string{"R1"})

	routes := []*domain.Route{
		{ID: "R1", Name: "R-1", SocialAlerts: []string{"Desvío en Av. Tulum"}},
		{ID: "R2", Name: "R-2", SocialAlerts: []string{"Sin servicio nocturno"}},
		{ID: "R3", Name: "R-3"},
	}
	h.CatalogUpdated(store.CatalogStats{Version: "v7", Generation: 7, IsLoaded: true}, routes)

	ev := receive(t, follower)
	assert.Equal(t, EventCatalogUpdated, ev.Type)
	assert.Equal(t, "v7", ev.Payload.(map[string]interface{})["version"])

	ev = receive(t, follower)
	assert.Equal(t, EventRouteAlerts, ev.Type)
	followed := ev.Payload.(map[string]interface{})["routes"].(map[string]interface{})
	require.Len(t, followed, 1, "only followed routes are pushed")
	r1 := followed["R1"].(map[string]interface{})
	assert.Equal(t, "R-1", r1["name"])
	assert.Equal(t, []interface{}{"Desvío en Av. Tulum"}, r1["social_alerts"])

	ev = receive(t, other)
	assert.Equal(t, EventCatalogUpdated, ev.Type)
	assertSilent(t, other)
	assertSilent(t, follower)
}

func TestHub_UnsubscribeAndUnregister(t *testing.T) {
	h := startHub(t)

	c := NewClient("c", 8)
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	h.Subscribe(c, []string{"R1", "R2"})
	assert.True(t, c.Follows("R2"))
	h.Unsubscribe(c, []string{"R2"})
	assert.False(t, c.Follows("R2"))
	assert.ElementsMatch(t, []string{"R1"}, c.Routes())

	h.Broadcast(Event{Type: EventRouteAlerts, RouteID: "R2"})
	assertSilent(t, c)

	h.Unregister(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	_, open := <-c.Send
	assert.False(t, open)
}

func TestHub_CatalogUpdatedManyAlertingRoutes(t *testing.T) {
	h := startHub(t)

	follower := NewClient("follower", 16)
	other := NewClient("other", 16)
	h.Register(follower)
	h.Register(other)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	routes := make([]*domain.Route, 1000)
	ids := make([]string, len(routes))
	for i := range routes {
		ids[i] = fmt.Sprintf("R%d", i)
		routes[i] = &domain.Route{ID: ids[i], SocialAlerts: []string{"Desvío"}}
	}
	h.Subscribe(follower, ids)
	h.Subscribe(other, ids[:3])

	h.CatalogUpdated(store.CatalogStats{Version: "v2", IsLoaded: true}, routes)

	assert.Equal(t, EventCatalogUpdated, receive(t, follower).Type)
	ev := receive(t, follower)
	require.Equal(t, EventRouteAlerts, ev.Type)
	assert.Len(t, ev.Payload.(map[string]interface{})["routes"], 1000)
	assertSilent(t, follower)

	assert.Equal(t, EventCatalogUpdated, receive(t, other).Type)
	ev = receive(t, other)
	assert.Len(t, ev.Payload.(map[string]interface{})["routes"], 3)
	assertSilent(t, other)
}
