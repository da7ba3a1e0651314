package hub

import (
	"rutas/internal/domain"
	"rutas/internal/store"
)

// RouteAlert is the alert state of one route after a catalog load.
type RouteAlert struct {
	Name         string   `json:"name"`
	SocialAlerts []string `json:"social_alerts"`
	LastUpdated  string   `json:"last_updated,omitempty"`
}

// RouteAlertsPayload carries the alerting routes a client follows.
type RouteAlertsPayload struct {
	Routes map[string]RouteAlert `json:"routes"`
}

// CatalogUpdated tells every client a new catalog is live and pushes the
// social alerts of each route to the clients following it. Alerts travel
// as a single queued event per load however many routes carry them.
func (h *Hub) CatalogUpdated(stats store.CatalogStats, routes []*domain.Route) {
	h.Broadcast(Event{Type: EventCatalogUpdated, Payload: stats})

	alerts := make(map[string]RouteAlert)
	for _, r := range routes {
		if len(r.SocialAlerts) == 0 {
			continue
		}
		alerts[r.ID] = RouteAlert{
			Name:         r.Name,
			SocialAlerts: r.SocialAlerts,
			LastUpdated:  r.LastUpdated,
		}
	}
	if len(alerts) == 0 {
		return
	}
	h.Broadcast(Event{Type: EventRouteAlerts, alerts: alerts})
}

// fanoutAlerts sends each follower one route_alerts event restricted to
// the routes it follows.
func (h *Hub) fanoutAlerts(alerts map[string]RouteAlert) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	perClient := make(map[*Client]map[string]RouteAlert)
	for id, alert := range alerts {
		for client := range h.routeClients[id] {
			if perClient[client] == nil {
				perClient[client] = make(map[string]RouteAlert)
			}
			perClient[client][id] = alert
		}
	}

	for client, followed := range perClient {
		h.send(client, Event{
			Type:    EventRouteAlerts,
			Payload: RouteAlertsPayload{Routes: followed},
		})
	}
}
