package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Event types pushed to websocket clients.
const (
	EventCatalogUpdated = "catalog_updated"
	EventRouteAlerts    = "route_alerts"
)

type Client struct {
	ID     string
	Send   chan []byte
	routes map[string]struct{}
	mu     sync.RWMutex
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:     id,
		Send:   make(chan []byte, bufferSize),
		routes: make(map[string]struct{}),
	}
}

func (c *Client) Follows(routeID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.routes[routeID]
	return ok
}

func (c *Client) addRoutes(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.routes[id] = struct{}{}
	}
}

func (c *Client) removeRoutes(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.routes, id)
	}
}

func (c *Client) Routes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.routes))
	for id := range c.routes {
		ids = append(ids, id)
	}
	return ids
}

// Event is one message for clients. An event with a RouteID only reaches
// clients following that route; otherwise it reaches every client.
type Event struct {
	Type    string      `json:"type"`
	RouteID string      `json:"route_id,omitempty"`
	Payload interface{} `json:"payload"`

	// alerts is split per follower by the hub instead of sent as is.
	alerts map[string]RouteAlert
}

type Hub struct {
	mu           sync.RWMutex
	clients      map[*Client]struct{}
	routeClients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan Event

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:      make(map[*Client]struct{}),
		routeClients: make(map[string]map[*Client]struct{}),
		register:     make(chan *Client, 16),
		unregister:   make(chan *Client, 16),
		broadcast:    make(chan Event, 256),
		logger:       logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)

		case ev := <-h.broadcast:
			h.fanout(ev)
		}
	}
}

func (h *Hub) Subscribe(client *Client, routeIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.addRoutes(routeIDs)

	for _, id := range routeIDs {
		if h.routeClients[id] == nil {
			h.routeClients[id] = make(map[*Client]struct{})
		}
		h.routeClients[id][client] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(client *Client, routeIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.removeRoutes(routeIDs)
	h.detach(client, routeIDs)
}

func (h *Hub) detach(client *Client, routeIDs []string) {
	for _, id := range routeIDs {
		if h.routeClients[id] != nil {
			delete(h.routeClients[id], client)
			if len(h.routeClients[id]) == 0 {
				delete(h.routeClients, id)
			}
		}
	}
}

// Broadcast queues ev without blocking. Events are dropped when the queue is full.
func (h *Hub) Broadcast(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("broadcast channel full, dropping event", "type", ev.Type)
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanout(ev Event) {
	if ev.alerts != nil {
		h.fanoutAlerts(ev.alerts)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients
	if ev.RouteID != "" {
		targets = h.routeClients[ev.RouteID]
	}
	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", "type", ev.Type, "error", err)
		return
	}
	for client := range targets {
		h.deliver(client, data)
	}
}

// send encodes ev for a single client. Callers hold h.mu.
func (h *Hub) send(client *Client, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", "type", ev.Type, "error", err)
		return
	}
	h.deliver(client, data)
}

func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.logger.Debug("client send buffer full", "client_id", client.ID)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	h.detach(client, client.Routes())
	delete(h.clients, client)
	close(client.Send)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.routeClients = make(map[string]map[*Client]struct{})
}
