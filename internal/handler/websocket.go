package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"rutas/internal/domain"
	"rutas/internal/engine"
	"rutas/internal/hub"
)

const maxFollowedRoutes = 50

type WSHandler struct {
	hub            *hub.Hub
	engine         *engine.Engine
	originPatterns []string
	logger         *slog.Logger
}

func NewWSHandler(h *hub.Hub, e *engine.Engine, originPatterns []string, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:            h,
		engine:         e,
		originPatterns: originPatterns,
		logger:         logger.With("handler", "websocket"),
	}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SubscribePayload struct {
	RouteIDs []string `json:"route_ids"`
}

type SnapshotMessage struct {
	Type    string          `json:"type"`
	Payload SnapshotPayload `json:"payload"`
}

type SnapshotPayload struct {
	Routes []*domain.Route `json:"routes"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	clientID := uuid.New().String()
	client := hub.NewClient(clientID, 256)

	h.hub.Register(client)
	ServerStats.IncWSConnections()
	defer ServerStats.DecWSConnections()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}
		ServerStats.IncWSMessagesIn()

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			var payload SubscribePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			ids := payload.RouteIDs
			if len(ids) > maxFollowedRoutes {
				ids = ids[:maxFollowedRoutes]
			}
			if len(ids) > 0 {
				h.hub.Subscribe(client, ids)
				h.sendSnapshot(client, ids)
			}

		case "unsubscribe":
			var payload SubscribePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if len(payload.RouteIDs) > 0 {
				h.hub.Unsubscribe(client, payload.RouteIDs)
			}

		case "ping":
			h.send(client, PongMessage{Type: "pong"})
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
			ServerStats.IncWSMessagesOut()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// sendSnapshot sends the current version of each followed route that exists.
func (h *WSHandler) sendSnapshot(client *hub.Client, routeIDs []string) {
	routes := make([]*domain.Route, 0, len(routeIDs))
	for _, id := range routeIDs {
		route, ok, err := h.engine.GetRouteByID(id)
		if err != nil {
			break
		}
		if ok {
			routes = append(routes, route)
		}
	}

	h.send(client, SnapshotMessage{
		Type:    "snapshot",
		Payload: SnapshotPayload{Routes: routes},
	})
}

func (h *WSHandler) send(client *hub.Client, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case client.Send <- data:
	default:
		h.logger.Debug("failed to send message, buffer full", "client_id", client.ID)
	}
}
