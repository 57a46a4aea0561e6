package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dicemaniacs/backend/internal/auth"
	"github.com/dicemaniacs/backend/internal/config"
	"github.com/dicemaniacs/backend/internal/events"
)

// WSHub relays round events to connected mini-app clients.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[int64][]*websocket.Conn
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[int64][]*websocket.Conn),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.RoundChannel, h.dispatch)
}

// dispatch broadcasts round lifecycle events; a player's own submissions only
// go to that player's connections.
func (h *WSHub) dispatch(event events.Event) {
	switch event.Type {
	case events.EventPredictionSubmitted:
		if id, ok := event.Int64("player_id"); ok {
			h.SendToPlayer(id, event)
		}
	case events.EventRoundCreated, events.EventRoundSettled:
		h.broadcast(event)
	}
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conns := range h.connections {
		for _, conn := range conns {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	}
}

func (h *WSHub) SendToPlayer(telegramID int64, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[telegramID] {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

// Connections reports the number of open sockets.
func (h *WSHub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.connections {
		n += len(conns)
	}
	return n
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}
	id := claims.TelegramID

	h.mu.Lock()
	h.connections[id] = append(h.connections[id], conn)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		conns := h.connections[id]
		for i, c := range conns {
			if c == conn {
				h.connections[id] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(h.connections[id]) == 0 {
			delete(h.connections, id)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop keeps the connection alive until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
