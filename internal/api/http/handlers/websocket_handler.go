package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/notify"
)

// WebsocketHandler registers live subscribers with the notification hub.
type WebsocketHandler struct {
	hub         *notify.Hub
	serviceName string
	pongWait    time.Duration
	logger      *zap.Logger
}

// NewWebsocketHandler constructs handler.
func NewWebsocketHandler(hub *notify.Hub, serviceName string, pongWait time.Duration, logger *zap.Logger) *WebsocketHandler {
	return &WebsocketHandler{hub: hub, serviceName: serviceName, pongWait: pongWait, logger: logger}
}

// RequireUpgrade rejects plain HTTP requests to the websocket route.
func (h *WebsocketHandler) RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Tickets GET /ws/tickets.
func (h *WebsocketHandler) Tickets() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *WebsocketHandler) serve(conn *websocket.Conn) {
	sub := h.hub.Subscribe(conn)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.hub.Unsubscribe(sub)
	}()

	if err := h.hub.Send(sub, notify.NewWelcome(h.serviceName)); err != nil {
		return
	}
	go h.hub.Heartbeat(ctx, sub)

	h.extendReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		h.extendReadDeadline(conn)
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			h.logger.Debug("subscriber read ended", zap.String("subscriber_id", sub.ID()), zap.Error(err))
			return
		}
		h.extendReadDeadline(conn)
		if messageType != websocket.TextMessage {
			continue
		}

		text := string(data)
		if strings.TrimSpace(text) == "ping" {
			err = h.hub.SendText(sub, "pong")
		} else {
			err = h.hub.Send(sub, notify.NewEcho(text))
		}
		if err != nil {
			return
		}
	}
}

func (h *WebsocketHandler) extendReadDeadline(conn *websocket.Conn) {
	if h.pongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	}
}
