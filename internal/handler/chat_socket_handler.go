package handler

import (
	"ai-docchat/internal/pkg/logger"
	"ai-docchat/internal/pkg/serverutils"
	"ai-docchat/internal/service"
	internalWS "ai-docchat/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ChatSocketHandler upgrades view-token holders to a live websocket on their chat session.
type ChatSocketHandler struct {
	driver  service.ISessionDriver
	updates internalWS.Updates
	hub     *internalWS.Hub
	tokens  *serverutils.ViewTokens
	logger  logger.ILogger
}

func NewChatSocketHandler(driver service.ISessionDriver, updates internalWS.Updates, hub *internalWS.Hub, tokens *serverutils.ViewTokens, log logger.ILogger) *ChatSocketHandler {
	return &ChatSocketHandler{
		driver:  driver,
		updates: updates,
		hub:     hub,
		tokens:  tokens,
		logger:  log,
	}
}

func (h *ChatSocketHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/chat/ws", h.ServeWs)
}

// ServeWs handles websocket requests from the peer.
func (h *ChatSocketHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := serverutils.TokenFromRequest(c.Query("token"), c.Get("Authorization"))
	if tokenStr == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')")
	}

	viewID, err := h.tokens.Parse(tokenStr)
	if err != nil {
		h.logger.Warn("ChatSocketHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
		return err
	}

	view, err := h.driver.Get(viewID)
	if err != nil {
		return err
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("ChatSocketHandler", "Starting WebSocket session", map[string]interface{}{"view_id": viewID})
			internalWS.ServeWs(h.hub, conn, view, h.driver, h.updates, h.logger)
			h.logger.Info("ChatSocketHandler", "WebSocket session ended", map[string]interface{}{"view_id": viewID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}
