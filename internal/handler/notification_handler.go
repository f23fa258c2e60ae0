package handler

import (
	"memcontext-be/internal/dto"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/pkg/serverutils"
	"memcontext-be/internal/service"
	internalWS "memcontext-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// NotificationHandler serves the per-user notification socket and history.
type NotificationHandler struct {
	hub      *internalWS.Hub
	service  *service.NotificationService
	sessions serverutils.SessionResolver
	logger   logger.ILogger
}

func NewNotificationHandler(hub *internalWS.Hub, svc *service.NotificationService, sessions serverutils.SessionResolver, log logger.ILogger) *NotificationHandler {
	return &NotificationHandler{
		hub:      hub,
		service:  svc,
		sessions: sessions,
		logger:   log,
	}
}

// ServeWs upgrades the connection and registers it for the session's user.
func (h *NotificationHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userID := serverutils.HandleFromCtx(c).UserID()
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("NotificationHandler", "Starting WebSocket session", map[string]interface{}{"user_id": userID})
		internalWS.ServeWs(h.hub, conn, userID)
		h.logger.Info("NotificationHandler", "WebSocket session ended", map[string]interface{}{"user_id": userID})
	})(c)
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	userID := serverutils.HandleFromCtx(c).UserID()
	res, err := h.service.List(c.UserContext(), userID, c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	userID := serverutils.HandleFromCtx(c).UserID()
	if err := h.service.MarkAllRead(c.UserContext(), userID); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: "All notifications marked as read"})
}

func (h *NotificationHandler) RegisterRoutes(router fiber.Router) {
	session := serverutils.SessionMiddleware(h.sessions)

	router.Get("/ws/notifications", session, h.ServeWs)
	router.Get("/notifications", session, h.List)
	router.Post("/notifications/read_all", session, h.MarkAllRead)
}
