package controller

import (
	"bufio"
	"context"
	"encoding/json"

	"memcontext-be/internal/dto"
	"memcontext-be/internal/pkg/apperror"
	"memcontext-be/internal/pkg/logger"
	"memcontext-be/internal/pkg/serverutils"
	"memcontext-be/internal/service"
	"memcontext-be/internal/transport"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Chat(ctx *fiber.Ctx) error
	ChatWS(ctx *fiber.Ctx) error
}

type chatController struct {
	service  service.IChatService
	sessions serverutils.SessionResolver
	logger   logger.ILogger
}

func NewChatController(service service.IChatService, sessions serverutils.SessionResolver, log logger.ILogger) IChatController {
	return &chatController{service: service, sessions: sessions, logger: log}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	session := serverutils.SessionMiddleware(c.sessions)

	r.Post("/chat", session, c.Chat)
	r.Get("/ws/chat", session, c.ChatWS)
}

// Chat streams one turn as Server-Sent Events. Session and body errors are
// returned as JSON before the stream opens.
func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	handle := serverutils.HandleFromCtx(ctx)
	transport.SetSSEHeaders(ctx)
	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		_ = c.service.Stream(context.Background(), handle, &req, transport.NewSSEWriter(w))
	}))
	return nil
}

// ChatWS runs one chat turn per text message received on the socket. The
// session is resolved again for every turn so a clear takes effect immediately.
func (c *chatController) ChatWS(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}

	sessionID := serverutils.SessionIDFromCtx(ctx)
	return websocket.New(func(conn *websocket.Conn) {
		out := transport.NewWSWriter(conn)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var req dto.ChatRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				err = apperror.Wrap(apperror.KindValidation, "invalid request body", err)
				if out.Emit(dto.ErrorFrame{Error: apperror.PublicMessage(err)}) != nil {
					return
				}
				continue
			}
			if err := serverutils.ValidateRequest(req); err != nil {
				if out.Emit(dto.ErrorFrame{Error: apperror.PublicMessage(err)}) != nil {
					return
				}
				continue
			}

			handle, err := c.sessions.Resolve(sessionID)
			if err != nil {
				_ = out.Emit(dto.ErrorFrame{Error: apperror.PublicMessage(err)})
				return
			}
			if err := c.service.StreamWS(context.Background(), handle, &req, out); err != nil {
				c.logger.Debug("ChatController", "WebSocket turn ended early", map[string]interface{}{
					"session_id": sessionID,
					"error":      err.Error(),
				})
			}
		}
	})(ctx)
}
