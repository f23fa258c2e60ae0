package controller

import (
	"memcontext-be/internal/dto"
	"memcontext-be/internal/pkg/apperror"
	"memcontext-be/internal/pkg/serverutils"
	"memcontext-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IMemoryController interface {
	RegisterRoutes(r fiber.Router)
	Init(ctx *fiber.Ctx) error
	Clear(ctx *fiber.Ctx) error
	State(ctx *fiber.Ctx) error
	Personality(ctx *fiber.Ctx) error
	TriggerAnalysis(ctx *fiber.Ctx) error
	ImportConversations(ctx *fiber.Ctx) error
	InterestLog(ctx *fiber.Ctx) error
}

type memoryController struct {
	service  service.IMemoryService
	sessions serverutils.SessionResolver
}

func NewMemoryController(service service.IMemoryService, sessions serverutils.SessionResolver) IMemoryController {
	return &memoryController{service: service, sessions: sessions}
}

func (c *memoryController) RegisterRoutes(r fiber.Router) {
	session := serverutils.SessionMiddleware(c.sessions)

	r.Post("/init_memory", c.Init)
	r.Post("/clear_memory", session, c.Clear)
	r.Get("/memory_state", session, c.State)
	r.Post("/personality_analysis", session, c.Personality)
	r.Post("/trigger_analysis", session, c.TriggerAnalysis)
	r.Post("/import_conversations", session, c.ImportConversations)
	r.Get("/interest_log", session, c.InterestLog)
}

func parseBody(ctx *fiber.Ctx, out interface{}) error {
	if err := ctx.BodyParser(out); err != nil {
		return apperror.Wrap(apperror.KindValidation, "invalid request body", err)
	}
	return nil
}

func (c *memoryController) Init(ctx *fiber.Ctx) error {
	var req dto.InitMemoryRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Init(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	serverutils.SetSessionCookie(ctx, res.SessionID)
	return ctx.JSON(res)
}

func (c *memoryController) Clear(ctx *fiber.Ctx) error {
	res, err := c.service.Clear(ctx.UserContext(), serverutils.SessionIDFromCtx(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

func (c *memoryController) State(ctx *fiber.Ctx) error {
	res, err := c.service.State(ctx.UserContext(), serverutils.HandleFromCtx(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

func (c *memoryController) Personality(ctx *fiber.Ctx) error {
	res, err := c.service.Personality(ctx.UserContext(), serverutils.HandleFromCtx(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

func (c *memoryController) TriggerAnalysis(ctx *fiber.Ctx) error {
	res, err := c.service.TriggerAnalysis(ctx.UserContext(), serverutils.HandleFromCtx(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

func (c *memoryController) ImportConversations(ctx *fiber.Ctx) error {
	var req dto.ImportConversationsRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.ImportConversations(ctx.UserContext(), serverutils.HandleFromCtx(ctx), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

func (c *memoryController) InterestLog(ctx *fiber.Ctx) error {
	res, err := c.service.InterestLog(ctx.UserContext(), serverutils.HandleFromCtx(ctx), ctx.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}
