package serverutils

import (
	"strings"

	"memcontext-be/pkg/memcontext"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	SessionHeader = "X-Session-ID"
	SessionCookie = "session_id"

	localSessionID = "session_id"
	localHandle    = "memory_handle"
)

type SessionResolver interface {
	Resolve(sessionID string) (memcontext.Handle, error)
}

// SessionID reads the session token: header first, then cookie, then query (websocket clients).
// The returned string is a copy and stays valid after the handler returns.
func SessionID(ctx *fiber.Ctx) string {
	if id := strings.TrimSpace(ctx.Get(SessionHeader)); id != "" {
		return utils.CopyString(id)
	}
	if id := ctx.Cookies(SessionCookie); id != "" {
		return utils.CopyString(id)
	}
	return utils.CopyString(ctx.Query(SessionCookie))
}

// SessionMiddleware resolves the caller's memory handle before the route runs,
// so a missing session fails with 400 before any stream is opened.
func SessionMiddleware(resolver SessionResolver) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id := SessionID(ctx)
		handle, err := resolver.Resolve(id)
		if err != nil {
			return err
		}
		ctx.Locals(localSessionID, id)
		ctx.Locals(localHandle, handle)
		return ctx.Next()
	}
}

func HandleFromCtx(ctx *fiber.Ctx) memcontext.Handle {
	h, _ := ctx.Locals(localHandle).(memcontext.Handle)
	return h
}

func SessionIDFromCtx(ctx *fiber.Ctx) string {
	id, _ := ctx.Locals(localSessionID).(string)
	return id
}

func SetSessionCookie(ctx *fiber.Ctx, sessionID string) {
	ctx.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
