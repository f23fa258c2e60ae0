package serverutils

import (
	"errors"
	"log"

	"memcontext-be/internal/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// StatusFor maps an error onto the HTTP status the API promises for it.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}

	switch apperror.KindOf(err) {
	case apperror.KindConfig, apperror.KindNotInitialized, apperror.KindConfigMissing, apperror.KindValidation:
		return fiber.StatusBadRequest
	case apperror.KindNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return WriteError(ctx, err)
	}
}

// WriteError renders err as the JSON error body.
func WriteError(ctx *fiber.Ctx, err error) error {
	status := StatusFor(err)

	message := apperror.PublicMessage(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		message = fe.Message
	}
	if status == fiber.StatusInternalServerError {
		log.Printf("[ERROR] %s %s: %v", ctx.Method(), ctx.Path(), err)
	}

	return ctx.Status(status).JSON(ErrorBody{Success: false, Error: message})
}
