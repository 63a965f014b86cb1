package handlers

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/chat"
)

var statusByCode = map[string]int{
	"not_found":       fiber.StatusNotFound,
	"forbidden":       fiber.StatusForbidden,
	"unauthorized":    fiber.StatusUnauthorized,
	"invalid_request": fiber.StatusBadRequest,
}

// fail writes a service error as {"success": false, "message": ...}.
func fail(c *fiber.Ctx, logger *slog.Logger, err error) error {
	code := chat.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		logger.Error("request failed", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal server error",
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": err.Error(),
		"code":    code,
	})
}

type FieldErrors map[string][]string

func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func validationFail(c *fiber.Ctx, errs FieldErrors) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "Validation error",
		"code":    "invalid_request",
		"errors":  errs,
	})
}

func conversationParam(c *fiber.Ctx) (uuid.UUID, error) {
	raw := c.Params("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid conversation id %q: %w", raw, chat.ErrInvalidRequest)
	}
	return id, nil
}
