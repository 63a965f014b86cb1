package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/chat"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/middleware"
)

type supportMessageReq struct {
	Message  string  `json:"message"`
	ImageURL *string `json:"imageUrl"`
}

// CreateSupportConversation opens a new support thread with its first message
func (h *ChatHandler) CreateSupportConversation(c *fiber.Ctx) error {
	var req supportMessageReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, h.Logger, fmt.Errorf("invalid body: %w", chat.ErrInvalidRequest))
	}

	conv, msg, err := h.Service.CreateSupportConversation(c.UserContext(), middleware.ClaimsFrom(c), req.Message, req.ImageURL)
	if err != nil {
		return fail(c, h.Logger, err)
	}
	if h.Publisher != nil {
		h.Publisher.PublishMessage(c.UserContext(), conv, msg)
	}

	conv.Messages = append(conv.Messages, *msg)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": conv})
}

// GetSupportInbox lists support threads visible to the caller
func (h *ChatHandler) GetSupportInbox(c *fiber.Ctx) error {
	convs, err := h.Service.GetSupportInbox(c.UserContext(), middleware.ClaimsFrom(c))
	if err != nil {
		return fail(c, h.Logger, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": convs})
}

// GetSupportMessages returns a page of a support thread and marks it read
func (h *ChatHandler) GetSupportMessages(c *fiber.Ctx) error {
	id, err := conversationParam(c)
	if err != nil {
		return fail(c, h.Logger, err)
	}
	page, limit := chat.NormalizePage(c.QueryInt("page", 1), c.QueryInt("limit", chat.DefaultPageSize))

	msgs, err := h.Service.GetSupportMessages(c.UserContext(), id, middleware.ClaimsFrom(c), page, limit)
	if err != nil {
		return fail(c, h.Logger, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    msgs,
		"page":    page,
		"limit":   limit,
	})
}

// SendSupportMessage replies on a support thread
func (h *ChatHandler) SendSupportMessage(c *fiber.Ctx) error {
	id, err := conversationParam(c)
	if err != nil {
		return fail(c, h.Logger, err)
	}
	var req supportMessageReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, h.Logger, fmt.Errorf("invalid body: %w", chat.ErrInvalidRequest))
	}

	msg, conv, err := h.Service.SendSupportMessage(c.UserContext(), id, middleware.ClaimsFrom(c), req.Message, req.ImageURL)
	if err != nil {
		return fail(c, h.Logger, err)
	}
	if h.Publisher != nil {
		h.Publisher.PublishMessage(c.UserContext(), conv, msg)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": msg})
}
