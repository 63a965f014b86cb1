package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/chat"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/identity"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/middleware"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
)

// ChatService is what the HTTP facade calls; *chat.Service implements it.
type ChatService interface {
	ListForCaller(ctx context.Context, c *identity.Claims) ([]models.Conversation, error)
	Contacts(ctx context.Context, c *identity.Claims) ([]chat.Contact, error)
	ResolveConversation(ctx context.Context, c *identity.Claims, receiverID uint, typ models.ConversationType) (*models.Conversation, error)
	GetMessages(ctx context.Context, id uuid.UUID, c *identity.Claims, page, pageSize int) ([]models.Message, error)
	SendMessage(ctx context.Context, id uuid.UUID, c *identity.Claims, content string) (*models.Message, *models.Conversation, error)

	CreateSupportConversation(ctx context.Context, c *identity.Claims, content string, imageURL *string) (*models.Conversation, *models.Message, error)
	GetSupportInbox(ctx context.Context, c *identity.Claims) ([]models.Conversation, error)
	GetSupportMessages(ctx context.Context, id uuid.UUID, c *identity.Claims, page, pageSize int) ([]models.Message, error)
	SendSupportMessage(ctx context.Context, id uuid.UUID, c *identity.Claims, content string, imageURL *string) (*models.Message, *models.Conversation, error)
}

// Publisher pushes persisted messages to realtime subscribers.
type Publisher interface {
	PublishMessage(ctx context.Context, conv *models.Conversation, msg *models.Message)
}

type ChatHandler struct {
	Service   ChatService
	Publisher Publisher
	Logger    *slog.Logger
}

func NewChatHandler(svc ChatService, pub Publisher, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{Service: svc, Publisher: pub, Logger: logger.With("component", "http")}
}

// GetConversations returns the caller's conversations
func (h *ChatHandler) GetConversations(c *fiber.Ctx) error {
	convs, err := h.Service.ListForCaller(c.UserContext(), middleware.ClaimsFrom(c))
	if err != nil {
		return fail(c, h.Logger, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": convs})
}

// GetContacts returns counterparties the caller can start a conversation with
func (h *ChatHandler) GetContacts(c *fiber.Ctx) error {
	contacts, err := h.Service.Contacts(c.UserContext(), middleware.ClaimsFrom(c))
	if err != nil {
		return fail(c, h.Logger, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": contacts})
}

// CreateOrGetConversation returns the CHAT conversation with a receiver, creating it if needed
func (h *ChatHandler) CreateOrGetConversation(c *fiber.Ctx) error {
	var req struct {
		ReceiverID uint                    `json:"receiverId"`
		Type       models.ConversationType `json:"type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, h.Logger, fmt.Errorf("invalid body: %w", chat.ErrInvalidRequest))
	}

	errs := FieldErrors{}
	if req.ReceiverID == 0 {
		errs.Add("receiverId", "receiverId is required")
	}
	if !req.Type.Valid() {
		errs.Add("type", "type must be SUPERADMIN_AGENT or AGENT_MERCHANT")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	conv, err := h.Service.ResolveConversation(c.UserContext(), middleware.ClaimsFrom(c), req.ReceiverID, req.Type)
	if err != nil {
		return fail(c, h.Logger, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": conv})
}

// GetMessages returns one page of a conversation's messages, oldest first
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	id, err := conversationParam(c)
	if err != nil {
		return fail(c, h.Logger, err)
	}
	page, limit := chat.NormalizePage(c.QueryInt("page", 1), c.QueryInt("limit", chat.DefaultPageSize))

	msgs, err := h.Service.GetMessages(c.UserContext(), id, middleware.ClaimsFrom(c), page, limit)
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

// SendMessage sends a message in a conversation and pushes it to realtime subscribers
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	id, err := conversationParam(c)
	if err != nil {
		return fail(c, h.Logger, err)
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, h.Logger, fmt.Errorf("invalid body: %w", chat.ErrInvalidRequest))
	}

	msg, conv, err := h.Service.SendMessage(c.UserContext(), id, middleware.ClaimsFrom(c), req.Content)
	if err != nil {
		return fail(c, h.Logger, err)
	}
	if h.Publisher != nil {
		h.Publisher.PublishMessage(c.UserContext(), conv, msg)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": msg})
}
