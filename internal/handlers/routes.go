package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/identity"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/middleware"
	"github.com/Windi-Fikriyansyah/tenant_chat/internal/models"
)

// Register mounts the chat and support routes under /api.
func Register(app *fiber.App, h *ChatHandler, resolver identity.Resolver, authCookie string) {
	api := app.Group("/api",
		middleware.TokenFromRequest(authCookie),
		middleware.AttachClaims(resolver),
	)

	chat := api.Group("/chat")
	chat.Get("/contacts", h.GetContacts)
	chat.Get("/conversations", h.GetConversations)
	chat.Post("/conversations", h.CreateOrGetConversation)
	chat.Get("/conversations/:id/messages", h.GetMessages)
	chat.Post("/conversations/:id/messages", h.SendMessage)

	support := api.Group("/support")
	support.Post("/conversations",
		middleware.RequireRoles(models.RoleAgent, models.RoleMerchant),
		h.CreateSupportConversation,
	)
	support.Get("/inbox", h.GetSupportInbox)
	support.Get("/conversations/:id/messages", h.GetSupportMessages)
	support.Post("/conversations/:id/messages", h.SendSupportMessage)
}
