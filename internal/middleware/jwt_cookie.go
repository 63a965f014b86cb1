package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/identity"
)

// TokenFromRequest reads the bearer token from the Authorization header, falling
// back to the auth cookie. The raw token is stored in Locals("authToken").
func TokenFromRequest(cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := identity.StripBearer(c.Get(fiber.HeaderAuthorization))
		if tokenStr == "" && cookieName != "" {
			tokenStr = strings.TrimSpace(c.Cookies(cookieName))
		}
		if tokenStr != "" {
			c.Locals("authToken", tokenStr)
		}
		return c.Next()
	}
}
