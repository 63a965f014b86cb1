package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/identity"
)

// AttachClaims verifies the token captured by TokenFromRequest and stores the
// resolved claims in Locals("claims") and the request context.
func AttachClaims(resolver identity.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, _ := c.Locals("authToken").(string)
		if token == "" {
			return fiber.ErrUnauthorized
		}

		claims, err := resolver.Resolve(c.UserContext(), token)
		if err != nil {
			return fiber.ErrUnauthorized
		}

		c.Locals("userId", claims.SubjectID)
		c.Locals("role", string(claims.Role))
		c.Locals("claims", claims)
		c.SetUserContext(identity.WithClaims(c.UserContext(), claims))

		return c.Next()
	}
}

// ClaimsFrom returns the claims set by AttachClaims, or nil.
func ClaimsFrom(c *fiber.Ctx) *identity.Claims {
	claims, _ := c.Locals("claims").(*identity.Claims)
	return claims
}
