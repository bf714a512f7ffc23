package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/booner/backend/internal/config"
	"github.com/gofiber/fiber/v2"
)

// AdminAuth requires the admin API key in X-Admin-Token or a Bearer
// Authorization header. Disabled when no key is configured.
func AdminAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := cfg.Auth.AdminAPIKey
		if apiKey == "" {
			return c.Next()
		}

		headerToken := c.Get("X-Admin-Token")
		if headerToken == "" {
			if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
				headerToken = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if headerToken == "" {
			// browsers cannot set headers on a websocket upgrade
			headerToken = c.Query("token")
		}

		if subtle.ConstantTimeCompare([]byte(headerToken), []byte(apiKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		return c.Next()
	}
}
