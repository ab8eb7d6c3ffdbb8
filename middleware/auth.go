package middleware

import (
	"github.com/gofiber/fiber/v2"

	"pvp-room-system/utils/logger"
)

// UserContextMiddleware extracts the user identity set by the Gateway.
// Authentication itself happens upstream; this service trusts the forwarded
// X-User-ID and rejects requests arriving without one.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		uid := c.Get("X-User-ID")
		if uid == "" {
			logger.Warnf("[auth] missing X-User-ID on %s %s", c.Method(), c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
				"code":  "unauthorized",
			})
		}
		c.Locals("user_id", uid)
		return c.Next()
	}
}
