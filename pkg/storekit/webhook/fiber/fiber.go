// Package fiber mounts the notification endpoint on a Fiber app.
package fiber

import (
	"bytes"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/gostorekit/pkg/storekit/webhook"
)

// Handler returns a Fiber handler that feeds notifications into h. Fiber buffers the body
// itself, so the app's BodyLimit should not be lower than h.MaxBodyBytes.
func Handler(h *webhook.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := c.IP()
		if !h.Allow(ip) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}

		body, err := webhook.ReadBody(bytes.NewReader(c.Body()), h.MaxBodyBytes())
		if err != nil {
			result := h.BodyFailure(err)
			return c.Status(result.Code).JSON(result.Body())
		}

		credential := webhook.Credential(c.Get(fiber.HeaderAuthorization), c.Get(webhook.SignatureHeader))
		result := h.Receive(c.UserContext(), credential, body, ip)
		return c.Status(result.Code).JSON(result.Body())
	}
}
