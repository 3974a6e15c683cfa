// Package echo mounts the notification endpoint on an Echo router.
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/gostorekit/pkg/storekit/webhook"
)

// Handler returns an Echo handler that feeds notifications into h.
func Handler(h *webhook.Handler) echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := c.RealIP()
		if !h.Allow(ip) {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		}

		req := c.Request()
		body, err := webhook.ReadBody(req.Body, h.MaxBodyBytes())
		if err != nil {
			result := h.BodyFailure(err)
			return c.JSON(result.Code, result.Body())
		}

		credential := webhook.Credential(req.Header.Get(echo.HeaderAuthorization), req.Header.Get(webhook.SignatureHeader))
		result := h.Receive(req.Context(), credential, body, ip)
		return c.JSON(result.Code, result.Body())
	}
}
