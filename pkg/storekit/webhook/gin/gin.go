// Package gin mounts the notification endpoint on a Gin router.
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/gostorekit/pkg/storekit/webhook"
)

// Handler returns a Gin handler that feeds notifications into h.
//
//	router.POST("/storekit/notifications", gin.Handler(h))
func Handler(h *webhook.Handler) gongin.HandlerFunc {
	return func(c *gongin.Context) {
		ip := c.ClientIP()
		if !h.Allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gongin.H{"error": "rate limit exceeded"})
			return
		}

		body, err := webhook.ReadBody(c.Request.Body, h.MaxBodyBytes())
		if err != nil {
			result := h.BodyFailure(err)
			c.AbortWithStatusJSON(result.Code, result.Body())
			return
		}

		credential := webhook.Credential(c.GetHeader("Authorization"), c.GetHeader(webhook.SignatureHeader))
		result := h.Receive(c.Request.Context(), credential, body, ip)
		c.JSON(result.Code, result.Body())
	}
}
