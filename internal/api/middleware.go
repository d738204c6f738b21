package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"enkaji-payments/internal/audit"
	"enkaji-payments/internal/auth"
	"enkaji-payments/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalKey = "principal"

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// authMiddleware verifies the identity provider's bearer token
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			h.denied(c, http.StatusUnauthorized, "missing_token", "")
			return
		}

		principal, err := h.verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			h.logger.Debug("Rejected bearer token", zap.Error(err))
			h.denied(c, http.StatusUnauthorized, "invalid_token", "")
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// requireCapability rejects principals whose roles do not grant cap
func (h *Handler) requireCapability(capability auth.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := principalFrom(c)
		if !principal.Can(capability) {
			userID := ""
			if principal != nil {
				userID = principal.UserID
			}
			h.denied(c, http.StatusForbidden, "missing_capability:"+string(capability), userID)
			return
		}
		c.Next()
	}
}

func (h *Handler) denied(c *gin.Context, code int, reason, actor string) {
	h.sink.LogSecurityEvent(c.Request.Context(), audit.Event{
		Action:   "access_denied",
		Resource: c.FullPath(),
		Actor:    actor,
		Fields: map[string]string{
			"reason":    reason,
			"client_ip": c.ClientIP(),
		},
	})
	c.AbortWithStatusJSON(code, gin.H{"error": http.StatusText(code)})
}

func principalFrom(c *gin.Context) *auth.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*auth.Principal)
	return p
}
