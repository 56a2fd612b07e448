package auth

import (
	"net/http"
	"strings"
	"time"

	"collections-engine/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

// RequireAccessToken verifies an access token, puts the Operator on the
// request context and tags the request logger with it. Role checks are
// left to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		tok, ok := strings.CutPrefix(raw, bearerPrefix)
		if !ok || tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			logger.FromGin(c).Debug("access token rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		op := OperatorFromClaims(claims)
		c.Request = c.Request.WithContext(WithOperator(c.Request.Context(), op))
		logger.Enrich(c, "operator", op.UserID, "role", op.Role)

		c.Next()
	}
}
