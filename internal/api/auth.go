package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"ai-canvas-demo/backend/pkg/logger"
)

// AdminAPIKeyHeader carries the shared key for internal endpoints
const AdminAPIKeyHeader = "X-Admin-API-Key"

// AdminAuthMiddleware guards internal endpoints (checkpoint writes, session
// sweeps) with a shared API key checked against a bcrypt hash. When no hash
// is configured the guarded routes are closed, not open.
func AdminAuthMiddleware(keyHash string, log *logger.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if keyHash == "" {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin API is not configured"})
			return
		}

		apiKey := ctx.GetHeader(AdminAPIKeyHeader)
		if apiKey == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key is required"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(apiKey)); err != nil {
			log.Warn("rejected admin API key", "path", ctx.Request.URL.Path, "client_ip", ctx.ClientIP())
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		ctx.Next()
	}
}
