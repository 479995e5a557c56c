package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/analystcopilot/core/pkg/apperrors"
)

// securityHeaders sets the baseline headers the teacher's Echo middleware
// applies on every response, translated to gin's ResponseWriter.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// requestLogger logs one structured line per request, grouped under the
// request's own logger the way the teacher threads a request-scoped slog
// logger through its handlers.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
}

// metricsMiddleware records every request's status/duration, nil-safe when
// deps.Metrics is nil (metrics disabled).
func metricsMiddleware(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		deps.Metrics.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(started))
	}
}

// corsMiddleware applies a permissive allowlist-by-env CORS policy; §6
// leaves the allowed origin list to deployment configuration, so the
// caller supplies it.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization,Content-Type")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// authMiddleware resolves either a Bearer JWT or an X-API-Key header into
// an Identity and stores it on the context. Requests with neither are
// rejected before reaching any handler behind this middleware.
func authMiddleware(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
			identity, err := deps.Auth.IdentityFromAPIKey(c.Request.Context(), apiKey)
			if err != nil {
				writeError(c, err)
				c.Abort()
				return
			}
			c.Set(identityKey, *identity)
			c.Next()
			return
		}

		authz := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok || token == "" {
			writeError(c, apperrors.Unauthenticated)
			c.Abort()
			return
		}
		identity, err := deps.Auth.IdentityFromToken(c.Request.Context(), token)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(identityKey, *identity)
		c.Next()
	}
}

// requirePermission gates a route behind a named permission, admins always
// pass per models.Identity.HasPermission.
func requirePermission(perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := currentIdentity(c)
		if !ok {
			writeError(c, apperrors.Unauthenticated)
			c.Abort()
			return
		}
		if !identity.HasPermission(perm) {
			writeError(c, apperrors.Forbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware enforces deps.RateLimit per identity+route, skipping
// entirely when no cache client is configured (e.g. local dev).
func rateLimitMiddleware(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Cache == nil {
			c.Next()
			return
		}
		identity, _ := currentIdentity(c)
		subject := identity.UserID
		if subject == "" {
			subject = c.ClientIP()
		}
		key := fmt.Sprintf("%s:%s", subject, c.FullPath())
		allowed, err := deps.Cache.AllowRequest(c.Request.Context(), key, deps.RateLimit.Limit, deps.RateLimit.Window)
		if err != nil {
			slog.Warn("rate limit check failed, allowing request", "error", err)
			c.Next()
			return
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
