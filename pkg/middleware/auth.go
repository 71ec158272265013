package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/sessions"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Gin context keys set by AuthMiddleware.
const (
	ClaimsKey  = "claims"
	SessionKey = "session"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// AuthMiddleware verifies the Bearer token, rejects revoked tokens and
// stores the claims and the derived *sessions.Session on the request.
func AuthMiddleware(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		token, ok := strings.CutPrefix(auth, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		revoked, err := sessions.IsTokenRevoked(c.Request.Context(), token)
		if err != nil {
			logger.Warnf("auth: revocation check failed: %v", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "token revocation check failed"})
			return
		}
		if revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}

		verified, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			return
		}

		var claims map[string]interface{}
		if err := verified.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
			return
		}
		sess, err := sessions.FromClaims(claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		sess.Token = token

		c.Set(ClaimsKey, claims)
		c.Set(SessionKey, sess)
		c.Request = c.Request.WithContext(sessions.WithSession(c.Request.Context(), sess))
		c.Next()
	}
}

// SessionFrom returns the session stored by AuthMiddleware, or nil.
func SessionFrom(c *gin.Context) *sessions.Session {
	if v, ok := c.Get(SessionKey); ok {
		if s, ok := v.(*sessions.Session); ok {
			return s
		}
	}
	return nil
}

// rateLimitKey prefers the authenticated subject (NAT-friendly) and falls
// back to the client IP.
func rateLimitKey(c *gin.Context) string {
	if s := SessionFrom(c); s != nil && s.UserID != "" {
		return "sub:" + s.UserID
	}
	if v, ok := c.Get(ClaimsKey); ok {
		if cm, ok2 := v.(map[string]interface{}); ok2 {
			if sub, ok3 := cm["sub"].(string); ok3 && sub != "" {
				return "sub:" + sub
			}
		}
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
