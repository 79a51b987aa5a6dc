package middleware

import (
	"net/http"
	"strings"

	"account_service/internal/session"

	"github.com/gin-gonic/gin"
)

const (
	AuthUserKey    = "authUser"
	AuthRoleKey    = "authRole"
	AuthSessionKey = "authSession"
)

// SessionAuthMiddleware is the single authorization choke point. It resolves
// the bearer token against the session store on every request; no handler
// behind it runs without a resolved identity in the context.
func SessionAuthMiddleware(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required", "code": "unauthenticated"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format", "code": "unauthenticated"})
			return
		}

		sess, err := store.Resolve(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve session", "code": "internal"})
			return
		}
		if sess == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session", "code": "unauthenticated"})
			return
		}

		// Set user information in context
		c.Set(AuthUserKey, sess.UserID)
		c.Set(AuthRoleKey, sess.Role)
		c.Set(AuthSessionKey, sess.Token)

		c.Next()
	}
}
