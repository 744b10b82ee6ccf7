// internal/middleware/auth_middleware.go
package middleware

import (
	"strings"

	"sessiongate-service/internal/pkg/jwt"
	"sessiongate-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserID = "user_id"
	ContextRoles  = "roles"
)

// Auth verifies the bearer token issued by the identity provider and
// stashes the caller's identity on the gin context.
func Auth(verifier *jwt.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRoles, claims.Roles)
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Browsers cannot set headers on websocket upgrades.
	return c.Query("token")
}

// GetUserID returns the authenticated user id, ok=false when the request
// did not pass Auth.
func GetUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// MustGetUserID returns the authenticated user id and panics when absent.
// Only call behind the Auth middleware.
func MustGetUserID(c *gin.Context) int64 {
	id, ok := GetUserID(c)
	if !ok {
		panic("middleware: user id missing from context")
	}
	return id
}

// GetRoles returns the caller's roles, nil when unauthenticated.
func GetRoles(c *gin.Context) []string {
	v, ok := c.Get(ContextRoles)
	if !ok {
		return nil
	}
	roles, _ := v.([]string)
	return roles
}
