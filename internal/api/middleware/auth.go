package middleware

import (
	"net/http"

	"phoneshop/internal/auth"

	"github.com/gin-gonic/gin"
)

const (
	StaffKey = "staff"
	RoleKey  = "role"
)

// Authenticate checks the bearer token and stores the staff name and role
// on the context. With authentication disabled every caller is an owner.
func Authenticate(a *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Set(RoleKey, auth.RoleOwner)
			c.Next()
			return
		}

		claims, err := a.Parse(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		c.Set(StaffKey, claims.Staff)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole rejects callers whose role does not allow want.
func RequireRole(want auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(RoleKey)
		r, _ := role.(auth.Role)
		if !r.Allows(want) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "requires " + string(want) + " role"})
			return
		}
		c.Next()
	}
}

// Staff returns the authenticated staff name, if any.
func Staff(c *gin.Context) string {
	return c.GetString(StaffKey)
}
