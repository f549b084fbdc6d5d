package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireTenant resolves the tenant and rejects the request with 401 when none is found.
// It does not perform RBAC checks; those belong to internal/rbac.
func RequireTenant(r *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := r.Resolve(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Tenant context required",
				"message": "Provide a valid bearer token or tenant identifier",
			})
			return
		}
		bind(c, id)
		c.Next()
	}
}

// OptionalTenant resolves the tenant when possible and always proceeds.
// Handlers decide whether anonymous operation is acceptable.
func OptionalTenant(r *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := r.Resolve(c.Request); ok {
			bind(c, id)
		}
		c.Next()
	}
}

func bind(c *gin.Context, id Identity) {
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))

	// Also store on gin context for handler convenience.
	c.Set("tenant_id", id.TenantID)
	c.Set("user_id", id.UserID)
	c.Set("role", id.Role)
}
