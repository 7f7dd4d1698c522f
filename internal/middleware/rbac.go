package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/capstone-api/internal/models"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
	"github.com/noah-isme/capstone-api/pkg/response"
)

// RequireRoles lets the request through when the caller holds at least one of the roles.
// Finer ownership checks stay in the services.
func RequireRoles(roles ...models.ActorRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := IdentityFromContext(c)
		if identity == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if len(roles) > 0 && !identity.HasAnyRole(roles...) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
