package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"contactbook/internal/errs"
	"contactbook/internal/identity"
	"contactbook/internal/models"
)

// RequireRoles must run after Auth.
func RequireRoles(log zerolog.Logger, roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			AbortWithError(c, log, errs.E(errs.KindUnauthorized, "authorize", "not authenticated", nil))
			return
		}

		if _, err := identity.Authorize(user, roles...); err != nil {
			AbortWithError(c, log, err)
			return
		}

		c.Next()
	}
}
