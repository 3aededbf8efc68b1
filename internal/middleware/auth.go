package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"contactbook/internal/errs"
	"contactbook/internal/models"
)

const (
	currentUserKey = "current_user"
	accessTokenKey = "access_token"
)

type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (models.User, error)
}

// Auth resolves the bearer token into the current user.
func Auth(resolver IdentityResolver, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, log, errs.E(errs.KindUnauthorized, "auth", "not authenticated", nil))
			return
		}

		user, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, log, err)
			return
		}

		c.Set(accessTokenKey, token)
		c.Set(currentUserKey, user)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// CurrentUser returns the user set by Auth.
func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

func AccessToken(c *gin.Context) string {
	return c.GetString(accessTokenKey)
}
