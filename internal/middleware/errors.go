package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"contactbook/internal/errs"
)

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.KindUnauthorized:
		return http.StatusUnauthorized
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError writes err as {"error": msg} and stops the chain. Internal
// errors are logged and reported without detail.
func AbortWithError(c *gin.Context, log zerolog.Logger, err error) {
	status := StatusOf(err)
	msg := errs.Message(err)
	switch status {
	case http.StatusInternalServerError:
		log.Error().Err(err).Str("route", c.FullPath()).Str("request_id", c.GetString(requestIDHeader)).Msg("request failed")
		msg = "internal server error"
	case http.StatusServiceUnavailable:
		log.Warn().Err(err).Str("route", c.FullPath()).Str("request_id", c.GetString(requestIDHeader)).Msg("dependency unavailable")
	case http.StatusUnauthorized:
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
