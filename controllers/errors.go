// File: /controllers/errors.go
package controllers

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chyrp-api/services"
	"chyrp-api/utils"
)

// respondError maps a service error onto its HTTP status. Anything that is
// not a domain error is logged and reported, and the client only sees a
// generic message.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.SendFieldError(c, http.StatusBadRequest, verr.Field, verr.Message)
	case errors.Is(err, services.ErrValidation):
		utils.SendValidationError(c, err.Error())
	case errors.Is(err, services.ErrConflict):
		utils.SendError(c, http.StatusConflict, "Username or email already exists")
	case errors.Is(err, services.ErrUnauthorized):
		utils.SendError(c, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, services.ErrForbidden):
		utils.SendError(c, http.StatusForbidden, "Forbidden")
	case errors.Is(err, services.ErrNotFound):
		utils.SendError(c, http.StatusNotFound, notFoundMessage(err))
	default:
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
		utils.SendError(c, http.StatusInternalServerError, "Database error")
	}
}

// notFoundMessage turns "post not found" into "Post not found".
func notFoundMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		return "Not found"
	}
	if msg[0] >= 'a' && msg[0] <= 'z' {
		msg = string(msg[0]-'a'+'A') + msg[1:]
	}
	return msg
}

func bindError(c *gin.Context, err error) {
	utils.SendValidationError(c, "Invalid request body: "+err.Error())
}

// pathID reads the :name path parameter, answering 404 when it is not an id.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, ok := utils.ParseID(c.Param(name))
	if !ok {
		utils.SendError(c, http.StatusNotFound, "Not found")
	}
	return id, ok
}

func currentUser(c *gin.Context) uint {
	return c.GetUint("user_id")
}
