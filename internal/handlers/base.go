package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"forumcore/internal/middleware"
	"forumcore/internal/services"
	"forumcore/internal/utils"

	"github.com/gin-gonic/gin"
)

// respond writes the {"success": true, ...} envelope.
func respond(c *gin.Context, code int, obj gin.H) {
	if obj == nil {
		obj = gin.H{}
	}
	obj["success"] = true
	c.JSON(code, obj)
}

// fail writes the {"success": false, "message": ...} envelope.
func fail(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"success": false, "message": message})
}

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// renderError reports err to the client. Internal errors are logged and
// replaced by a generic message.
func renderError(c *gin.Context, log *slog.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		log.Error("request failed", "path", c.FullPath(), "request_id", c.GetString(middleware.RequestIDKey), "err", err)
		fail(c, code, "internal server error")
		return
	}
	fail(c, code, err.Error())
}

// paramID reads a positive id path parameter, answering 404 when it is
// malformed.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, ok := utils.ParseID(c.Param(name))
	if !ok {
		fail(c, http.StatusNotFound, "not found")
	}
	return id, ok
}

// userID is the identified caller; routes using it sit behind AuthRequired.
func userID(c *gin.Context) uint {
	id, _ := middleware.CurrentUserID(c)
	return id
}

// bindJSON decodes the body, answering 422 on malformed input.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}
