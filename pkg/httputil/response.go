package httputil

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/reminder-api/pkg/errors"
)

// Response is the envelope written by mutating endpoints.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RespondWithSuccess sends {"success": true}
func RespondWithSuccess(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true})
}

// StatusOf picks the HTTP status for err.
func StatusOf(err error) int {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// MessageOf picks the client-facing message for err. Unclassified errors
// keep their text, matching what the reminder endpoints have always exposed.
func MessageOf(err error) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// RespondWithError sends {"success": false, "error": ...}
func RespondWithError(c *gin.Context, err error) {
	c.JSON(StatusOf(err), Response{
		Success: false,
		Error:   MessageOf(err),
	})
}
