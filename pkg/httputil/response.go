package httputil

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/worship-room-service/pkg/apperr"
)

const UserIDKey = "user_id"

// ErrorResponse writes err as {"error", "code"} with the status its code
// maps to. Errors without a code are logged and reported as internal.
func ErrorResponse(c *gin.Context, err error) {
	appErr, ok := apperr.From(err)
	if !ok {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		appErr = apperr.ErrInternal
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
}

// BindError reports a request body or query that failed to bind.
func BindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error": err.Error(),
		"code":  apperr.CodeInvalidInput,
	})
}

// ParamUUID parses a path parameter, answering 400 when it is malformed.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		ErrorResponse(c, apperr.ErrInvalidInput.Withf("%s must be a uuid", name))
		return uuid.Nil, false
	}
	return id, true
}

// UserID returns the caller set by the auth middleware.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString(UserIDKey))
	if err != nil {
		ErrorResponse(c, apperr.ErrUnauthorized)
		return uuid.Nil, false
	}
	return id, true
}
