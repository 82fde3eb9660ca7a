package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MURUGANQA/auth-service/internal/domain"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as {"error": {"kind", "code", "entity", "message"}}.
// code and entity are omitted when err carries neither. Infrastructure
// and internal failures are logged and their detail is withheld from the
// client.
func RespondError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)

	message := err.Error()
	switch kind {
	case domain.KindInfrastructure:
		slog.ErrorContext(c.Request.Context(), "request failed: dependency unavailable",
			"error", err, "path", c.FullPath(), "request_id", c.GetString(RequestIDKey))
		message = "service temporarily unavailable"
	case domain.KindInternal:
		slog.ErrorContext(c.Request.Context(), "request failed: internal error",
			"error", err, "path", c.FullPath(), "request_id", c.GetString(RequestIDKey))
		message = "internal server error"
	}

	code, entity := domain.Detail(err)
	c.JSON(status, errorBody(kind, code, entity, message))
}

func abortWithError(c *gin.Context, err error) {
	RespondError(c, err)
	c.Abort()
}

func errorBody(kind domain.Kind, code string, entity domain.Entity, message string) gin.H {
	body := gin.H{"kind": string(kind), "message": message}
	if code != "" {
		body["code"] = code
	}
	if entity != "" {
		body["entity"] = string(entity)
	}
	return gin.H{"error": body}
}

// BindJSON decodes the request body into v and reports a validation error to
// the client when it cannot.
func BindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		RespondError(c, domain.ErrValidation("invalid_request", "invalid request body: %v", err))
		return false
	}
	return true
}
