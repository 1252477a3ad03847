// Package handlers exposes the HTTP surface. Handlers stay thin: bind,
// delegate to a service, translate the outcome. Authorization lives in the
// services; the handlers only carry the caller's identity hash and override
// flag through.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/retroflect/backend/internal/services"
)

// respondError translates a service error into an HTTP response by its kind.
// Access-key exhaustion maps to 503 because it is transient and retryable,
// not a client mistake.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch services.KindOf(err) {
	case services.KindNotFound:
		status = http.StatusNotFound
	case services.KindValidation:
		status = http.StatusBadRequest
	case services.KindForbidden, services.KindQuota:
		status = http.StatusForbidden
	case services.KindClosed, services.KindCircular:
		status = http.StatusConflict
	case services.KindConflict:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// parseIDParam parses a uuid path parameter, answering 400 itself on failure
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
