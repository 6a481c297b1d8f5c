package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/receivables-portal/internal/application/port"
	"github.com/garyjia/receivables-portal/internal/application/service"
	"github.com/garyjia/receivables-portal/internal/application/workflow"
	"github.com/garyjia/receivables-portal/internal/domain/terms"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func abortJSON(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: message, Code: code})
}

// errorStatus maps an application error to an HTTP status and a stable code
func errorStatus(err error) (int, string) {
	switch workflow.KindOf(err) {
	case workflow.ErrValidation:
		return http.StatusBadRequest, "validation_error"
	case workflow.ErrGuardViolation:
		return http.StatusForbidden, "guard_violation"
	case workflow.ErrConcurrencyConflict:
		return http.StatusConflict, "concurrency_conflict"
	case workflow.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case workflow.ErrSideEffectFailure, workflow.ErrInternal:
		return http.StatusInternalServerError, "internal_error"
	}

	switch {
	case errors.Is(err, port.ErrNotFound), errors.Is(err, service.ErrUnknownView):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrScopeRequired):
		return http.StatusForbidden, "scope_required"
	case errors.Is(err, service.ErrNoSchedule):
		return http.StatusConflict, "no_schedule"
	case errors.Is(err, terms.ErrInvalidPrincipal),
		errors.Is(err, terms.ErrInvalidQuarterCount),
		errors.Is(err, terms.ErrInvalidRate),
		errors.Is(err, terms.ErrInvalidQuarter):
		return http.StatusBadRequest, "validation_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// respondError writes the mapped error. Internal details are logged, not returned.
func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "op", op, "error", err, "path", c.Request.URL.Path)
		message = "internal error"
	}
	abortJSON(c, status, message, code)
}
