package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/layout"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/loader"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/workspace"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, workspace.ErrInvalidInput),
		errors.Is(err, workspace.ErrNotDynamic),
		errors.Is(err, layout.ErrInvalidOrder),
		errors.Is(err, layout.ErrInvalidLayout):
		return http.StatusBadRequest
	case errors.Is(err, workspace.ErrProtectedTab),
		errors.Is(err, workspace.ErrProtectedLayout):
		return http.StatusForbidden
	case errors.Is(err, workspace.ErrTabNotFound),
		errors.Is(err, workspace.ErrLayoutNotFound),
		errors.Is(err, workspace.ErrSubComponentNotFound),
		errors.Is(err, loader.ErrUnknownTab),
		errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrDuplicateName),
		errors.Is(err, workspace.ErrLastTab),
		errors.Is(err, workspace.ErrNotEditable),
		errors.Is(err, types.ErrStale):
		return http.StatusConflict
	case errors.Is(err, workspace.ErrClosed),
		errors.Is(err, workspace.ErrManagerClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes an error response; server faults are logged
func (h *Handlers) fail(c *gin.Context, err error) {
	respondError(c, h.log, err)
}

func respondError(c *gin.Context, log *logging.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Invalid request: " + err.Error(),
	})
}
