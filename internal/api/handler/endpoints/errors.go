package endpoints

import (
	"errors"
	"net/http"

	"studio/internal/api/handler/response"
	"studio/internal/api/models"
	"studio/internal/api/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNodeNotFound), errors.Is(err, models.ErrEdgeNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateConnection), errors.Is(err, service.ErrTrainingInProgress):
		return http.StatusConflict
	case errors.Is(err, models.ErrCyclicGraph):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrUnknownNodeType),
		errors.Is(err, models.ErrInvalidParamValue),
		errors.Is(err, models.ErrInvalidHandle),
		errors.Is(err, models.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrWorkerRestart):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, logger zerolog.Logger, err error, msg string) {
	status := statusFor(err)
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).Str("path", c.FullPath()).Msg(msg)
	c.AbortWithStatusJSON(status, response.APIError{Message: err.Error()})
}
