package endpoints

import (
	"net/http"

	"studio"
	"studio/internal/api/handler/mapper"
	"studio/internal/api/handler/request"
	"studio/internal/api/handler/response"
	"studio/internal/api/models"
	"studio/internal/api/service"
	"studio/internal/api/websocket"
	"studio/pkg"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type sessionHandler struct {
	sessionService  *service.SessionService
	progressService *service.ProgressService
	hub             *websocket.Hub
	mapper          mapper.StudioMapper
	logger          zerolog.Logger
}

func newSessionHandler(session *service.SessionService, progress *service.ProgressService, hub *websocket.Hub) *sessionHandler {
	return &sessionHandler{
		sessionService:  session,
		progressService: progress,
		hub:             hub,
		mapper:          mapper.NewStudioMapper(),
		logger:          studio.Logger,
	}
}

// SessionHandler exposes the worker actions. They answer 202 once the command is written;
// results arrive as worker events over the websocket and in GET /session.
func SessionHandler(router gin.IRouter, session *service.SessionService, progress *service.ProgressService, hub *websocket.Hub) {
	h := newSessionHandler(session, progress, hub)

	routes := router.Group("/api/v1/session")
	{
		routes.GET("", h.status)
		routes.POST("/validate", h.validate)
		routes.POST("/train", h.train)
		routes.POST("/stop", h.stop)
		routes.POST("/export", h.export)
		routes.POST("/generate-code", h.generateCode)
		routes.POST("/system-info", h.systemInfo)

		// Activity log
		routes.GET("/logs", h.logs)
		routes.DELETE("/logs", h.clearLogs)
	}
}

func (slf *sessionHandler) accepted(c *gin.Context, command models.CommandTag) {
	status := slf.sessionService.Status()
	if slf.hub != nil {
		slf.hub.Publish(websocket.NewStatusMessage(status))
	}
	c.JSON(http.StatusAccepted, response.Accepted{Command: command, Status: status})
}

func (slf *sessionHandler) status(c *gin.Context) {
	c.JSON(http.StatusOK, slf.sessionService.Status())
}

func (slf *sessionHandler) validate(c *gin.Context) {
	if err := slf.sessionService.Validate(); err != nil {
		abortWithError(c, slf.logger, err, "Failed to request validation")
		return
	}
	slf.accepted(c, models.CommandValidate)
}

func (slf *sessionHandler) train(c *gin.Context) {
	var req request.Train
	if err := pkg.ParseOptionalAndValidate(c, &req); err != nil {
		slf.logger.Error().Err(err).Msg("Failed to parse train request")
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	if err := slf.sessionService.Train(slf.mapper.ToTrainConfig(req)); err != nil {
		abortWithError(c, slf.logger, err, "Failed to start training")
		return
	}
	slf.accepted(c, models.CommandTrain)
}

// stop kills the worker and starts a fresh one
func (slf *sessionHandler) stop(c *gin.Context) {
	if err := slf.sessionService.Stop(); err != nil {
		abortWithError(c, slf.logger, err, "Failed to restart worker")
		return
	}
	c.JSON(http.StatusOK, slf.sessionService.Status())
	if slf.hub != nil {
		slf.hub.Publish(websocket.NewStatusMessage(slf.sessionService.Status()))
	}
}

func (slf *sessionHandler) export(c *gin.Context) {
	var req request.Export
	if err := pkg.ParseOptionalAndValidate(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	if err := slf.sessionService.Export(req.Path); err != nil {
		abortWithError(c, slf.logger, err, "Failed to request export")
		return
	}
	slf.accepted(c, models.CommandExport)
}

func (slf *sessionHandler) generateCode(c *gin.Context) {
	if err := slf.sessionService.GenerateCode(); err != nil {
		abortWithError(c, slf.logger, err, "Failed to request code generation")
		return
	}
	slf.accepted(c, models.CommandGenerateCode)
}

func (slf *sessionHandler) systemInfo(c *gin.Context) {
	if err := slf.sessionService.RequestSystemInfo(); err != nil {
		abortWithError(c, slf.logger, err, "Failed to request system info")
		return
	}
	slf.accepted(c, models.CommandGetSystemInfo)
}

func (slf *sessionHandler) logs(c *gin.Context) {
	c.JSON(http.StatusOK, slf.progressService.Entries())
}

func (slf *sessionHandler) clearLogs(c *gin.Context) {
	slf.progressService.Clear()
	c.Status(http.StatusNoContent)
}
