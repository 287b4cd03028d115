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

type graphHandler struct {
	graphService *service.GraphService
	hub          *websocket.Hub
	mapper       mapper.StudioMapper
	logger       zerolog.Logger
}

func newGraphHandler(graph *service.GraphService, hub *websocket.Hub) *graphHandler {
	return &graphHandler{
		graphService: graph,
		hub:          hub,
		mapper:       mapper.NewStudioMapper(),
		logger:       studio.Logger,
	}
}

// GraphHandler exposes the edited graph. Every mutation is pushed to websocket clients.
func GraphHandler(router gin.IRouter, graph *service.GraphService, hub *websocket.Hub) {
	h := newGraphHandler(graph, hub)

	routes := router.Group("/api/v1/graph")
	{
		routes.GET("", h.get)
		routes.PUT("", h.replace)
		routes.DELETE("", h.clear)

		routes.POST("/nodes", h.addNode)
		routes.GET("/nodes/:id", h.getNode)
		routes.PATCH("/nodes/:id/params", h.updateParam)
		routes.PUT("/nodes/:id/position", h.moveNode)
		routes.DELETE("/nodes/:id", h.removeNode)

		routes.POST("/edges", h.connect)
		routes.DELETE("/edges/:id", h.removeEdge)
	}
}

func (slf *graphHandler) changed() {
	if slf.hub != nil {
		slf.hub.Publish(websocket.NewGraphMessage(slf.graphService.Snapshot()))
	}
}

// get returns the graph in the shape the worker reads
func (slf *graphHandler) get(c *gin.Context) {
	c.JSON(http.StatusOK, slf.graphService.Snapshot())
}

// replace loads a whole graph, e.g. a saved project
func (slf *graphHandler) replace(c *gin.Context) {
	var req request.ReplaceGraph
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		slf.logger.Error().Err(err).Msg("Failed to parse replace graph request")
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	if err := slf.graphService.Replace(slf.mapper.ToNodeSpecs(req), req.Edges); err != nil {
		abortWithError(c, slf.logger, err, "Failed to replace graph")
		return
	}

	slf.changed()
	c.JSON(http.StatusOK, slf.graphService.Snapshot())
}

func (slf *graphHandler) clear(c *gin.Context) {
	slf.graphService.Clear()
	slf.changed()
	c.Status(http.StatusNoContent)
}

func (slf *graphHandler) addNode(c *gin.Context) {
	var req request.AddNode
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		slf.logger.Error().Err(err).Msg("Failed to parse add node request")
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	node, err := slf.graphService.AddNode(req.Type, req.Position)
	if err != nil {
		abortWithError(c, slf.logger, err, "Failed to add node")
		return
	}

	slf.changed()
	c.JSON(http.StatusCreated, node)
}

func (slf *graphHandler) getNode(c *gin.Context) {
	node, err := slf.graphService.Node(c.Param("id"))
	if err != nil {
		abortWithError(c, slf.logger, err, "Failed to get node")
		return
	}
	c.JSON(http.StatusOK, node)
}

func (slf *graphHandler) updateParam(c *gin.Context) {
	var req request.UpdateParam
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		slf.logger.Error().Err(err).Msg("Failed to parse update param request")
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	node, err := slf.graphService.UpdateNodeParam(c.Param("id"), req.Key, req.Value)
	if err != nil {
		abortWithError(c, slf.logger, err, "Failed to update node param")
		return
	}

	slf.changed()
	c.JSON(http.StatusOK, node)
}

func (slf *graphHandler) moveNode(c *gin.Context) {
	var req request.MoveNode
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	if err := slf.graphService.MoveNode(c.Param("id"), req.Position); err != nil {
		abortWithError(c, slf.logger, err, "Failed to move node")
		return
	}

	slf.changed()
	c.Status(http.StatusNoContent)
}

func (slf *graphHandler) removeNode(c *gin.Context) {
	id := c.Param("id")
	removed, err := slf.graphService.RemoveNode(id)
	if err != nil {
		abortWithError(c, slf.logger, err, "Failed to remove node")
		return
	}

	if removed == nil {
		removed = []models.Edge{}
	}
	slf.changed()
	c.JSON(http.StatusOK, response.RemovedNode{NodeID: id, RemovedEdges: removed})
}

func (slf *graphHandler) connect(c *gin.Context) {
	var req request.Connect
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		slf.logger.Error().Err(err).Msg("Failed to parse connect request")
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	edge, err := slf.graphService.Connect(req.Source, req.SourceHandle, req.Target, req.TargetHandle)
	if err != nil {
		abortWithError(c, slf.logger, err, "Failed to connect nodes")
		return
	}

	slf.changed()
	c.JSON(http.StatusCreated, edge)
}

func (slf *graphHandler) removeEdge(c *gin.Context) {
	if err := slf.graphService.RemoveEdge(c.Param("id")); err != nil {
		abortWithError(c, slf.logger, err, "Failed to remove edge")
		return
	}

	slf.changed()
	c.Status(http.StatusNoContent)
}
