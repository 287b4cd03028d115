package endpoints

import (
	"net/http"

	"studio"
	"studio/internal/api/handler/mapper"
	"studio/internal/api/handler/response"
	"studio/internal/api/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type nodeTypeHandler struct {
	registry *models.Registry
	mapper   mapper.StudioMapper
	logger   zerolog.Logger
}

// NodeTypeHandler serves the palette: every node type with its handles and parameters.
func NodeTypeHandler(router gin.IRouter, registry *models.Registry) {
	h := &nodeTypeHandler{
		registry: registry,
		mapper:   mapper.NewStudioMapper(),
		logger:   studio.Logger,
	}

	routes := router.Group("/api/v1/node-types")
	{
		routes.GET("", h.getAll)
		routes.GET("/:type", h.getByType)
		routes.GET("/:type/schema", h.getSchema)
	}
}

func (slf *nodeTypeHandler) getAll(c *gin.Context) {
	types := slf.registry.Types()
	schemas := make([]models.NodeTypeSchema, 0, len(types))
	for _, t := range types {
		s, err := slf.registry.SchemaFor(t)
		if err != nil {
			abortWithError(c, slf.logger, err, "Registry lists a type it cannot describe")
			return
		}
		schemas = append(schemas, s)
	}
	c.JSON(http.StatusOK, slf.mapper.ToNodeTypeResponses(schemas))
}

func (slf *nodeTypeHandler) getByType(c *gin.Context) {
	s, err := slf.registry.SchemaFor(models.NodeType(c.Param("type")))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, response.APIError{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, slf.mapper.ToNodeTypeResponse(s))
}

// getSchema returns a JSON Schema for the node's params object
func (slf *nodeTypeHandler) getSchema(c *gin.Context) {
	s, err := slf.registry.SchemaFor(models.NodeType(c.Param("type")))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, response.APIError{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.ParamsJSONSchema())
}
