package endpoints

import (
	"net/http"

	"studio"
	websocket2 "studio/internal/api/websocket"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The editor is served from a local dev server or a desktop shell.
		return true
	},
}

type websocketHandler struct {
	hub       *websocket2.Hub
	processor *websocket2.MessageProcessor
	logger    zerolog.Logger
}

// WebSocketHandler sets up WebSocket routes
func WebSocketHandler(router gin.IRouter, hub *websocket2.Hub, processor *websocket2.MessageProcessor) {
	h := &websocketHandler{
		hub:       hub,
		processor: processor,
		logger:    studio.Logger,
	}

	wsRoutes := router.Group("/api/v1/ws")
	{
		wsRoutes.GET("", h.handleWebSocket)
		wsRoutes.GET("/stats", h.getStats)
	}
}

// handleWebSocket upgrades the connection and sends the current editor state
func (slf *websocketHandler) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slf.logger.Error().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}

	clientID := uuid.New().String()
	client := websocket2.NewClient(clientID, slf.hub, conn, slf.processor, slf.logger)

	select {
	case slf.hub.Register <- client:
	case <-slf.hub.Done():
		conn.Close()
		return
	}

	for _, msg := range slf.processor.Welcome(clientID) {
		client.Deliver(msg)
	}

	slf.logger.Info().Str("clientId", clientID).Msg("WebSocket connection established")

	go client.WritePump()
	go client.ReadPump()
}

func (slf *websocketHandler) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"clients": slf.hub.ClientCount(),
		"ids":     slf.hub.ClientIDs(),
	})
}
