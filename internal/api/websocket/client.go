package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. A full graph replace fits comfortably.
	maxMessageSize = 512 * 1024 // 512KB
)

type Client struct {
	ID           string
	Hub          *Hub
	Conn         *websocket.Conn
	Send         chan Message
	Processor    *MessageProcessor
	ProcessQueue chan Message
	Logger       zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, processor *MessageProcessor, logger zerolog.Logger) *Client {
	client := &Client{
		ID:           id,
		Hub:          hub,
		Conn:         conn,
		Send:         make(chan Message, 256),
		Processor:    processor,
		ProcessQueue: make(chan Message, 100),
		Logger:       logger.With().Str("clientId", id).Logger(),
	}

	// Start the sequential processor worker
	go client.processWorker()

	return client
}

// Deliver queues message without blocking. It reports false when the client is gone or
// its buffer is full.
func (c *Client) Deliver(message Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// close ends the write side. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) ReadPump() {
	defer func() {
		close(c.ProcessQueue) // Close the queue to stop the worker
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.Done():
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Logger.Error().Err(err).Msg("WebSocket read error")
			}
			break
		}

		var msg Message
		if err = json.Unmarshal(messageBytes, &msg); err != nil {
			c.Logger.Error().Err(err).Msg("Failed to unmarshal message")
			c.sendError("Invalid message format", err)
			continue
		}

		// Set metadata
		msg.ClientID = c.ID
		msg.Timestamp = time.Now()

		// Fast path: answered to this client only
		if !c.requiresProcessing(msg.Type) {
			c.Deliver(Message{Type: MessageTypePong, ClientID: c.ID, Timestamp: time.Now()})
			continue
		}

		// Slow path: graph and session actions run in arrival order without blocking ReadPump
		select {
		case c.ProcessQueue <- msg:
		default:
			c.Logger.Warn().
				Str("type", string(msg.Type)).
				Msg("Process queue full, dropping message")
			c.sendError("Server is busy, please try again")
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			messageBytes, err := json.Marshal(message)
			if err != nil {
				c.Logger.Error().Err(err).Str("type", string(message.Type)).Msg("Failed to marshal message")
				w.Close()
				continue
			}
			w.Write(messageBytes)

			// Add queued messages to the current websocket message
			n := len(c.Send)
			for i := 0; i < n; i++ {
				msg, ok := <-c.Send
				if !ok {
					break
				}
				msgBytes, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				w.Write([]byte{'\n'})
				w.Write(msgBytes)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(errorMsg string, errs ...error) {
	if !c.Deliver(NewErrorMessage(c.ID, errorMsg, errs...)) {
		c.Logger.Warn().Str("error", errorMsg).Msg("Could not deliver error to client")
	}
}

// processWorker processes messages from the queue sequentially so that graph edits apply
// in the order the user made them.
func (c *Client) processWorker() {
	c.Logger.Debug().Msg("Process worker started")

	for msg := range c.ProcessQueue {
		if c.Processor == nil {
			continue
		}
		processedMsg, err := c.Processor.ProcessMessage(&msg)
		if err != nil {
			c.Logger.Warn().
				Err(err).
				Str("type", string(msg.Type)).
				Msg("Failed to process message")

			// Send error directly to this client only
			c.sendError(err.Error())
			continue
		}

		// Send processed message to hub for broadcasting
		c.Hub.Publish(*processedMsg)

		c.Logger.Debug().
			Str("type", string(msg.Type)).
			Msg("Message processed successfully")
	}

	c.Logger.Debug().Msg("Process worker stopped")
}

// requiresProcessing checks if a message type has to go through the processor
func (c *Client) requiresProcessing(msgType MessageType) bool {
	return msgType != MessageTypePing
}
