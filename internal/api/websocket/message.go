package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"studio/internal/api/models"
)

// Message is the envelope exchanged with editor clients.
// Data field uses 'any' to allow different types through channels
type Message struct {
	Type      MessageType `json:"type"`
	ClientID  string      `json:"clientId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

type NodeAddData struct {
	Type     models.NodeType `json:"type" validate:"required"`
	Position models.Position `json:"position"`
}

type NodeUpdateData struct {
	NodeID string `json:"nodeId" validate:"required"`
	Key    string `json:"key" validate:"required"`
	Value  any    `json:"value"`
}

type NodeMoveData struct {
	NodeID   string          `json:"nodeId" validate:"required"`
	Position models.Position `json:"position"`
}

type NodeRemoveData struct {
	NodeID string `json:"nodeId" validate:"required"`
}

type ConnectData struct {
	Source       string `json:"source" validate:"required"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target" validate:"required"`
	TargetHandle string `json:"targetHandle"`
}

type EdgeRemoveData struct {
	EdgeID string `json:"edgeId" validate:"required"`
}

type TrainData struct {
	Config models.TrainConfig `json:"config"`
}

type ExportData struct {
	Path string `json:"path"`
}

// WorkerEvent carries one routed worker event in its wire form.
type WorkerEvent struct {
	Event models.EventTag `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorMessage represents an error message
type ErrorMessage struct {
	Error         string `json:"error,omitempty"`
	CustomMessage string `json:"customMessage"`
}

// NewErrorMessage creates a new error message
func NewErrorMessage(clientID string, errorText string, errs ...error) Message {
	data := ErrorMessage{CustomMessage: errorText}
	if err := errors.Join(errs...); err != nil {
		data.Error = err.Error()
	}
	return Message{
		Type:      MessageTypeError,
		ClientID:  clientID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewGraphMessage(snapshot models.GraphSnapshot) Message {
	return Message{Type: MessageTypeGraphChanged, Timestamp: time.Now(), Data: snapshot}
}

func NewStatusMessage(status any) Message {
	return Message{Type: MessageTypeSessionStatus, Timestamp: time.Now(), Data: status}
}

func NewLogMessage(entry any) Message {
	return Message{Type: MessageTypeActivityLog, Timestamp: time.Now(), Data: entry}
}

// NewEventMessage wraps a worker event in the same {"event","data"} shape the worker wrote.
func NewEventMessage(ev models.Event) (Message, error) {
	raw, err := models.EncodeEvent(ev)
	if err != nil {
		return Message{}, err
	}
	var env WorkerEvent
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, err
	}
	return Message{Type: MessageTypeWorkerEvent, Timestamp: time.Now(), Data: env}, nil
}
