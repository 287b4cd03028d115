package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"studio/internal/api/models"
	"studio/internal/api/service"
	"studio/pkg"

	"github.com/rs/zerolog"
)

// MessageProcessor applies editor actions to the graph and the session.
type MessageProcessor struct {
	graph    *service.GraphService
	session  *service.SessionService
	activity *service.ProgressService
	logger   zerolog.Logger
}

func NewMessageProcessor(graph *service.GraphService, session *service.SessionService, activity *service.ProgressService, logger zerolog.Logger) *MessageProcessor {
	return &MessageProcessor{
		graph:    graph,
		session:  session,
		activity: activity,
		logger:   logger.With().Str("component", "ws-processor").Logger(),
	}
}

// Welcome is what a freshly connected client needs to draw the editor: the graph, the
// session status and the activity log so far.
func (p *MessageProcessor) Welcome(clientID string) []Message {
	now := time.Now()
	out := []Message{
		{Type: MessageTypeGraphChanged, ClientID: clientID, Timestamp: now, Data: p.graph.Snapshot()},
		{Type: MessageTypeSessionStatus, ClientID: clientID, Timestamp: now, Data: p.session.Status()},
	}
	if p.activity != nil {
		for _, entry := range p.activity.Entries() {
			out = append(out, Message{Type: MessageTypeActivityLog, ClientID: clientID, Timestamp: now, Data: entry})
		}
	}
	return out
}

// ProcessMessage applies msg and returns the message to broadcast, or an error for the
// sender only.
func (p *MessageProcessor) ProcessMessage(msg *Message) (*Message, error) {
	switch msg.Type {
	case MessageTypeNodeAdd:
		return p.processNodeAdd(msg)
	case MessageTypeNodeUpdate:
		return p.processNodeUpdate(msg)
	case MessageTypeNodeMove:
		return p.processNodeMove(msg)
	case MessageTypeNodeRemove:
		return p.processNodeRemove(msg)
	case MessageTypeEdgeConnect:
		return p.processConnect(msg)
	case MessageTypeEdgeRemove:
		return p.processEdgeRemove(msg)

	case MessageTypeValidate:
		return p.sessionAction(msg, p.session.Validate)
	case MessageTypeGenerateCode:
		return p.sessionAction(msg, p.session.GenerateCode)
	case MessageTypeSystemInfo:
		return p.sessionAction(msg, p.session.RequestSystemInfo)
	case MessageTypeStop:
		return p.sessionAction(msg, p.session.Stop)
	case MessageTypeTrain:
		return p.processTrain(msg)
	case MessageTypeExport:
		return p.processExport(msg)

	default:
		return nil, fmt.Errorf("unsupported message type %q", msg.Type)
	}
}

func (p *MessageProcessor) validateData(msg *Message, out any) error {
	dataBytes, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal message data: %w", err)
	}

	if err := json.Unmarshal(dataBytes, out); err != nil {
		return fmt.Errorf("invalid message data: %w", err)
	}

	if err := pkg.ValidateStruct(out); err != nil {
		return fmt.Errorf("invalid message data: %w", err)
	}
	return nil
}

func (p *MessageProcessor) graphChanged(msg *Message) *Message {
	out := NewGraphMessage(p.graph.Snapshot())
	out.ClientID = msg.ClientID
	return &out
}

func (p *MessageProcessor) processNodeAdd(msg *Message) (*Message, error) {
	var data NodeAddData
	if err := p.validateData(msg, &data); err != nil {
		return nil, err
	}
	node, err := p.graph.AddNode(data.Type, data.Position)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().Str("nodeId", node.ID).Str("clientId", msg.ClientID).Msg("Node added via WebSocket")
	return p.graphChanged(msg), nil
}

func (p *MessageProcessor) processNodeUpdate(msg *Message) (*Message, error) {
	var data NodeUpdateData
	if err := p.validateData(msg, &data); err != nil {
		return nil, err
	}
	if _, err := p.graph.UpdateNodeParam(data.NodeID, data.Key, data.Value); err != nil {
		return nil, err
	}
	return p.graphChanged(msg), nil
}

func (p *MessageProcessor) processNodeMove(msg *Message) (*Message, error) {
	var data NodeMoveData
	if err := p.validateData(msg, &data); err != nil {
		return nil, err
	}
	if err := p.graph.MoveNode(data.NodeID, data.Position); err != nil {
		return nil, err
	}
	return p.graphChanged(msg), nil
}

func (p *MessageProcessor) processNodeRemove(msg *Message) (*Message, error) {
	var data NodeRemoveData
	if err := p.validateData(msg, &data); err != nil {
		return nil, err
	}
	if _, err := p.graph.RemoveNode(data.NodeID); err != nil {
		return nil, err
	}
	return p.graphChanged(msg), nil
}

func (p *MessageProcessor) processConnect(msg *Message) (*Message, error) {
	var data ConnectData
	if err := p.validateData(msg, &data); err != nil {
		return nil, err
	}
	if _, err := p.graph.Connect(data.Source, data.SourceHandle, data.Target, data.TargetHandle); err != nil {
		return nil, err
	}
	return p.graphChanged(msg), nil
}

func (p *MessageProcessor) processEdgeRemove(msg *Message) (*Message, error) {
	var data EdgeRemoveData
	if err := p.validateData(msg, &data); err != nil {
		return nil, err
	}
	if err := p.graph.RemoveEdge(data.EdgeID); err != nil {
		return nil, err
	}
	return p.graphChanged(msg), nil
}

func (p *MessageProcessor) processTrain(msg *Message) (*Message, error) {
	// Fields the client leaves out keep the control panel defaults.
	data := TrainData{Config: models.DefaultTrainConfig()}
	if msg.Data != nil {
		if err := p.validateData(msg, &data); err != nil {
			return nil, err
		}
	}
	return p.sessionAction(msg, func() error { return p.session.Train(data.Config) })
}

func (p *MessageProcessor) processExport(msg *Message) (*Message, error) {
	var data ExportData
	if msg.Data != nil {
		if err := p.validateData(msg, &data); err != nil {
			return nil, err
		}
	}
	return p.sessionAction(msg, func() error { return p.session.Export(data.Path) })
}

func (p *MessageProcessor) sessionAction(msg *Message, action func() error) (*Message, error) {
	if err := action(); err != nil {
		return nil, err
	}
	out := NewStatusMessage(p.session.Status())
	out.ClientID = msg.ClientID
	return &out, nil
}
