package websocket

type MessageType string

// Client to server. Graph mutations answer with graph.changed, session actions with
// session.status; both are broadcast to every client.
const (
	MessageTypeNodeAdd      MessageType = "graph.node_add"
	MessageTypeNodeUpdate   MessageType = "graph.node_update"
	MessageTypeNodeMove     MessageType = "graph.node_move"
	MessageTypeNodeRemove   MessageType = "graph.node_remove"
	MessageTypeEdgeConnect  MessageType = "graph.connect"
	MessageTypeEdgeRemove   MessageType = "graph.edge_remove"
	MessageTypeValidate     MessageType = "session.validate"
	MessageTypeTrain        MessageType = "session.train"
	MessageTypeStop         MessageType = "session.stop"
	MessageTypeExport       MessageType = "session.export"
	MessageTypeGenerateCode MessageType = "session.generate_code"
	MessageTypeSystemInfo   MessageType = "session.system_info"
	MessageTypePing         MessageType = "ping"
)

// Server to client.
const (
	MessageTypeGraphChanged  MessageType = "graph.changed"
	MessageTypeSessionStatus MessageType = "session.status"
	MessageTypeWorkerEvent   MessageType = "worker.event"
	MessageTypeActivityLog   MessageType = "activity.log"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
)
