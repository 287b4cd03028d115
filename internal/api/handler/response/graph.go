package response

import "studio/internal/api/models"

type RemovedNode struct {
	NodeID       string        `json:"nodeId"`
	RemovedEdges []models.Edge `json:"removedEdges"`
}

// Accepted answers a session action. The outcome arrives later as a worker event.
type Accepted struct {
	Command models.CommandTag `json:"command"`
	Status  any               `json:"status"`
}
