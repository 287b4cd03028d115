package request

import "studio/internal/api/models"

type AddNode struct {
	Type     models.NodeType `json:"type" validate:"required"`
	Position models.Position `json:"position"`
}

// UpdateParam sets one parameter. Value is checked against the node type's schema.
type UpdateParam struct {
	Key   string `json:"key" validate:"required"`
	Value any    `json:"value"`
}

type MoveNode struct {
	Position models.Position `json:"position"`
}

// Connect joins source to target. Empty handles mean the positional slot.
type Connect struct {
	Source       string `json:"source" validate:"required"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target" validate:"required"`
	TargetHandle string `json:"targetHandle"`
}

// ReplaceGraph loads a whole graph in the same shape the editor and the worker exchange.
type ReplaceGraph struct {
	Nodes []GraphNode   `json:"nodes" validate:"dive"`
	Edges []models.Edge `json:"edges"`
}

type GraphNode struct {
	ID       string          `json:"id" validate:"required"`
	Type     models.NodeType `json:"type" validate:"required"`
	Position models.Position `json:"position"`
	Data     struct {
		Params map[string]any `json:"params"`
	} `json:"data"`
}
