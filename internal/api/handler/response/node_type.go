package response

import "studio/internal/api/models"

type NodeType struct {
	Type      models.NodeType `json:"type"`
	Label     string          `json:"label"`
	Category  string          `json:"category"`
	Inputs    []string        `json:"inputs"`
	HasOutput bool            `json:"hasOutput"`
	Params    []Param         `json:"params"`
}

type Param struct {
	Name    string           `json:"name"`
	Kind    models.ParamKind `json:"kind"`
	Default any              `json:"default"`
	Options []string         `json:"options,omitempty"`
	Min     *float64         `json:"min,omitempty"`
	Max     *float64         `json:"max,omitempty"`
}
