package models

import (
	"encoding/json"
	"slices"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one layer placed in the editor. The wire shape follows the editor's node format:
// {id, type, position, data: {label, params}}.
type Node struct {
	ID       string
	Type     NodeType
	Position Position
	Params   Params
}

type nodeData struct {
	Label  string `json:"label"`
	Params Params `json:"params"`
}

type nodeJSON struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Position Position `json:"position"`
	Data     nodeData `json:"data"`
}

func (slf Node) MarshalJSON() ([]byte, error) {
	params := slf.Params
	if params == nil {
		params = Params{}
	}
	return json.Marshal(nodeJSON{
		ID:       slf.ID,
		Type:     slf.Type,
		Position: slf.Position,
		Data:     nodeData{Label: slf.Type.Label(), Params: params},
	})
}

func (slf Node) Clone() Node {
	c := slf
	c.Params = slf.Params.Clone()
	return c
}

// Edge connects the output of Source to an input handle of Target.
// Empty handle names travel as null, like the editor sends them.
type Edge struct {
	ID           string
	Source       string
	SourceHandle string
	Target       string
	TargetHandle string
}

type edgeJSON struct {
	ID           string  `json:"id"`
	Source       string  `json:"source"`
	SourceHandle *string `json:"sourceHandle"`
	Target       string  `json:"target"`
	TargetHandle *string `json:"targetHandle"`
}

func (slf Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal(edgeJSON{
		ID:           slf.ID,
		Source:       slf.Source,
		SourceHandle: handlePtr(slf.SourceHandle),
		Target:       slf.Target,
		TargetHandle: handlePtr(slf.TargetHandle),
	})
}

func (slf *Edge) UnmarshalJSON(data []byte) error {
	var raw edgeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*slf = Edge{ID: raw.ID, Source: raw.Source, Target: raw.Target}
	if raw.SourceHandle != nil {
		slf.SourceHandle = *raw.SourceHandle
	}
	if raw.TargetHandle != nil {
		slf.TargetHandle = *raw.TargetHandle
	}
	return nil
}

// Touches reports whether the edge has nodeID at either end.
func (slf Edge) Touches(nodeID string) bool {
	return slf.Source == nodeID || slf.Target == nodeID
}

// EdgeID builds the identifier the editor assigns to a new connection.
func EdgeID(source, sourceHandle, target, targetHandle string) string {
	return "reactflow__edge-" + source + sourceHandle + "-" + target + targetHandle
}

func handlePtr(name string) *string {
	if name == "" {
		return nil
	}
	return &name
}

// GraphSnapshot is an immutable copy of the graph, used as a command argument.
type GraphSnapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone deep copies the snapshot.
func (g GraphSnapshot) Clone() GraphSnapshot {
	out := GraphSnapshot{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: slices.Clone(g.Edges),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	return out
}

func (g GraphSnapshot) MarshalJSON() ([]byte, error) {
	type plain GraphSnapshot
	p := plain(g)
	if p.Nodes == nil {
		p.Nodes = []Node{}
	}
	if p.Edges == nil {
		p.Edges = []Edge{}
	}
	return json.Marshal(p)
}

// HasCycle reports whether the edges form a directed cycle (Kahn's algorithm).
func (g GraphSnapshot) HasCycle() bool {
	indegree := make(map[string]int, len(g.Nodes))
	next := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		next[e.Source] = append(next[e.Source], e.Target)
		indegree[e.Target]++
	}

	queue := make([]string, 0, len(indegree))
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, t := range next[id] {
			indegree[t]--
			if indegree[t] == 0 {
				queue = append(queue, t)
			}
		}
	}
	return visited != len(indegree)
}
