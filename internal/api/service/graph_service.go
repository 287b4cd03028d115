package service

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"studio/internal/api/models"
	"studio/pkg/metrics"

	"github.com/rs/zerolog"
)

// GraphService holds the graph being edited. Every mutation is checked against the node
// type registry and fails synchronously; Snapshot hands out deep copies so commands never
// share memory with the live graph.
type GraphService struct {
	registry *models.Registry
	logger   zerolog.Logger

	mu      sync.RWMutex
	nodes   []models.Node
	edges   []models.Edge
	counter uint64
}

func NewGraphService(registry *models.Registry, logger zerolog.Logger) *GraphService {
	return &GraphService{
		registry: registry,
		logger:   logger.With().Str("component", "graph").Logger(),
	}
}

// AddNode places a node of type t with fresh default params and returns it.
func (slf *GraphService) AddNode(t models.NodeType, position models.Position) (models.Node, error) {
	schema, err := slf.registry.SchemaFor(t)
	if err != nil {
		return models.Node{}, err
	}

	slf.mu.Lock()
	defer slf.mu.Unlock()

	slf.counter++
	node := models.Node{
		ID:       fmt.Sprintf("%s-%d", t, slf.counter),
		Type:     t,
		Position: position,
		Params:   schema.DefaultParams(),
	}
	slf.nodes = append(slf.nodes, node)
	slf.updateGauge()

	slf.logger.Debug().Str("nodeId", node.ID).Str("type", string(t)).Msg("Node added")
	return node.Clone(), nil
}

// UpdateNodeParam replaces one parameter. The key must be declared by the node's type and
// the value must coerce to its kind.
func (slf *GraphService) UpdateNodeParam(nodeID, key string, value any) (models.Node, error) {
	slf.mu.Lock()
	defer slf.mu.Unlock()

	i := slf.nodeIndex(nodeID)
	if i < 0 {
		return models.Node{}, fmt.Errorf("%w: %s", models.ErrNodeNotFound, nodeID)
	}
	node := &slf.nodes[i]

	schema, err := slf.registry.SchemaFor(node.Type)
	if err != nil {
		return models.Node{}, err
	}
	spec, ok := schema.Param(key)
	if !ok {
		return models.Node{}, fmt.Errorf("%w: %s has no parameter %q", models.ErrInvalidParamValue, node.Type, key)
	}
	coerced, err := spec.Coerce(value)
	if err != nil {
		return models.Node{}, err
	}

	node.Params[key] = coerced
	slf.logger.Debug().Str("nodeId", nodeID).Str("param", key).Stringer("value", coerced).Msg("Node param updated")
	return node.Clone(), nil
}

// MoveNode updates a node's canvas position.
func (slf *GraphService) MoveNode(nodeID string, position models.Position) error {
	slf.mu.Lock()
	defer slf.mu.Unlock()

	i := slf.nodeIndex(nodeID)
	if i < 0 {
		return fmt.Errorf("%w: %s", models.ErrNodeNotFound, nodeID)
	}
	slf.nodes[i].Position = position
	return nil
}

// RemoveNode deletes a node together with every edge touching it and returns the removed edges.
func (slf *GraphService) RemoveNode(nodeID string) ([]models.Edge, error) {
	slf.mu.Lock()
	defer slf.mu.Unlock()

	i := slf.nodeIndex(nodeID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrNodeNotFound, nodeID)
	}
	slf.nodes = slices.Delete(slf.nodes, i, i+1)

	var removed []models.Edge
	slf.edges = slices.DeleteFunc(slf.edges, func(e models.Edge) bool {
		if e.Touches(nodeID) {
			removed = append(removed, e)
			return true
		}
		return false
	})
	slf.updateGauge()

	slf.logger.Debug().Str("nodeId", nodeID).Int("edgesRemoved", len(removed)).Msg("Node removed")
	return removed, nil
}

// Connect adds an edge from source's output to one of target's input handles. Empty handle
// names select the positional slot and are only valid on types that have one.
func (slf *GraphService) Connect(sourceID, sourceHandle, targetID, targetHandle string) (models.Edge, error) {
	slf.mu.Lock()
	defer slf.mu.Unlock()

	source, err := slf.schemaOf(sourceID)
	if err != nil {
		return models.Edge{}, err
	}
	target, err := slf.schemaOf(targetID)
	if err != nil {
		return models.Edge{}, err
	}
	if err := checkHandles(source, sourceHandle, target, targetHandle); err != nil {
		return models.Edge{}, err
	}

	for _, e := range slf.edges {
		if e.Target == targetID && e.TargetHandle == targetHandle {
			return models.Edge{}, fmt.Errorf("%w: %s%s", models.ErrDuplicateConnection, targetID, handleSuffix(targetHandle))
		}
	}

	edge := models.Edge{
		ID:           models.EdgeID(sourceID, sourceHandle, targetID, targetHandle),
		Source:       sourceID,
		SourceHandle: sourceHandle,
		Target:       targetID,
		TargetHandle: targetHandle,
	}
	slf.edges = append(slf.edges, edge)

	slf.logger.Debug().Str("edgeId", edge.ID).Msg("Nodes connected")
	return edge, nil
}

// RemoveEdge deletes one edge by id.
func (slf *GraphService) RemoveEdge(edgeID string) error {
	slf.mu.Lock()
	defer slf.mu.Unlock()

	i := slices.IndexFunc(slf.edges, func(e models.Edge) bool { return e.ID == edgeID })
	if i < 0 {
		return fmt.Errorf("%w: %s", models.ErrEdgeNotFound, edgeID)
	}
	slf.edges = slices.Delete(slf.edges, i, i+1)
	return nil
}

func (slf *GraphService) Node(nodeID string) (models.Node, error) {
	slf.mu.RLock()
	defer slf.mu.RUnlock()

	i := slf.nodeIndex(nodeID)
	if i < 0 {
		return models.Node{}, fmt.Errorf("%w: %s", models.ErrNodeNotFound, nodeID)
	}
	return slf.nodes[i].Clone(), nil
}

// Snapshot returns a deep copy of the graph. It has no side effects.
func (slf *GraphService) Snapshot() models.GraphSnapshot {
	slf.mu.RLock()
	defer slf.mu.RUnlock()
	return models.GraphSnapshot{Nodes: slf.nodes, Edges: slf.edges}.Clone()
}

// NodeSpec is a node as loaded from outside: params may be raw JSON values or ParamValues.
type NodeSpec struct {
	ID       string
	Type     models.NodeType
	Position models.Position
	Params   map[string]any
}

// Replace swaps the whole graph after checking it the same way the individual
// mutations would: known types, declared params of the right kind, valid and unique handles.
// Params missing from a node are filled with defaults. On error the current graph is kept.
func (slf *GraphService) Replace(specs []NodeSpec, edgeList []models.Edge) error {
	nodes := make([]models.Node, 0, len(specs))
	schemas := make(map[string]models.NodeTypeSchema, len(specs))
	var counter uint64

	for _, n := range specs {
		if n.ID == "" {
			return fmt.Errorf("node id is empty")
		}
		if _, dup := schemas[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		schema, err := slf.registry.SchemaFor(n.Type)
		if err != nil {
			return err
		}
		params := schema.DefaultParams()
		for key, value := range n.Params {
			spec, ok := schema.Param(key)
			if !ok {
				return fmt.Errorf("%w: %s has no parameter %q", models.ErrInvalidParamValue, n.Type, key)
			}
			coerced, err := spec.Coerce(value)
			if err != nil {
				return fmt.Errorf("node %s: %w", n.ID, err)
			}
			params[key] = coerced
		}
		schemas[n.ID] = schema
		nodes = append(nodes, models.Node{ID: n.ID, Type: n.Type, Position: n.Position, Params: params})
		counter = max(counter, idCounter(n.ID))
	}

	edges := make([]models.Edge, 0, len(edgeList))
	taken := make(map[string]bool, len(edgeList))
	for _, e := range edgeList {
		source, ok := schemas[e.Source]
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrNodeNotFound, e.Source)
		}
		target, ok := schemas[e.Target]
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrNodeNotFound, e.Target)
		}
		if err := checkHandles(source, e.SourceHandle, target, e.TargetHandle); err != nil {
			return err
		}
		slot := e.Target + "\x00" + e.TargetHandle
		if taken[slot] {
			return fmt.Errorf("%w: %s%s", models.ErrDuplicateConnection, e.Target, handleSuffix(e.TargetHandle))
		}
		taken[slot] = true
		if e.ID == "" {
			e.ID = models.EdgeID(e.Source, e.SourceHandle, e.Target, e.TargetHandle)
		}
		edges = append(edges, e)
	}

	slf.mu.Lock()
	defer slf.mu.Unlock()
	slf.nodes = nodes
	slf.edges = edges
	slf.counter = max(slf.counter, counter)
	slf.updateGauge()

	slf.logger.Info().Int("nodes", len(nodes)).Int("edges", len(edges)).Msg("Graph replaced")
	return nil
}

// Clear removes every node and edge. Ids keep counting up.
func (slf *GraphService) Clear() {
	slf.mu.Lock()
	defer slf.mu.Unlock()
	slf.nodes = nil
	slf.edges = nil
	slf.updateGauge()
}

func (slf *GraphService) NodeCount() int {
	slf.mu.RLock()
	defer slf.mu.RUnlock()
	return len(slf.nodes)
}

func (slf *GraphService) nodeIndex(nodeID string) int {
	return slices.IndexFunc(slf.nodes, func(n models.Node) bool { return n.ID == nodeID })
}

func (slf *GraphService) schemaOf(nodeID string) (models.NodeTypeSchema, error) {
	i := slf.nodeIndex(nodeID)
	if i < 0 {
		return models.NodeTypeSchema{}, fmt.Errorf("%w: %s", models.ErrNodeNotFound, nodeID)
	}
	return slf.registry.SchemaFor(slf.nodes[i].Type)
}

func (slf *GraphService) updateGauge() {
	metrics.GraphNodes.Set(float64(len(slf.nodes)))
}

func checkHandles(source models.NodeTypeSchema, sourceHandle string, target models.NodeTypeSchema, targetHandle string) error {
	if !source.HasOutput {
		return fmt.Errorf("%w: %s has no output", models.ErrInvalidHandle, source.Type)
	}
	if sourceHandle != "" {
		return fmt.Errorf("%w: %s has no output %q", models.ErrInvalidHandle, source.Type, sourceHandle)
	}
	if !target.AcceptsInput(targetHandle) {
		if targetHandle == "" {
			return fmt.Errorf("%w: %s requires a named input handle", models.ErrInvalidHandle, target.Type)
		}
		return fmt.Errorf("%w: %s has no input %q", models.ErrInvalidHandle, target.Type, targetHandle)
	}
	return nil
}

func handleSuffix(handle string) string {
	if handle == "" {
		return ""
	}
	return "." + handle
}

// idCounter extracts the numeric suffix of an id like "linear-12", or 0.
func idCounter(id string) uint64 {
	i := strings.LastIndexByte(id, '-')
	if i < 0 {
		return 0
	}
	n, err := strconv.ParseUint(id[i+1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
