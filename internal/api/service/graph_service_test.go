package service

import (
	"testing"

	"studio/internal/api/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraph() *GraphService {
	return NewGraphService(models.DefaultRegistry(), zerolog.Nop())
}

func mustAdd(t *testing.T, g *GraphService, typ models.NodeType) models.Node {
	t.Helper()
	node, err := g.AddNode(typ, models.Position{X: 10, Y: 20})
	require.NoError(t, err)
	return node
}

// ============ Node Tests ============

func TestGraph_AddNodeUsesDefaults(t *testing.T) {
	g := newGraph()

	input := mustAdd(t, g, models.NodeTypeInput)
	linear := mustAdd(t, g, models.NodeTypeLinear)

	assert.Equal(t, "input-1", input.ID)
	assert.Equal(t, "linear-2", linear.ID)
	assert.Equal(t, []int64{1, 28, 28}, input.Params["shape"].Tuple())
	assert.Equal(t, int64(784), linear.Params["in_features"].Int())
	assert.Equal(t, 2, g.NodeCount())
}

func TestGraph_AddNodeUnknownType(t *testing.T) {
	g := newGraph()
	_, err := g.AddNode("transformer", models.Position{})
	assert.ErrorIs(t, err, models.ErrUnknownNodeType)
	assert.Zero(t, g.NodeCount())
}

func TestGraph_NodesOfSameTypeDoNotShareParams(t *testing.T) {
	g := newGraph()
	first := mustAdd(t, g, models.NodeTypeInput)
	second := mustAdd(t, g, models.NodeTypeInput)

	_, err := g.UpdateNodeParam(first.ID, "shape", []any{3.0, 32.0, 32.0})
	require.NoError(t, err)

	got, err := g.Node(second.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 28, 28}, got.Params["shape"].Tuple())

	fresh := mustAdd(t, g, models.NodeTypeInput)
	assert.Equal(t, []int64{1, 28, 28}, fresh.Params["shape"].Tuple())
}

func TestGraph_UpdateNodeParam(t *testing.T) {
	g := newGraph()
	dropout := mustAdd(t, g, models.NodeTypeDropout)

	updated, err := g.UpdateNodeParam(dropout.ID, "p", 0.2)
	require.NoError(t, err)
	assert.Equal(t, 0.2, updated.Params["p"].Float())

	_, err = g.UpdateNodeParam(dropout.ID, "p", 2.0)
	assert.ErrorIs(t, err, models.ErrInvalidParamValue)

	_, err = g.UpdateNodeParam(dropout.ID, "rate", 0.2)
	assert.ErrorIs(t, err, models.ErrInvalidParamValue)

	_, err = g.UpdateNodeParam("dropout-99", "p", 0.2)
	assert.ErrorIs(t, err, models.ErrNodeNotFound)

	got, err := g.Node(dropout.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.2, got.Params["p"].Float())
}

func TestGraph_MoveNode(t *testing.T) {
	g := newGraph()
	relu := mustAdd(t, g, models.NodeTypeReLU)

	require.NoError(t, g.MoveNode(relu.ID, models.Position{X: 300, Y: 150}))
	got, err := g.Node(relu.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Position{X: 300, Y: 150}, got.Position)

	assert.ErrorIs(t, g.MoveNode("relu-42", models.Position{}), models.ErrNodeNotFound)
}

// ============ Connection Tests ============

func TestGraph_ConnectPositional(t *testing.T) {
	g := newGraph()
	input := mustAdd(t, g, models.NodeTypeInput)
	linear := mustAdd(t, g, models.NodeTypeLinear)

	edge, err := g.Connect(input.ID, "", linear.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "reactflow__edge-input-1-linear-2", edge.ID)
	assert.Len(t, g.Snapshot().Edges, 1)
}

func TestGraph_ConnectDuplicateTarget(t *testing.T) {
	g := newGraph()
	a := mustAdd(t, g, models.NodeTypeInput)
	b := mustAdd(t, g, models.NodeTypeInput)
	linear := mustAdd(t, g, models.NodeTypeLinear)

	_, err := g.Connect(a.ID, "", linear.ID, "")
	require.NoError(t, err)

	_, err = g.Connect(a.ID, "", linear.ID, "")
	assert.ErrorIs(t, err, models.ErrDuplicateConnection)

	_, err = g.Connect(b.ID, "", linear.ID, "")
	assert.ErrorIs(t, err, models.ErrDuplicateConnection)
	assert.Len(t, g.Snapshot().Edges, 1)
}

func TestGraph_ConnectNamedHandles(t *testing.T) {
	g := newGraph()
	q := mustAdd(t, g, models.NodeTypeLinear)
	k := mustAdd(t, g, models.NodeTypeLinear)
	attention := mustAdd(t, g, models.NodeTypeMultiheadAttention)

	_, err := g.Connect(q.ID, "", attention.ID, "query")
	require.NoError(t, err)
	_, err = g.Connect(k.ID, "", attention.ID, "key")
	require.NoError(t, err)
	_, err = g.Connect(k.ID, "", attention.ID, "value")
	require.NoError(t, err)

	_, err = g.Connect(q.ID, "", attention.ID, "")
	assert.ErrorIs(t, err, models.ErrInvalidHandle)

	_, err = g.Connect(q.ID, "", attention.ID, "input1")
	assert.ErrorIs(t, err, models.ErrInvalidHandle)

	_, err = g.Connect(q.ID, "", attention.ID, "query")
	assert.ErrorIs(t, err, models.ErrDuplicateConnection)
}

func TestGraph_ConnectInvalidEndpoints(t *testing.T) {
	g := newGraph()
	input := mustAdd(t, g, models.NodeTypeInput)
	output := mustAdd(t, g, models.NodeTypeOutput)
	linear := mustAdd(t, g, models.NodeTypeLinear)

	_, err := g.Connect(output.ID, "", linear.ID, "")
	assert.ErrorIs(t, err, models.ErrInvalidHandle, "output nodes have no output handle")

	_, err = g.Connect(linear.ID, "", input.ID, "")
	assert.ErrorIs(t, err, models.ErrInvalidHandle, "input nodes accept no edges")

	_, err = g.Connect(input.ID, "out2", linear.ID, "")
	assert.ErrorIs(t, err, models.ErrInvalidHandle)

	_, err = g.Connect("ghost-7", "", linear.ID, "")
	assert.ErrorIs(t, err, models.ErrNodeNotFound)

	_, err = g.Connect(input.ID, "", "ghost-7", "")
	assert.ErrorIs(t, err, models.ErrNodeNotFound)
}

func TestGraph_RemoveNodeCascades(t *testing.T) {
	g := newGraph()
	input := mustAdd(t, g, models.NodeTypeInput)
	linear := mustAdd(t, g, models.NodeTypeLinear)
	output := mustAdd(t, g, models.NodeTypeOutput)

	_, err := g.Connect(input.ID, "", linear.ID, "")
	require.NoError(t, err)
	_, err = g.Connect(linear.ID, "", output.ID, "")
	require.NoError(t, err)

	removed, err := g.RemoveNode(linear.ID)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	snap := g.Snapshot()
	assert.Len(t, snap.Nodes, 2)
	assert.Empty(t, snap.Edges)

	_, err = g.RemoveNode(linear.ID)
	assert.ErrorIs(t, err, models.ErrNodeNotFound)
}

func TestGraph_RemoveEdge(t *testing.T) {
	g := newGraph()
	input := mustAdd(t, g, models.NodeTypeInput)
	linear := mustAdd(t, g, models.NodeTypeLinear)
	edge, err := g.Connect(input.ID, "", linear.ID, "")
	require.NoError(t, err)

	require.NoError(t, g.RemoveEdge(edge.ID))
	assert.Empty(t, g.Snapshot().Edges)
	assert.ErrorIs(t, g.RemoveEdge(edge.ID), models.ErrEdgeNotFound)

	_, err = g.Connect(input.ID, "", linear.ID, "")
	assert.NoError(t, err, "slot is free again")
}

// ============ Snapshot Tests ============

func TestGraph_SnapshotIsIndependent(t *testing.T) {
	g := newGraph()
	input := mustAdd(t, g, models.NodeTypeInput)

	snap := g.Snapshot()
	_, err := g.UpdateNodeParam(input.ID, "shape", []any{3.0, 64.0, 64.0})
	require.NoError(t, err)
	mustAdd(t, g, models.NodeTypeLinear)

	assert.Len(t, snap.Nodes, 1)
	assert.Equal(t, []int64{1, 28, 28}, snap.Nodes[0].Params["shape"].Tuple())
}

func TestGraph_SnapshotMatchesIndependentConstruction(t *testing.T) {
	build := func(readBetween bool) models.GraphSnapshot {
		g := newGraph()
		input := mustAdd(t, g, models.NodeTypeInput)
		if readBetween {
			_ = g.Snapshot()
			_ = g.NodeCount()
		}
		linear := mustAdd(t, g, models.NodeTypeLinear)
		if readBetween {
			_, _ = g.Node(input.ID)
		}
		_, err := g.Connect(input.ID, "", linear.ID, "")
		require.NoError(t, err)
		return g.Snapshot()
	}

	assert.Equal(t, build(false), build(true))
}

func TestGraph_Replace(t *testing.T) {
	g := newGraph()
	mustAdd(t, g, models.NodeTypeReLU)

	err := g.Replace([]NodeSpec{
		{ID: "input-7", Type: models.NodeTypeInput, Params: map[string]any{"shape": []any{1.0, 28.0, 28.0}}},
		{ID: "linear-9", Type: models.NodeTypeLinear, Params: map[string]any{"out_features": 10.0}},
	}, []models.Edge{{Source: "input-7", Target: "linear-9"}})
	require.NoError(t, err)

	snap := g.Snapshot()
	require.Len(t, snap.Nodes, 2)
	assert.Equal(t, int64(784), snap.Nodes[1].Params["in_features"].Int(), "missing params get defaults")
	assert.Equal(t, int64(10), snap.Nodes[1].Params["out_features"].Int())
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, "reactflow__edge-input-7-linear-9", snap.Edges[0].ID)

	next := mustAdd(t, g, models.NodeTypeReLU)
	assert.Equal(t, "relu-10", next.ID, "ids continue after the highest loaded id")
}

func TestGraph_ReplaceRejectsInvalidGraphAtomically(t *testing.T) {
	g := newGraph()
	existing := mustAdd(t, g, models.NodeTypeInput)

	err := g.Replace([]NodeSpec{
		{ID: "a", Type: models.NodeTypeLinear},
		{ID: "b", Type: models.NodeTypeAdd},
	}, []models.Edge{{Source: "a", Target: "b"}})
	assert.ErrorIs(t, err, models.ErrInvalidHandle)

	err = g.Replace([]NodeSpec{{ID: "a", Type: models.NodeTypeDropout, Params: map[string]any{"p": 7.0}}}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidParamValue)

	err = g.Replace([]NodeSpec{{ID: "a", Type: "capsule"}}, nil)
	assert.ErrorIs(t, err, models.ErrUnknownNodeType)

	snap := g.Snapshot()
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, existing.ID, snap.Nodes[0].ID)
}
