package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"studio/internal/api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScript(t *testing.T, commands ...models.Command) []models.Event {
	t.Helper()
	var in bytes.Buffer
	for _, cmd := range commands {
		line, err := cmd.Encode()
		require.NoError(t, err)
		in.Write(line)
	}

	var out bytes.Buffer
	w := &worker{out: json.NewEncoder(&out)}
	require.Zero(t, w.run(&in))

	var events []models.Event
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		ev, err := models.DecodeEvent([]byte(line))
		require.NoError(t, err, line)
		events = append(events, ev)
	}
	return events
}

func mnistGraph() models.GraphSnapshot {
	reg := models.DefaultRegistry()
	node := func(id string, typ models.NodeType) models.Node {
		s, _ := reg.SchemaFor(typ)
		return models.Node{ID: id, Type: typ, Params: s.DefaultParams()}
	}
	return models.GraphSnapshot{
		Nodes: []models.Node{node("input-1", models.NodeTypeInput), node("linear-2", models.NodeTypeLinear), node("output-3", models.NodeTypeOutput)},
		Edges: []models.Edge{{ID: "a", Source: "input-1", Target: "linear-2"}, {ID: "b", Source: "linear-2", Target: "output-3"}},
	}
}

func TestFakeWorker_ValidateCountsParams(t *testing.T) {
	events := runScript(t, models.NewValidateCommand(mnistGraph()))

	require.Len(t, events, 2)
	assert.Equal(t, models.EventReady, events[0].Tag())
	assert.Equal(t, models.ValidationSuccess{NodeCount: 3, TotalParams: 100480}, events[1])
}

func TestFakeWorker_ValidateRejectsEmptyGraph(t *testing.T) {
	events := runScript(t, models.NewValidateCommand(models.GraphSnapshot{}))

	require.Len(t, events, 2)
	assert.Equal(t, models.ValidationError{Errors: []string{"Graph is empty"}}, events[1])
}

func TestFakeWorker_TrainSequence(t *testing.T) {
	cfg := models.DefaultTrainConfig()
	cfg.Epochs = 2
	events := runScript(t, models.NewTrainCommand(mnistGraph(), cfg))

	var tags []models.EventTag
	for _, ev := range events {
		tags = append(tags, ev.Tag())
	}
	assert.Equal(t, []models.EventTag{
		models.EventReady, models.EventValidationSuccess, models.EventTrainingStart,
		models.EventBatchEnd, models.EventBatchEnd, models.EventBatchEnd, models.EventBatchEnd, models.EventEpochEnd,
		models.EventBatchEnd, models.EventBatchEnd, models.EventBatchEnd, models.EventBatchEnd, models.EventEpochEnd,
		models.EventTrainingComplete,
	}, tags)

	first := events[7].(models.EpochEnd)
	second := events[12].(models.EpochEnd)
	assert.Less(t, second.Loss, first.Loss)
	assert.Greater(t, second.Accuracy, first.Accuracy)
}

func TestFakeWorker_OtherCommands(t *testing.T) {
	events := runScript(t,
		models.NewExportCommand("/tmp/out"),
		models.NewGenerateCodeCommand(mnistGraph()),
		models.NewSystemInfoCommand(),
		models.Command{Tag: "dance"},
	)

	require.Len(t, events, 5)
	assert.Equal(t, "/tmp/out/model.py", events[1].(models.ExportComplete).CodePath())
	assert.Contains(t, events[2].(models.CodeGenerated).Code, "# linear-2: linear")
	assert.Contains(t, events[3].(models.SystemInfo).Info, "cpu_count")
	assert.Equal(t, models.EventError, events[4].Tag())
}
