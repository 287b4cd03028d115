package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph() GraphSnapshot {
	return GraphSnapshot{
		Nodes: []Node{
			{ID: "input-1", Type: NodeTypeInput, Params: Params{"shape": TupleParam(1, 28, 28)}},
			{ID: "output-2", Type: NodeTypeOutput, Params: Params{
				"outputType": EnumParam("classification"),
				"numClasses": IntParam(10),
			}},
		},
		Edges: []Edge{{ID: EdgeID("input-1", "", "output-2", ""), Source: "input-1", Target: "output-2"}},
	}
}

func TestCommand_EncodeValidate(t *testing.T) {
	line, err := NewValidateCommand(sampleGraph()).Encode()
	require.NoError(t, err)
	require.Equal(t, byte('\n'), line[len(line)-1])
	assert.NotContains(t, string(line[:len(line)-1]), "\n")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(line, &decoded))
	assert.Equal(t, "validate", decoded["command"])
	assert.NotContains(t, decoded, "config")
	assert.NotContains(t, decoded, "path")

	graph := decoded["graph"].(map[string]any)
	assert.Len(t, graph["nodes"], 2)
	assert.Len(t, graph["edges"], 1)
}

func TestCommand_EncodeTrain(t *testing.T) {
	cfg := TrainConfig{Optimizer: "sgd", LearningRate: 0.01, Epochs: 3, BatchSize: 32}
	cmd := NewTrainCommand(sampleGraph(), cfg)
	require.NoError(t, cmd.Validate())

	line, err := cmd.Encode()
	require.NoError(t, err)

	var decoded struct {
		Command string         `json:"command"`
		Config  map[string]any `json:"config"`
	}
	require.NoError(t, json.Unmarshal(line, &decoded))
	assert.Equal(t, "train", decoded.Command)
	assert.Equal(t, map[string]any{"optimizer": "sgd", "lr": 0.01, "epochs": 3.0, "batch_size": 32.0}, decoded.Config)
}

func TestCommand_EncodeExportAndSystemInfo(t *testing.T) {
	line, err := NewExportCommand("./exports").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"export","path":"./exports"}`, string(line))

	line, err = NewSystemInfoCommand().Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"get_system_info"}`, string(line))
}

func TestCommand_Validate(t *testing.T) {
	assert.ErrorIs(t, Command{Tag: CommandValidate}.Validate(), ErrInvalidCommand)
	assert.ErrorIs(t, Command{Tag: CommandTrain, Graph: &GraphSnapshot{}}.Validate(), ErrInvalidCommand)
	assert.ErrorIs(t, NewExportCommand("").Validate(), ErrInvalidCommand)
	assert.ErrorIs(t, Command{Tag: "shutdown"}.Validate(), ErrInvalidCommand)
	assert.NoError(t, NewGenerateCodeCommand(GraphSnapshot{}).Validate())
	assert.NoError(t, NewSystemInfoCommand().Validate())
}

func TestTrainConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultTrainConfig().Validate())

	bad := []TrainConfig{
		{Optimizer: "rmsprop", LearningRate: 0.001, Epochs: 1, BatchSize: 1},
		{Optimizer: "adam", LearningRate: 0, Epochs: 1, BatchSize: 1},
		{Optimizer: "adam", LearningRate: 0.001, Epochs: 0, BatchSize: 1},
		{Optimizer: "adam", LearningRate: 0.001, Epochs: 1, BatchSize: 0},
	}
	for _, cfg := range bad {
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidCommand, "%+v", cfg)
	}
}
