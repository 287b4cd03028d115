package models

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type CommandTag string

const (
	CommandValidate      CommandTag = "validate"
	CommandTrain         CommandTag = "train"
	CommandExport        CommandTag = "export"
	CommandGenerateCode  CommandTag = "generate_code"
	CommandGetSystemInfo CommandTag = "get_system_info"
)

var validate = validator.New()

// TrainConfig holds the hyper-parameters of a training run.
type TrainConfig struct {
	Optimizer    string  `json:"optimizer" validate:"required,oneof=adam sgd"`
	LearningRate float64 `json:"lr" validate:"gt=0"`
	Epochs       int     `json:"epochs" validate:"min=1"`
	BatchSize    int     `json:"batch_size" validate:"min=1"`
}

// DefaultTrainConfig mirrors the values the control panel starts with.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{Optimizer: "adam", LearningRate: 0.001, Epochs: 10, BatchSize: 64}
}

func (c TrainConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidCommand, err.Error())
	}
	return nil
}

// Command is one request for the worker. Tag decides which of the optional fields are set.
type Command struct {
	Tag    CommandTag     `json:"command"`
	Graph  *GraphSnapshot `json:"graph,omitempty"`
	Config *TrainConfig   `json:"config,omitempty"`
	Path   string         `json:"path,omitempty"`
}

func NewValidateCommand(graph GraphSnapshot) Command {
	return Command{Tag: CommandValidate, Graph: &graph}
}

func NewTrainCommand(graph GraphSnapshot, config TrainConfig) Command {
	return Command{Tag: CommandTrain, Graph: &graph, Config: &config}
}

func NewExportCommand(path string) Command {
	return Command{Tag: CommandExport, Path: path}
}

func NewGenerateCodeCommand(graph GraphSnapshot) Command {
	return Command{Tag: CommandGenerateCode, Graph: &graph}
}

func NewSystemInfoCommand() Command {
	return Command{Tag: CommandGetSystemInfo}
}

// Validate checks that the fields the tag requires are present.
func (c Command) Validate() error {
	switch c.Tag {
	case CommandValidate, CommandGenerateCode:
		if c.Graph == nil {
			return fmt.Errorf("%w: %s requires a graph", ErrInvalidCommand, c.Tag)
		}
	case CommandTrain:
		if c.Graph == nil || c.Config == nil {
			return fmt.Errorf("%w: train requires a graph and a config", ErrInvalidCommand)
		}
		return c.Config.Validate()
	case CommandExport:
		if c.Path == "" {
			return fmt.Errorf("%w: export requires a path", ErrInvalidCommand)
		}
	case CommandGetSystemInfo:
	default:
		return fmt.Errorf("%w: unknown tag %q", ErrInvalidCommand, c.Tag)
	}
	return nil
}

// Encode serializes the command as one protocol line, newline included.
func (c Command) Encode() ([]byte, error) {
	line, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSerialization, c.Tag, err)
	}
	return append(line, '\n'), nil
}
