// Command fakeworker speaks the worker protocol without a training engine: it reads one
// command per line on stdin and answers with scripted events on stdout. Point
// WORKER_COMMAND at it to run the editor end to end without Python.
//
// FAKEWORKER_EPOCH_DELAY (a Go duration, default 300ms) paces training. Nothing is ever
// written to stderr, since the supervisor reports stderr output as an error.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"studio/internal/api/models"
)

type wireCommand struct {
	Command models.CommandTag   `json:"command"`
	Graph   *wireGraph          `json:"graph"`
	Config  *models.TrainConfig `json:"config"`
	Path    string              `json:"path"`
}

type wireGraph struct {
	Nodes []struct {
		ID   string          `json:"id"`
		Type models.NodeType `json:"type"`
		Data struct {
			Params map[string]any `json:"params"`
		} `json:"data"`
	} `json:"nodes"`
	Edges []json.RawMessage `json:"edges"`
}

type worker struct {
	out        *json.Encoder
	epochDelay time.Duration
}

func main() {
	delay, err := time.ParseDuration(os.Getenv("FAKEWORKER_EPOCH_DELAY"))
	if err != nil {
		delay = 300 * time.Millisecond
	}
	w := &worker{out: json.NewEncoder(os.Stdout), epochDelay: delay}
	os.Exit(w.run(os.Stdin))
}

func (w *worker) run(in io.Reader) int {
	w.emit(models.Ready{Message: "Fake backend ready"})

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var cmd wireCommand
		if err := json.Unmarshal(line, &cmd); err != nil {
			w.emit(models.ErrorEvent{Message: "Invalid JSON: " + err.Error()})
			continue
		}
		w.handle(cmd)
	}
	if scanner.Err() != nil {
		return 1
	}
	return 0
}

func (w *worker) handle(cmd wireCommand) {
	switch cmd.Command {
	case models.CommandValidate:
		w.validate(cmd.Graph)
	case models.CommandTrain:
		if cmd.Config == nil {
			w.emit(models.ErrorEvent{Message: "train without config"})
			return
		}
		if !w.validate(cmd.Graph) {
			return
		}
		w.train(*cmd.Config)
	case models.CommandGenerateCode:
		w.emit(models.CodeGenerated{Code: generateCode(cmd.Graph)})
	case models.CommandExport:
		path := cmd.Path
		if path == "" {
			path = "./exports"
		}
		w.emit(models.ExportComplete{Files: map[string]string{"code": path + "/model.py"}})
	case models.CommandGetSystemInfo:
		w.emit(models.SystemInfo{Info: map[string]any{
			"platform":       runtime.GOOS,
			"arch":           runtime.GOARCH,
			"cpu_count":      runtime.NumCPU(),
			"cuda_available": false,
		}})
	default:
		w.emit(models.ErrorEvent{Message: fmt.Sprintf("Unknown command: %s", cmd.Command)})
	}
}

func (w *worker) validate(g *wireGraph) bool {
	var errs []string
	if g == nil || len(g.Nodes) == 0 {
		errs = append(errs, "Graph is empty")
	} else {
		var inputs, outputs int
		for _, n := range g.Nodes {
			switch n.Type {
			case models.NodeTypeInput:
				inputs++
			case models.NodeTypeOutput:
				outputs++
			}
		}
		if inputs == 0 {
			errs = append(errs, "Graph has no input node")
		}
		if outputs == 0 {
			errs = append(errs, "Graph has no output node")
		}
	}
	if len(errs) > 0 {
		w.emit(models.ValidationError{Errors: errs})
		return false
	}

	var total int64
	for _, n := range g.Nodes {
		total += paramCount(n.Type, n.Data.Params)
	}
	w.emit(models.ValidationSuccess{NodeCount: len(g.Nodes), TotalParams: total})
	return true
}

func (w *worker) train(cfg models.TrainConfig) {
	w.emit(models.TrainingStart{Epochs: cfg.Epochs, Optimizer: cfg.Optimizer, LearningRate: cfg.LearningRate})

	const batches = 4
	loss, accuracy := 2.3, 0.1
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		for b := 1; b <= batches; b++ {
			time.Sleep(w.epochDelay / batches)
			w.emit(models.BatchEnd{Batch: b, TotalBatches: batches, Loss: loss})
		}
		loss *= 0.7
		accuracy += (1 - accuracy) * 0.4
		w.emit(models.EpochEnd{Epoch: epoch, Loss: loss, Accuracy: accuracy})
	}
	w.emit(models.TrainingComplete{FinalAccuracy: accuracy, FinalLoss: &loss})
}

func (w *worker) emit(ev models.Event) {
	line, err := models.EncodeEvent(ev)
	if err != nil {
		return
	}
	_ = w.out.Encode(json.RawMessage(line))
}

// paramCount estimates trainable parameters for the layer types whose size follows
// directly from their params.
func paramCount(t models.NodeType, p map[string]any) int64 {
	get := func(name string) int64 {
		if v, ok := p[name].(float64); ok {
			return int64(v)
		}
		return 0
	}
	switch t {
	case models.NodeTypeLinear:
		return get("in_features")*get("out_features") + get("out_features")
	case models.NodeTypeConv1D, models.NodeTypeConv2D, models.NodeTypeConv3D:
		k := get("kernel_size")
		dims := map[models.NodeType]int{models.NodeTypeConv1D: 1, models.NodeTypeConv2D: 2, models.NodeTypeConv3D: 3}[t]
		kernel := int64(1)
		for range dims {
			kernel *= k
		}
		return get("in_channels")*get("out_channels")*kernel + get("out_channels")
	case models.NodeTypeEmbedding:
		return get("num_embeddings") * get("embedding_dim")
	case models.NodeTypeBatchNorm, models.NodeTypeInstanceNorm:
		return 2 * get("num_features")
	case models.NodeTypeLayerNorm:
		return 2 * get("normalized_shape")
	default:
		return 0
	}
}

func generateCode(g *wireGraph) string {
	code := "import torch\nimport torch.nn as nn\n\n\nclass GeneratedModel(nn.Module):\n    def __init__(self):\n        super().__init__()\n"
	if g != nil {
		for _, n := range g.Nodes {
			code += fmt.Sprintf("        # %s: %s\n", n.ID, n.Type)
		}
	}
	return code
}
