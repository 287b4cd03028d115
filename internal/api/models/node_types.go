package models

import (
	"fmt"
	"slices"
	"strings"
)

type NodeType string

const (
	NodeTypeInput  NodeType = "input"
	NodeTypeOutput NodeType = "output"

	NodeTypeConv1D            NodeType = "conv1d"
	NodeTypeConv2D            NodeType = "conv2d"
	NodeTypeConv3D            NodeType = "conv3d"
	NodeTypeConvTranspose2D   NodeType = "convtranspose2d"
	NodeTypeMaxPool2D         NodeType = "maxpool2d"
	NodeTypeAvgPool2D         NodeType = "avgpool2d"
	NodeTypeAdaptiveAvgPool2D NodeType = "adaptiveavgpool2d"

	NodeTypeLinear  NodeType = "linear"
	NodeTypeFlatten NodeType = "flatten"

	NodeTypeLSTM NodeType = "lstm"
	NodeTypeGRU  NodeType = "gru"
	NodeTypeRNN  NodeType = "rnn"

	NodeTypeBatchNorm    NodeType = "batchnorm"
	NodeTypeLayerNorm    NodeType = "layernorm"
	NodeTypeGroupNorm    NodeType = "groupnorm"
	NodeTypeInstanceNorm NodeType = "instancenorm"

	NodeTypeReLU      NodeType = "relu"
	NodeTypeLeakyReLU NodeType = "leakyrelu"
	NodeTypeSigmoid   NodeType = "sigmoid"
	NodeTypeTanh      NodeType = "tanh"
	NodeTypeGELU      NodeType = "gelu"
	NodeTypeELU       NodeType = "elu"
	NodeTypeSiLU      NodeType = "silu"
	NodeTypeSoftmax   NodeType = "softmax"

	NodeTypeDropout     NodeType = "dropout"
	NodeTypeReshape     NodeType = "reshape"
	NodeTypeConcatenate NodeType = "concatenate"
	NodeTypeAdd         NodeType = "add"
	NodeTypeMultiply    NodeType = "multiply"
	NodeTypeEmbedding   NodeType = "embedding"

	NodeTypeMultiheadAttention NodeType = "multiheadattention"
)

// Label is the title the editor shows on a freshly placed node.
func (t NodeType) Label() string {
	return strings.ToUpper(string(t))
}

// NodeTypeSchema describes a node type: its input handles, whether it produces an output,
// and its parameters with their defaults.
type NodeTypeSchema struct {
	Type      NodeType    `json:"type"`
	Label     string      `json:"label"`
	Category  string      `json:"category"`
	Inputs    []Handle    `json:"inputs"`
	HasOutput bool        `json:"hasOutput"`
	Params    []ParamSpec `json:"-"`
}

// Param looks up the spec for a parameter name.
func (s NodeTypeSchema) Param(name string) (ParamSpec, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// DefaultParams returns a fresh copy of the type's default parameters.
func (s NodeTypeSchema) DefaultParams() Params {
	out := make(Params, len(s.Params))
	for _, p := range s.Params {
		out[p.Name] = p.Default.Clone()
	}
	return out
}

// AcceptsInput reports whether handle names one of the declared input slots.
func (s NodeTypeSchema) AcceptsInput(handle string) bool {
	for _, h := range s.Inputs {
		if h.Name == handle {
			return true
		}
	}
	return false
}

func (s NodeTypeSchema) clone() NodeTypeSchema {
	c := s
	c.Inputs = slices.Clone(s.Inputs)
	c.Params = make([]ParamSpec, len(s.Params))
	for i, p := range s.Params {
		c.Params[i] = p.clone()
	}
	return c
}

// Registry is the closed catalog of node types. It is built once and only read afterwards,
// so concurrent lookups need no locking.
type Registry struct {
	schemas map[NodeType]NodeTypeSchema
	order   []NodeType
}

func newRegistry(schemas []NodeTypeSchema) *Registry {
	r := &Registry{schemas: make(map[NodeType]NodeTypeSchema, len(schemas))}
	for _, s := range schemas {
		if _, dup := r.schemas[s.Type]; dup {
			panic(fmt.Sprintf("duplicate node type %q", s.Type))
		}
		r.schemas[s.Type] = s
		r.order = append(r.order, s.Type)
	}
	return r
}

var defaultRegistry = newRegistry(builtinNodeTypes())

// DefaultRegistry returns the process-wide registry the editor and the worker agree on.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// SchemaFor returns a copy of the schema registered under t.
func (r *Registry) SchemaFor(t NodeType) (NodeTypeSchema, error) {
	s, ok := r.schemas[t]
	if !ok {
		return NodeTypeSchema{}, fmt.Errorf("%w: %q", ErrUnknownNodeType, t)
	}
	return s.clone(), nil
}

// Types lists registered types in palette order.
func (r *Registry) Types() []NodeType {
	return slices.Clone(r.order)
}

func (r *Registry) Has(t NodeType) bool {
	_, ok := r.schemas[t]
	return ok
}

var (
	zero = 0.0
	one  = 1.0
)

func intParam(name string, def int64) ParamSpec {
	return ParamSpec{Name: name, Kind: ParamKindInt, Default: IntParam(def)}
}

func floatParam(name string, def float64) ParamSpec {
	return ParamSpec{Name: name, Kind: ParamKindFloat, Default: FloatParam(def)}
}

func boolParam(name string, def bool) ParamSpec {
	return ParamSpec{Name: name, Kind: ParamKindBool, Default: BoolParam(def)}
}

func textParam(name string, def string) ParamSpec {
	return ParamSpec{Name: name, Kind: ParamKindText, Default: TextParam(def)}
}

func single(t NodeType, label, category string, params ...ParamSpec) NodeTypeSchema {
	return NodeTypeSchema{
		Type:      t,
		Label:     label,
		Category:  category,
		Inputs:    []Handle{DefaultHandle},
		HasOutput: true,
		Params:    params,
	}
}

func convParams(in, out, kernel, stride, padding int64) []ParamSpec {
	return []ParamSpec{
		intParam("in_channels", in),
		intParam("out_channels", out),
		intParam("kernel_size", kernel),
		intParam("stride", stride),
		intParam("padding", padding),
	}
}

func poolParams() []ParamSpec {
	return []ParamSpec{
		intParam("kernel_size", 2),
		intParam("stride", 2),
		intParam("padding", 0),
	}
}

func recurrentParams(bidirectional bool) []ParamSpec {
	params := []ParamSpec{
		intParam("input_size", 128),
		intParam("hidden_size", 256),
		intParam("num_layers", 1),
	}
	if bidirectional {
		params = append(params, boolParam("bidirectional", false))
	}
	return params
}

const (
	categoryIO            = "Input/Output"
	categoryConvolutional = "Convolutional"
	categoryDense         = "Fully Connected"
	categoryRecurrent     = "Recurrent"
	categoryNorm          = "Normalization"
	categoryActivation    = "Activation"
	categoryUtility       = "Utility"
	categoryAttention     = "Attention"
)

// OutputTypes are the task kinds an output node can declare.
var OutputTypes = []string{"classification", "regression", "binary", "multilabel"}

func builtinNodeTypes() []NodeTypeSchema {
	pair := []Handle{{Name: "input1"}, {Name: "input2"}}

	return []NodeTypeSchema{
		{
			Type:      NodeTypeInput,
			Label:     "Input",
			Category:  categoryIO,
			HasOutput: true,
			Params: []ParamSpec{{
				Name: "shape", Kind: ParamKindIntTuple, Default: TupleParam(1, 28, 28),
				MinLen: 1, MaxLen: 4, Min: &zero,
			}},
		},
		{
			Type:     NodeTypeOutput,
			Label:    "Output",
			Category: categoryIO,
			Inputs:   []Handle{DefaultHandle},
			Params: []ParamSpec{
				{Name: "outputType", Kind: ParamKindEnum, Default: EnumParam("classification"), Enum: OutputTypes},
				intParam("numClasses", 10),
			},
		},

		single(NodeTypeConv1D, "Conv1D", categoryConvolutional, convParams(1, 32, 3, 1, 0)...),
		single(NodeTypeConv2D, "Conv2D", categoryConvolutional, convParams(1, 32, 3, 1, 0)...),
		single(NodeTypeConv3D, "Conv3D", categoryConvolutional, convParams(1, 32, 3, 1, 0)...),
		single(NodeTypeConvTranspose2D, "TransposeConv2D", categoryConvolutional, convParams(32, 16, 3, 2, 1)...),
		single(NodeTypeMaxPool2D, "MaxPool2D", categoryConvolutional, poolParams()...),
		single(NodeTypeAvgPool2D, "AvgPool2D", categoryConvolutional, poolParams()...),
		single(NodeTypeAdaptiveAvgPool2D, "AdaptiveAvgPool", categoryConvolutional, intParam("output_size", 1)),

		single(NodeTypeLinear, "Linear", categoryDense, intParam("in_features", 784), intParam("out_features", 128)),
		single(NodeTypeFlatten, "Flatten", categoryDense),

		single(NodeTypeLSTM, "LSTM", categoryRecurrent, recurrentParams(true)...),
		single(NodeTypeGRU, "GRU", categoryRecurrent, recurrentParams(true)...),
		single(NodeTypeRNN, "RNN", categoryRecurrent, recurrentParams(false)...),

		single(NodeTypeBatchNorm, "BatchNorm", categoryNorm, intParam("num_features", 128)),
		single(NodeTypeLayerNorm, "LayerNorm", categoryNorm, intParam("normalized_shape", 128)),
		single(NodeTypeGroupNorm, "GroupNorm", categoryNorm, intParam("num_groups", 32), intParam("num_channels", 128)),
		single(NodeTypeInstanceNorm, "InstanceNorm", categoryNorm, intParam("num_features", 128)),

		single(NodeTypeReLU, "ReLU", categoryActivation),
		single(NodeTypeLeakyReLU, "LeakyReLU", categoryActivation, floatParam("negative_slope", 0.01)),
		single(NodeTypeSigmoid, "Sigmoid", categoryActivation),
		single(NodeTypeTanh, "Tanh", categoryActivation),
		single(NodeTypeGELU, "GELU", categoryActivation),
		single(NodeTypeELU, "ELU", categoryActivation, floatParam("alpha", 1.0)),
		single(NodeTypeSiLU, "SiLU/Swish", categoryActivation),
		single(NodeTypeSoftmax, "Softmax", categoryActivation, intParam("dim", 1)),

		single(NodeTypeDropout, "Dropout", categoryUtility, ParamSpec{
			Name: "p", Kind: ParamKindFloat, Default: FloatParam(0.5), Min: &zero, Max: &one,
		}),
		single(NodeTypeReshape, "Reshape", categoryUtility, textParam("target_shape", "-1, 784")),
		{
			Type: NodeTypeConcatenate, Label: "Concatenate", Category: categoryUtility,
			Inputs: pair, HasOutput: true,
			Params: []ParamSpec{intParam("dim", 1)},
		},
		{Type: NodeTypeAdd, Label: "Add", Category: categoryUtility, Inputs: pair, HasOutput: true},
		{Type: NodeTypeMultiply, Label: "Multiply", Category: categoryUtility, Inputs: pair, HasOutput: true},
		single(NodeTypeEmbedding, "Embedding", categoryUtility, intParam("num_embeddings", 10000), intParam("embedding_dim", 128)),

		{
			Type: NodeTypeMultiheadAttention, Label: "MultiheadAttention", Category: categoryAttention,
			Inputs:    []Handle{{Name: "query"}, {Name: "key"}, {Name: "value"}},
			HasOutput: true,
			Params:    []ParamSpec{intParam("embed_dim", 512), intParam("num_heads", 8)},
		},
	}
}
