package models

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// ParamsJSONSchema describes the node's params object so the editor can build and check
// its widgets from the same table the bridge validates against.
func (s NodeTypeSchema) ParamsJSONSchema() *jsonschema.Schema {
	root := &jsonschema.Schema{
		Title:      s.Label,
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(s.Params)),
	}
	for _, p := range s.Params {
		root.Properties[p.Name] = p.jsonSchema()
		root.Required = append(root.Required, p.Name)
	}
	return root
}

func (p ParamSpec) jsonSchema() *jsonschema.Schema {
	out := &jsonschema.Schema{}
	if def, err := json.Marshal(p.Default); err == nil {
		out.Default = def
	}

	switch p.Kind {
	case ParamKindInt:
		out.Type = "integer"
		out.Minimum, out.Maximum = p.Min, p.Max
	case ParamKindFloat:
		out.Type = "number"
		out.Minimum, out.Maximum = p.Min, p.Max
	case ParamKindBool:
		out.Type = "boolean"
	case ParamKindEnum:
		out.Type = "string"
		for _, v := range p.Enum {
			out.Enum = append(out.Enum, v)
		}
	case ParamKindText:
		out.Type = "string"
	case ParamKindIntTuple:
		out.Type = "array"
		out.Items = &jsonschema.Schema{Type: "integer", Minimum: p.Min, Maximum: p.Max}
		if p.MinLen > 0 {
			minLen := p.MinLen
			out.MinItems = &minLen
		}
		if p.MaxLen > 0 {
			maxLen := p.MaxLen
			out.MaxItems = &maxLen
		}
	}
	return out
}
