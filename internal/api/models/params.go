package models

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
)

type ParamKind string

const (
	ParamKindInt      ParamKind = "integer"
	ParamKindFloat    ParamKind = "float"
	ParamKindBool     ParamKind = "boolean"
	ParamKindEnum     ParamKind = "enum"
	ParamKindText     ParamKind = "text"
	ParamKindIntTuple ParamKind = "integer_tuple"
)

// ParamValue is a tagged parameter value. Only the field matching kind is meaningful.
// The zero value has no kind and is never stored in a node.
type ParamValue struct {
	kind  ParamKind
	i     int64
	f     float64
	b     bool
	s     string
	tuple []int64
}

func IntParam(v int64) ParamValue     { return ParamValue{kind: ParamKindInt, i: v} }
func FloatParam(v float64) ParamValue { return ParamValue{kind: ParamKindFloat, f: v} }
func BoolParam(v bool) ParamValue     { return ParamValue{kind: ParamKindBool, b: v} }
func EnumParam(v string) ParamValue   { return ParamValue{kind: ParamKindEnum, s: v} }
func TextParam(v string) ParamValue   { return ParamValue{kind: ParamKindText, s: v} }

func TupleParam(v ...int64) ParamValue {
	return ParamValue{kind: ParamKindIntTuple, tuple: slices.Clone(v)}
}

func (p ParamValue) Kind() ParamKind { return p.kind }
func (p ParamValue) Int() int64      { return p.i }
func (p ParamValue) Float() float64  { return p.f }
func (p ParamValue) Bool() bool      { return p.b }
func (p ParamValue) Str() string     { return p.s }

// Tuple returns a copy of the integer tuple.
func (p ParamValue) Tuple() []int64 { return slices.Clone(p.tuple) }

// Clone returns a value sharing no memory with p.
func (p ParamValue) Clone() ParamValue {
	c := p
	c.tuple = slices.Clone(p.tuple)
	return c
}

// Interface returns the plain Go value, as encoding/json would decode it.
func (p ParamValue) Interface() any {
	switch p.kind {
	case ParamKindInt:
		return p.i
	case ParamKindFloat:
		return p.f
	case ParamKindBool:
		return p.b
	case ParamKindEnum, ParamKindText:
		return p.s
	case ParamKindIntTuple:
		return slices.Clone(p.tuple)
	default:
		return nil
	}
}

func (p ParamValue) MarshalJSON() ([]byte, error) {
	if p.kind == ParamKindIntTuple && p.tuple == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.Interface())
}

func (p ParamValue) String() string {
	return fmt.Sprintf("%v", p.Interface())
}

// Params maps parameter names to values for one node.
type Params map[string]ParamValue

// Clone deep copies the map and every tuple it holds.
func (ps Params) Clone() Params {
	if ps == nil {
		return nil
	}
	out := make(Params, len(ps))
	for k, v := range ps {
		out[k] = v.Clone()
	}
	return out
}

// ParamSpec declares one parameter of a node type.
type ParamSpec struct {
	Name    string
	Kind    ParamKind
	Default ParamValue
	// Enum lists accepted values for ParamKindEnum.
	Enum []string
	// Min and Max bound numeric kinds (inclusive) and every element of a tuple.
	Min *float64
	Max *float64
	// MinLen and MaxLen bound tuple length; zero means unbounded.
	MinLen int
	MaxLen int
}

func (s ParamSpec) clone() ParamSpec {
	c := s
	c.Default = s.Default.Clone()
	c.Enum = slices.Clone(s.Enum)
	if s.Min != nil {
		v := *s.Min
		c.Min = &v
	}
	if s.Max != nil {
		v := *s.Max
		c.Max = &v
	}
	return c
}

// Coerce converts a loosely typed value (as decoded from JSON or built in Go) into a
// ParamValue of the spec's kind. Any mismatch wraps ErrInvalidParamValue.
func (s ParamSpec) Coerce(raw any) (ParamValue, error) {
	if pv, ok := raw.(ParamValue); ok {
		if pv.kind != s.Kind {
			return ParamValue{}, s.invalid("expected %s, got %s", s.Kind, pv.kind)
		}
		return s.check(pv.Clone())
	}

	switch s.Kind {
	case ParamKindInt:
		n, ok := asInteger(raw)
		if !ok {
			return ParamValue{}, s.invalid("expected integer, got %T", raw)
		}
		return s.check(IntParam(n))
	case ParamKindFloat:
		f, ok := asNumber(raw)
		if !ok {
			return ParamValue{}, s.invalid("expected number, got %T", raw)
		}
		return s.check(FloatParam(f))
	case ParamKindBool:
		b, ok := raw.(bool)
		if !ok {
			return ParamValue{}, s.invalid("expected boolean, got %T", raw)
		}
		return BoolParam(b), nil
	case ParamKindEnum:
		str, ok := raw.(string)
		if !ok {
			return ParamValue{}, s.invalid("expected string, got %T", raw)
		}
		return s.check(EnumParam(str))
	case ParamKindText:
		str, ok := raw.(string)
		if !ok {
			return ParamValue{}, s.invalid("expected string, got %T", raw)
		}
		return TextParam(str), nil
	case ParamKindIntTuple:
		tuple, ok := asIntegerTuple(raw)
		if !ok {
			return ParamValue{}, s.invalid("expected list of integers, got %T", raw)
		}
		return s.check(ParamValue{kind: ParamKindIntTuple, tuple: tuple})
	default:
		return ParamValue{}, s.invalid("unsupported kind %q", s.Kind)
	}
}

func (s ParamSpec) check(v ParamValue) (ParamValue, error) {
	switch v.kind {
	case ParamKindInt:
		if err := s.checkRange(float64(v.i)); err != nil {
			return ParamValue{}, err
		}
	case ParamKindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return ParamValue{}, s.invalid("value must be finite")
		}
		if err := s.checkRange(v.f); err != nil {
			return ParamValue{}, err
		}
	case ParamKindEnum:
		if !slices.Contains(s.Enum, v.s) {
			return ParamValue{}, s.invalid("%q is not one of [%s]", v.s, strings.Join(s.Enum, ", "))
		}
	case ParamKindIntTuple:
		if s.MinLen > 0 && len(v.tuple) < s.MinLen {
			return ParamValue{}, s.invalid("expected at least %d values", s.MinLen)
		}
		if s.MaxLen > 0 && len(v.tuple) > s.MaxLen {
			return ParamValue{}, s.invalid("expected at most %d values", s.MaxLen)
		}
		for _, n := range v.tuple {
			if err := s.checkRange(float64(n)); err != nil {
				return ParamValue{}, err
			}
		}
	}
	return v, nil
}

func (s ParamSpec) checkRange(f float64) error {
	if s.Min != nil && f < *s.Min {
		return s.invalid("%v is below minimum %v", f, *s.Min)
	}
	if s.Max != nil && f > *s.Max {
		return s.invalid("%v is above maximum %v", f, *s.Max)
	}
	return nil
}

func (s ParamSpec) invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidParamValue, s.Name, fmt.Sprintf(format, args...))
}

func asNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asInteger(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	f, ok := asNumber(raw)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func asIntegerTuple(raw any) ([]int64, bool) {
	switch v := raw.(type) {
	case []int64:
		return slices.Clone(v), true
	case []int:
		out := make([]int64, len(v))
		for i, n := range v {
			out[i] = int64(n)
		}
		return out, true
	case []any:
		out := make([]int64, len(v))
		for i, item := range v {
			n, ok := asInteger(item)
			if !ok {
				return nil, false
			}
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]int64, len(v))
		for i, item := range v {
			n, ok := asInteger(item)
			if !ok {
				return nil, false
			}
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}
