package device

import (
	"encoding/json"
	"strconv"
)

// Kind identifies which variant of Value is populated.
type Kind uint8

// Value kinds.
const (
	KindInvalid Kind = iota
	KindFloat
	KindInt
	KindBool
	KindString
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// Value is one typed attribute value. Values are comparable with ==, which
// is how the record decides whether a confirmation matches a provisional
// change and whether a mutation produced a new state.
type Value struct {
	kind Kind
	f    float64
	i    int64
	b    bool
	s    string
}

// FloatValue returns a float Value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// IntValue returns an integer Value.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the populated variant.
func (v Value) Kind() Kind { return v.kind }

// Float returns the value as a float64. Integers are widened.
func (v Value) Float() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// Int returns the value as an int64. Floats are truncated.
func (v Value) Int() int64 {
	if v.kind == KindFloat {
		return int64(v.f)
	}
	return v.i
}

// Bool returns the boolean variant.
func (v Value) Bool() bool { return v.b }

// Text returns the string variant.
func (v Value) Text() string { return v.s }

// Any returns the value as a plain Go value suitable for JSON encoding.
func (v Value) Any() any {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return v.i
	case KindBool:
		return v.b
	case KindString:
		return v.s
	default:
		return nil
	}
}

// String formats the value for logs.
func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	default:
		return "<invalid>"
	}
}

// MarshalJSON encodes the populated variant.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}
