package infer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the category a coerced cell falls into. It is both the tag of a
// Value and the tally bucket the cell is counted in.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
)

// String returns the tally bucket name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

// maxSafeInteger is where shortest float formatting switches to exponent
// notation; whole numbers at or above it are counted as float.
const maxSafeInteger = 1e21

// Value is a coerced cell: null, boolean, number or string.
// The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	raw  string // source digits of a number that float64 does not reproduce
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number returns a numeric value. Its kind is KindInt when n equals its
// integer truncation, KindFloat otherwise.
func Number(n float64) Value {
	if n == 0 {
		n = 0 // drop the sign of negative zero
	}
	if n == math.Trunc(n) && math.Abs(n) < maxSafeInteger {
		return Value{kind: KindInt, n: n}
	}
	return Value{kind: KindFloat, n: n}
}

// NumberText returns the numeric value n parsed from raw. When raw is a
// valid JSON number that n does not render back to, such as an integer
// beyond 2^53, the source digits are kept and used for output.
func NumberText(n float64, raw string) Value {
	v := Number(n)
	raw = strings.TrimSpace(raw)
	if !json.Valid([]byte(raw)) {
		return v
	}
	if canon, err := json.Marshal(v.n); err == nil && string(canon) == raw {
		return v
	}
	v.raw = raw
	return v
}

// Kind reports the value's category.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumber reports whether v is an int or float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// Bool returns the boolean payload; false for non-boolean values.
func (v Value) Bool() bool { return v.b }

// Float returns the numeric payload; 0 for non-numeric values.
func (v Value) Float() float64 { return v.n }

// Int64 returns the exact integer payload of an int value. It reports false
// for other kinds and for integers outside the int64 range.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	if v.raw != "" {
		if n, err := strconv.ParseInt(v.raw, 10, 64); err == nil {
			return n, true
		}
	}
	if v.n >= math.MaxInt64 || v.n < math.MinInt64 {
		return 0, false
	}
	return int64(v.n), true
}

// Str returns the string payload; "" for non-string values.
func (v Value) Str() string { return v.s }

// Interface returns v as nil, bool, float64 or string.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt, KindFloat:
		return v.n
	case KindString:
		return v.s
	default:
		return nil
	}
}

// Text renders v for a text column. Null renders as "".
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt, KindFloat:
		if v.raw != "" {
			return v.raw
		}
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindString:
		return v.s
	default:
		return ""
	}
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "null"
	}
	return v.Text()
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.raw != "" {
		return []byte(v.raw), nil
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Null()
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch x := raw.(type) {
	case bool:
		*v = Bool(x)
	case json.Number:
		n, err := strconv.ParseFloat(x.String(), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return err
		}
		*v = NumberText(n, x.String())
	case string:
		*v = String(x)
	default:
		return fmt.Errorf("infer: cannot decode %s into a cell value", data)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (any, error) {
	if v.raw != "" {
		tag := "!!int"
		if v.kind == KindFloat || strings.ContainsAny(v.raw, ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.raw}, nil
	}
	return v.Interface(), nil
}
