package infer

import "time"

// isoLayout renders dates as UTC with millisecond precision.
const isoLayout = "2006-01-02T15:04:05.000Z"

// coercer converts a cell when it recognises it.
type coercer func(RawCell) (Value, bool)

// coercers run in priority order; the first that matches decides the value.
// The last one always matches.
var coercers = []coercer{
	coerceNull,
	coerceTrue,
	coerceFalse,
	coerceDate,
	coerceNumber,
	coerceString,
}

// Coerce converts a raw cell into its output value. The value's Kind is the
// tally bucket the cell counts toward.
//
//  1. "", `""`, "null" or an actual null  -> null
//  2. true or "true"                      -> true
//  3. false or "false"                    -> false
//  4. a date                              -> ISO-8601 string
//  5. anything numeric                    -> number (int or float)
//  6. anything else                       -> the raw string
func Coerce(c RawCell) Value {
	for _, fn := range coercers {
		if v, ok := fn(c); ok {
			return v
		}
	}
	return String(c.Text)
}

func coerceNull(c RawCell) (Value, bool) {
	switch c.Kind {
	case NullLike:
		return Null(), true
	case StringLike:
		switch c.Text {
		case "", `""`, "null":
			return Null(), true
		}
	}
	return Value{}, false
}

func coerceTrue(c RawCell) (Value, bool) {
	if (c.Kind == BoolLike && c.Bool) || (c.Kind == StringLike && c.Text == "true") {
		return Bool(true), true
	}
	return Value{}, false
}

func coerceFalse(c RawCell) (Value, bool) {
	if (c.Kind == BoolLike && !c.Bool) || (c.Kind == StringLike && c.Text == "false") {
		return Bool(false), true
	}
	return Value{}, false
}

func coerceDate(c RawCell) (Value, bool) {
	if c.Kind != DateLike {
		return Value{}, false
	}
	return String(formatISO(c.Time)), true
}

func coerceNumber(c RawCell) (Value, bool) {
	switch c.Kind {
	case NumericLike:
		return Number(c.Num), true
	case StringLike:
		if n, ok := parseNumeric(c.Text); ok {
			return NumberText(n, c.Text), true
		}
	}
	return Value{}, false
}

func coerceString(c RawCell) (Value, bool) {
	return String(c.Text), true
}

func formatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}
