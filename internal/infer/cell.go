package infer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CellKind classifies a raw cell as produced by the tokenizer.
type CellKind uint8

const (
	NullLike CellKind = iota
	BoolLike
	DateLike
	NumericLike
	StringLike
)

// String returns the kind name used in logs.
func (k CellKind) String() string {
	switch k {
	case NullLike:
		return "null"
	case BoolLike:
		return "bool"
	case DateLike:
		return "date"
	case NumericLike:
		return "numeric"
	default:
		return "string"
	}
}

// RawCell is one tokenized field. Only the member matching Kind is set;
// Text always holds the field exactly as it appeared in the source.
type RawCell struct {
	Kind CellKind
	Text string
	Bool bool
	Num  float64
	Time time.Time
}

// NullCell returns an actual null, used for header positions a row lacks.
func NullCell() RawCell {
	return RawCell{Kind: NullLike}
}

// StringCell returns an untyped text cell.
func StringCell(s string) RawCell {
	return RawCell{Kind: StringLike, Text: s}
}

// BoolCell returns a native boolean cell.
func BoolCell(b bool) RawCell {
	if b {
		return RawCell{Kind: BoolLike, Text: "true", Bool: true}
	}
	return RawCell{Kind: BoolLike, Text: "false"}
}

// NumberCell returns a native numeric cell.
func NumberCell(n float64) RawCell {
	return RawCell{Kind: NumericLike, Text: strconv.FormatFloat(n, 'f', -1, 64), Num: n}
}

// DateCell returns a native date cell.
func DateCell(t time.Time) RawCell {
	return RawCell{Kind: DateLike, Text: t.Format(time.RFC3339Nano), Time: t}
}

// maxDynamicFloat bounds the numbers the tokenizer types natively. Larger
// magnitudes stay text so no digits are silently lost at this stage.
const maxDynamicFloat = 1 << 53

var (
	floatPattern = regexp.MustCompile(`^\s*-?(\d+\.?|\.\d+|\d+\.\d+)([eE][-+]?\d+)?\s*$`)

	isoDatePattern = regexp.MustCompile(`^\d{4}-[01]\d-[0-3]\dT[0-2]\d:[0-5]\d(:[0-5]\d(\.\d+)?)?([+-][0-2]\d:[0-5]\d|Z)$`)

	isoDateLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04Z07:00",
	}
)

// DynamicCell types a data field the way the tokenizer does: TRUE/true and
// FALSE/false become booleans, plain decimal numbers inside +-2^53 become
// numbers, ISO-8601 datetimes become dates and the empty string becomes null.
// Everything else is kept as text.
func DynamicCell(s string) RawCell {
	switch s {
	case "":
		return NullCell()
	case "true", "TRUE":
		return RawCell{Kind: BoolLike, Text: s, Bool: true}
	case "false", "FALSE":
		return RawCell{Kind: BoolLike, Text: s}
	}

	if floatPattern.MatchString(s) {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && n > -maxDynamicFloat && n < maxDynamicFloat {
			return RawCell{Kind: NumericLike, Text: s, Num: n}
		}
	}

	if isoDatePattern.MatchString(s) {
		for _, layout := range isoDateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return RawCell{Kind: DateLike, Text: s, Time: t}
			}
		}
	}

	return StringCell(s)
}

// parseNumeric reports whether s is a finite number. Surrounding whitespace is
// ignored; an all-whitespace string is not a number.
func parseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "xX_") {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
