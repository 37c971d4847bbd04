package infer

// DataType is the resolved type of a column.
type DataType string

const (
	TypeString DataType = "string"
	TypeInt    DataType = "int"
	TypeFloat  DataType = "float"
	TypeBool   DataType = "bool"
)

// Tally counts how many accepted cells of a column fell into each Kind.
// Tallies are values: Add and Merge return a new Tally and never modify the
// receiver, so partial tallies can be combined in any order.
type Tally struct {
	Null   int `json:"null,omitempty"`
	Bool   int `json:"bool,omitempty"`
	Int    int `json:"int,omitempty"`
	Float  int `json:"float,omitempty"`
	String int `json:"string,omitempty"`
}

// Add returns t with one more observation of kind k.
func (t Tally) Add(k Kind) Tally {
	switch k {
	case KindNull:
		t.Null++
	case KindBool:
		t.Bool++
	case KindInt:
		t.Int++
	case KindFloat:
		t.Float++
	default:
		t.String++
	}
	return t
}

// Merge returns the element-wise sum of t and o.
func (t Tally) Merge(o Tally) Tally {
	return Tally{
		Null:   t.Null + o.Null,
		Bool:   t.Bool + o.Bool,
		Int:    t.Int + o.Int,
		Float:  t.Float + o.Float,
		String: t.String + o.String,
	}
}

// Total returns the number of observations.
func (t Tally) Total() int {
	return t.Null + t.Bool + t.Int + t.Float + t.String
}

// Resolve picks the column type. The first matching rule wins:
//
//  1. any string            -> string
//  2. nothing but nulls     -> string
//  3. any float             -> float
//  4. any int               -> int
//  5. any bool              -> bool
//  6. no observations       -> string
func (t Tally) Resolve() DataType {
	switch {
	case t.String > 0:
		return TypeString
	case t.Null > 0 && t.Null == t.Total():
		return TypeString
	case t.Float > 0:
		return TypeFloat
	case t.Int > 0:
		return TypeInt
	case t.Bool > 0:
		return TypeBool
	default:
		return TypeString
	}
}

// FoldRow adds one row's kinds into the per-column tallies and returns the
// resulting tallies. acc is not modified.
func FoldRow(acc []Tally, kinds []Kind) []Tally {
	out := make([]Tally, len(acc))
	copy(out, acc)
	for i, k := range kinds {
		if i >= len(out) {
			break
		}
		out[i] = out[i].Add(k)
	}
	return out
}

// MergeTallies combines two per-column tally sets of the same width.
func MergeTallies(a, b []Tally) []Tally {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]Tally, n)
	for i := range out {
		if i < len(a) {
			out[i] = out[i].Merge(a[i])
		}
		if i < len(b) {
			out[i] = out[i].Merge(b[i])
		}
	}
	return out
}
