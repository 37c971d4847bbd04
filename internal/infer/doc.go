// Package infer turns raw delimited text into a typed table.
//
// The engine is a single linear pass with no I/O:
//
//  1. Tokenize: split text into records and dynamically type data cells
//     ([RawCell]: null, bool, date, number or string).
//  2. SanitizeHeaders: derive unique [A-Za-z0-9_] keys from the header record,
//     keeping the original text as the column alias.
//  3. FilterRows: pick the canonical row width (the most frequent record
//     length) and drop every record of another width.
//  4. Coerce: convert each accepted cell to a [Value] and fold its [Kind]
//     into the column's [Tally].
//  5. Resolve: pick each column's [DataType] from its tally.
//
// Usage:
//
//	res, err := infer.Infer(body, ",")
//	if err != nil {
//	    return err
//	}
//	for _, col := range res.Columns {
//	    fmt.Println(col.Key, col.Alias, col.DataType)
//	}
//
// # Column types
//
// A column resolves to string as soon as one accepted cell was a string, and
// also when it held nothing but nulls. Otherwise float beats int beats bool.
//
// # Malformed rows
//
// Records whose length differs from the canonical width are dropped whole and
// logged at debug level. They never contribute to tallies and are not
// reported to consumers of the result; the count is only available on
// [Stats].
package infer
