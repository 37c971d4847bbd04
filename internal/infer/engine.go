package infer

import (
	"log/slog"
)

// Column describes one output column. Key is unique within a result and only
// contains [A-Za-z0-9_]; Alias is the header text as it appeared.
type Column struct {
	Key      string   `json:"id" yaml:"id"`
	Alias    string   `json:"alias" yaml:"alias"`
	DataType DataType `json:"dataType" yaml:"dataType"`
}

// Row maps column keys to coerced values.
type Row map[string]Value

// Result is the inferred table: columns in header order and the accepted
// rows in source order.
type Result struct {
	Columns []Column `json:"columns" yaml:"columns"`
	Rows    []Row    `json:"rows" yaml:"rows"`
}

// Stats describes how a result was produced. It is diagnostic only.
type Stats struct {
	Width    int     // canonical row width
	Records  int     // data records seen after the header
	Accepted int     // records that became rows
	Dropped  []int   // 1-based data record numbers that were discarded
	Tallies  []Tally // per column, same order as Result.Columns
}

// Engine runs inference. The zero value logs to slog.Default().
type Engine struct {
	logger *slog.Logger
}

// NewEngine returns an engine logging to logger (nil for slog.Default()).
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

func (e *Engine) log() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

// Infer is shorthand for running the default engine.
func Infer(text, delimiter string) (*Result, error) {
	res, _, err := (*Engine)(nil).Run(text, delimiter)
	return res, err
}

// Run tokenizes text and infers its table.
func (e *Engine) Run(text, delimiter string) (*Result, *Stats, error) {
	header, records, err := Tokenize(text, delimiter)
	if err != nil {
		return nil, nil, err
	}
	res, stats := e.Build(header, records)
	return res, stats, nil
}

// Build infers a table from an already tokenized header and data records.
// With no data records the width falls back to the header length and every
// column resolves to string.
func (e *Engine) Build(header []string, records [][]RawCell) (*Result, *Stats) {
	logger := e.log()

	cols := SanitizeHeaders(header)
	kept, width, dropped := FilterRows(records, len(header))

	for _, idx := range dropped {
		logger.Debug("row omitted due to mismatched length",
			"record", idx+1,
			"length", len(records[idx]),
			"width", width,
		)
	}

	tallies := make([]Tally, len(cols))
	rows := make([]Row, 0, len(kept))
	for _, rec := range kept {
		row, kinds := coerceRecord(cols, rec)
		tallies = FoldRow(tallies, kinds)
		rows = append(rows, row)
	}

	for i := range cols {
		cols[i].DataType = tallies[i].Resolve()
	}

	stats := &Stats{
		Width:    width,
		Records:  len(records),
		Accepted: len(kept),
		Tallies:  tallies,
	}
	for _, idx := range dropped {
		stats.Dropped = append(stats.Dropped, idx+1)
	}

	if len(dropped) > 0 {
		logger.Info("rows omitted due to mismatched length",
			"dropped", len(dropped),
			"accepted", len(kept),
			"width", width,
		)
	}

	return &Result{Columns: cols, Rows: rows}, stats
}

// coerceRecord converts one accepted record. Only header positions are read;
// a position the record does not reach counts as an actual null.
func coerceRecord(cols []Column, rec []RawCell) (Row, []Kind) {
	row := make(Row, len(cols))
	kinds := make([]Kind, len(cols))
	for i, col := range cols {
		cell := NullCell()
		if i < len(rec) {
			cell = rec[i]
		}
		v := Coerce(cell)
		row[col.Key] = v
		kinds[i] = v.Kind()
	}
	return row, kinds
}
