package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvwdc/internal/cache"
	"github.com/JonMunkholm/csvwdc/internal/fetch"
	"github.com/JonMunkholm/csvwdc/internal/infer"
)

// Table identity reported in schemas. The connector exposes exactly one table.
const (
	TableID    = "csvData"
	TableAlias = "CSV Data"
)

// DefaultRowBatchSize is the number of rows per delivered chunk.
const DefaultRowBatchSize = 10000

// Source identifies a hosted CSV and how to read it.
type Source struct {
	URL       string `json:"url" yaml:"url"`
	Method    string `json:"method,omitempty" yaml:"method,omitempty"`
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	Token     string `json:"-" yaml:"-"`
}

// Normalize trims the URL, upper-cases the method (GET when empty) and
// applies the default delimiter. It rejects an empty URL or an unusable
// delimiter.
func (s Source) Normalize() (Source, error) {
	s.URL = strings.TrimSpace(s.URL)
	if s.URL == "" {
		return s, fmt.Errorf("%w: no data entered", fetch.ErrInvalidURL)
	}

	s.Method = strings.ToUpper(strings.TrimSpace(s.Method))
	if s.Method == "" {
		s.Method = http.MethodGet
	}

	if s.Delimiter == "" {
		s.Delimiter = infer.DefaultDelimiter
	}
	if _, err := infer.ParseDelimiter(s.Delimiter); err != nil {
		return s, err
	}
	return s, nil
}

// Fingerprint is the cache key for s. The token takes part so that data
// fetched with one credential is never served to another.
func (s Source) Fingerprint() string {
	return cache.Fingerprint(s.URL, s.Method, s.Delimiter, s.Token)
}

func (s Source) request() fetch.Request {
	return fetch.Request{URL: s.URL, Method: s.Method, Token: s.Token}
}

// Fetcher retrieves raw CSV text for a request.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req fetch.Request) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, req fetch.Request) (string, error) {
	return f(ctx, req)
}

// TableSchema describes the single connector table.
type TableSchema struct {
	ID      string         `json:"id" yaml:"id"`
	Alias   string         `json:"alias" yaml:"alias"`
	Columns []infer.Column `json:"columns" yaml:"columns"`
}

// RowBatch is one chunk of rows handed to a Rows callback.
type RowBatch struct {
	Rows     []infer.Row `json:"rows"`
	Offset   int         `json:"offset"`   // index of Rows[0] in the full row set
	Total    int         `json:"total"`    // rows in the full row set
	Progress string      `json:"progress"` // "Getting row: N"
}

// Sink receives an inferred table for persistent storage.
type Sink interface {
	// Write stores res in the named table and returns the number of rows
	// written. progress, when non-nil, is called after each batch.
	Write(ctx context.Context, table string, res *infer.Result, progress func(written int)) (int64, error)
}

// ExportResult reports a completed export.
type ExportResult struct {
	ID      string `json:"id"`
	Table   string `json:"table"`
	Rows    int64  `json:"rows"`
	Columns int    `json:"columns"`
}
