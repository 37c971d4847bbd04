// Package export writes inferred tables to PostgreSQL.
//
// A table is created from the inferred column types when it does not exist
// and rows are streamed in with COPY, one batch at a time, inside a single
// transaction.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/csvwdc/internal/config"
	"github.com/JonMunkholm/csvwdc/internal/infer"
)

// DefaultBatchSize is the number of rows per COPY when none is configured.
const DefaultBatchSize = 10000

// maxIdentifierLen is PostgreSQL's NAMEDATALEN - 1.
const maxIdentifierLen = 63

var (
	ErrTableName  = errors.New("invalid table name")
	ErrOutOfRange = errors.New("value out of range for bigint")
)

// Beginner starts transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Writer copies inferred tables into PostgreSQL.
type Writer struct {
	db        Beginner
	batchSize int
	replace   bool
	logger    *slog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithReplace truncates the target table before copying.
func WithReplace(replace bool) Option {
	return func(w *Writer) { w.replace = replace }
}

// WithLogger sets the writer's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

// NewWriter returns a writer using db and the batch size from cfg.
func NewWriter(db Beginner, cfg config.ExportConfig, opts ...Option) *Writer {
	w := &Writer{
		db:        db,
		batchSize: cfg.BatchSize,
		logger:    slog.Default(),
	}
	if w.batchSize <= 0 {
		w.batchSize = DefaultBatchSize
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write creates table if needed and copies every row of res into it. It
// returns the number of rows copied. The whole write is one transaction;
// on error nothing is committed.
func (w *Writer) Write(ctx context.Context, table string, res *infer.Result, progress func(written int)) (int64, error) {
	if err := ValidateTableName(table); err != nil {
		return 0, err
	}
	names := ColumnNames(res.Columns)

	tx, err := w.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, CreateTableSQL(table, names, res.Columns)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", table, err)
	}
	if w.replace {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+pgx.Identifier{table}.Sanitize()); err != nil {
			return 0, fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	start := time.Now()
	var written int64
	for offset := 0; offset < len(res.Rows); offset += w.batchSize {
		end := min(offset+w.batchSize, len(res.Rows))
		batch, err := encodeRows(res.Columns, res.Rows[offset:end])
		if err != nil {
			return written, fmt.Errorf("row %d: %w", offset+1, err)
		}

		n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, names, pgx.CopyFromRows(batch))
		if err != nil {
			return written, fmt.Errorf("copy into %s: %w", table, err)
		}
		written += n

		if progress != nil {
			progress(int(written))
		}
		w.logger.Debug("copied batch", "table", table, "rows", n, "written", written)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	w.logger.Info("table exported",
		"table", table,
		"rows", written,
		"columns", len(names),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return written, nil
}

// ValidateTableName rejects names PostgreSQL would refuse or truncate.
func ValidateTableName(table string) error {
	switch {
	case strings.TrimSpace(table) == "":
		return fmt.Errorf("%w: empty", ErrTableName)
	case len(table) > maxIdentifierLen:
		return fmt.Errorf("%w: %q exceeds %d bytes", ErrTableName, table, maxIdentifierLen)
	case strings.ContainsRune(table, 0):
		return fmt.Errorf("%w: contains NUL", ErrTableName)
	}
	return nil
}

// ColumnNames returns database column names for cols. Keys are already
// restricted to [A-Za-z0-9_]; an empty key becomes "column" and any
// resulting duplicates get the usual _copy suffix.
func ColumnNames(cols []infer.Column) []string {
	raw := make([]string, len(cols))
	for i, c := range cols {
		raw[i] = c.Key
		if raw[i] == "" {
			raw[i] = "column"
		}
	}

	unique := infer.SanitizeHeaders(raw)
	names := make([]string, len(unique))
	for i, c := range unique {
		names[i] = c.Key
	}
	return names
}

// SQLType maps an inferred type to a PostgreSQL column type.
func SQLType(dt infer.DataType) string {
	switch dt {
	case infer.TypeInt:
		return "bigint"
	case infer.TypeFloat:
		return "double precision"
	case infer.TypeBool:
		return "boolean"
	default:
		return "text"
	}
}

// CreateTableSQL renders the DDL for table. names and cols are parallel.
func CreateTableSQL(table string, names []string, cols []infer.Column) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(pgx.Identifier{table}.Sanitize())
	b.WriteString(" (")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{name}.Sanitize())
		b.WriteByte(' ')
		b.WriteString(SQLType(cols[i].DataType))
	}
	b.WriteString(")")
	return b.String()
}

func encodeRows(cols []infer.Column, rows []infer.Row) ([][]any, error) {
	out := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(cols))
		for j, col := range cols {
			v, err := copyValue(row[col.Key], col.DataType)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", col.Key, err)
			}
			vals[j] = v
		}
		out[i] = vals
	}
	return out, nil
}

// copyValue converts a cell to the Go value pgx encodes for the column type.
// Booleans inside numeric columns become 1 or 0.
func copyValue(v infer.Value, dt infer.DataType) (any, error) {
	if v.IsNull() {
		return nil, nil
	}

	switch dt {
	case infer.TypeInt:
		if n, ok := v.Int64(); ok {
			return n, nil
		}
		n := numeric(v)
		if n >= math.MaxInt64 || n < math.MinInt64 {
			return nil, fmt.Errorf("%w: %s", ErrOutOfRange, v.Text())
		}
		return int64(n), nil
	case infer.TypeFloat:
		return numeric(v), nil
	case infer.TypeBool:
		return v.Bool(), nil
	default:
		return v.Text(), nil
	}
}

func numeric(v infer.Value) float64 {
	if v.Kind() == infer.KindBool {
		if v.Bool() {
			return 1
		}
		return 0
	}
	return v.Float()
}
