package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/csvwdc/internal/cache"
	"github.com/JonMunkholm/csvwdc/internal/infer"
	"github.com/JonMunkholm/csvwdc/internal/logging"
)

// ErrExportDisabled is returned by Export when no sink is configured.
var ErrExportDisabled = errors.New("export disabled: no database configured")

// DefaultExportTimeout is the maximum duration for an export operation.
const DefaultExportTimeout = 10 * time.Minute

// Service loads hosted CSVs, infers their tables and hands out schemas,
// row batches and exports.
type Service struct {
	fetcher Fetcher
	engine  *infer.Engine
	cache   cache.Cache
	limiter *LoadLimiter
	sink    Sink

	tablePrefix   string
	batchSize     int
	exportTimeout time.Duration

	group singleflight.Group

	// gens counts invalidations per fingerprint. A load only caches its
	// result if no invalidation happened since it started.
	genMu sync.Mutex
	gens  map[string]uint64
}

// Option configures a Service.
type Option func(*Service)

// WithSink enables Export.
func WithSink(sink Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithLimiter bounds concurrent loads. Without it loads are unbounded.
func WithLimiter(l *LoadLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithBatchSize sets the default Rows chunk size.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithTablePrefix sets the prefix for derived export table names.
func WithTablePrefix(prefix string) Option {
	return func(s *Service) { s.tablePrefix = prefix }
}

// WithExportTimeout bounds a single Export.
func WithExportTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.exportTimeout = d
		}
	}
}

// WithEngine replaces the inference engine.
func WithEngine(e *infer.Engine) Option {
	return func(s *Service) { s.engine = e }
}

// NewService creates a Service. A nil cache disables caching.
func NewService(fetcher Fetcher, c cache.Cache, opts ...Option) *Service {
	s := &Service{
		fetcher:       fetcher,
		cache:         c,
		batchSize:     DefaultRowBatchSize,
		exportTimeout: DefaultExportTimeout,
		gens:          make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportEnabled reports whether a sink is configured.
func (s *Service) ExportEnabled() bool {
	return s.sink != nil
}

// LimiterStatus reports load slot usage. ok is false when loads are unbounded.
func (s *Service) LimiterStatus() (status LimiterStatus, ok bool) {
	if s.limiter == nil {
		return LimiterStatus{}, false
	}
	return s.limiter.Status(), true
}

// Load returns the inferred table for src, fetching and inferring it on a
// cache miss. Concurrent loads of the same source share one fetch.
//
// Once cached, a source keeps its table until it expires or is invalidated,
// even if the upstream data changes.
func (s *Service) Load(ctx context.Context, src Source) (*infer.Result, error) {
	src, err := src.Normalize()
	if err != nil {
		return nil, err
	}
	key := src.Fingerprint()

	if res, ok := s.cached(ctx, key); ok {
		return res, nil
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.load(ctx, src, key)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.FromContext(ctx).Debug("joined in-flight load", "source", key[:12])
	}
	return v.(*infer.Result), nil
}

func (s *Service) cached(ctx context.Context, key string) (*infer.Result, bool) {
	if s.cache == nil {
		return nil, false
	}
	res, ok, err := s.cache.Get(key)
	if err != nil {
		logging.FromContext(ctx).Warn("cache read failed", "source", key[:12], "error", err)
		return nil, false
	}
	if ok {
		logging.FromContext(ctx).Debug("cache hit", "source", key[:12])
	}
	return res, ok
}

func (s *Service) load(ctx context.Context, src Source, key string) (*infer.Result, error) {
	gen := s.generation(key)
	loadID := uuid.New().String()
	logger := logging.WithFields(ctx,
		"load_id", loadID,
		"source", key[:12],
	)
	if ip := GetIPAddressFromContext(ctx); ip != "" {
		logger = logger.With("client_ip", ip)
	}

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			logger.Warn("load rejected", "error", err)
			return nil, err
		}
		defer s.limiter.Release()
	}

	start := time.Now()
	logger.Info("load started", "host", hostOf(src.URL), "method", src.Method)

	body, err := s.fetcher.Fetch(ctx, src.request())
	if err != nil {
		logger.Error("fetch failed", "error", err)
		return nil, fmt.Errorf("fetch %s: %w", hostOf(src.URL), err)
	}

	engine := s.engine
	if engine == nil {
		engine = infer.NewEngine(logger)
	}
	res, stats, err := engine.Run(body, src.Delimiter)
	if err != nil {
		logger.Error("inference failed", "error", err)
		return nil, err
	}

	if s.cache != nil {
		s.store(logger, key, gen, res)
	}

	logger.Info("load completed",
		"columns", len(res.Columns),
		"rows", len(res.Rows),
		"dropped", len(stats.Dropped),
		"width", stats.Width,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (s *Service) generation(key string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[key]
}

// store caches res unless key was invalidated after generation gen was read.
func (s *Service) store(logger *slog.Logger, key string, gen uint64, res *infer.Result) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gens[key] != gen {
		logger.Debug("result not cached: source invalidated during load")
		return
	}
	if err := s.cache.Put(key, res); err != nil {
		logger.Warn("cache write failed", "error", err)
	}
}

// Schema returns the table schema for src.
func (s *Service) Schema(ctx context.Context, src Source) (*TableSchema, error) {
	res, err := s.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	return SchemaOf(res), nil
}

// SchemaOf wraps a result's columns in the connector table schema.
func SchemaOf(res *infer.Result) *TableSchema {
	cols := make([]infer.Column, len(res.Columns))
	copy(cols, res.Columns)
	return &TableSchema{ID: TableID, Alias: TableAlias, Columns: cols}
}

// Rows delivers the rows of src to fn in chunks of batchSize (the service
// default when batchSize <= 0). Each chunk carries a "Getting row: N"
// progress message where N is the number of rows delivered so far.
// Delivery stops at the first error from fn or ctx.
func (s *Service) Rows(ctx context.Context, src Source, batchSize int, fn func(RowBatch) error) error {
	res, err := s.Load(ctx, src)
	if err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = s.batchSize
	}
	return Batches(ctx, res.Rows, batchSize, fn)
}

// Batches splits rows into chunks of size and calls fn for each.
func Batches(ctx context.Context, rows []infer.Row, size int, fn func(RowBatch) error) error {
	if size <= 0 {
		size = DefaultRowBatchSize
	}
	for offset := 0; offset < len(rows); offset += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(offset+size, len(rows))
		batch := RowBatch{
			Rows:     rows[offset:end],
			Offset:   offset,
			Total:    len(rows),
			Progress: "Getting row: " + strconv.Itoa(end),
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate drops the cached table for src so the next load refetches it.
// A load already in flight still returns its result but does not cache it.
func (s *Service) Invalidate(ctx context.Context, src Source) error {
	src, err := src.Normalize()
	if err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}
	key := src.Fingerprint()
	s.genMu.Lock()
	s.gens[key]++
	s.genMu.Unlock()
	s.group.Forget(key)
	if err := s.cache.Delete(key); err != nil {
		return fmt.Errorf("invalidate: %w", err)
	}
	logging.FromContext(ctx).Info("cache invalidated", "source", key[:12])
	return nil
}

// Export loads src and writes it to table through the configured sink. An
// empty table name is derived from the URL.
func (s *Service) Export(ctx context.Context, src Source, table string, progress func(written int)) (*ExportResult, error) {
	if s.sink == nil {
		return nil, ErrExportDisabled
	}

	res, err := s.Load(ctx, src)
	if err != nil {
		return nil, err
	}

	if table == "" {
		table = TableNameFor(s.tablePrefix, src.URL)
	}

	exportCtx, cancel := context.WithTimeout(ctx, s.exportTimeout)
	defer cancel()

	exportID := uuid.New().String()
	logger := logging.WithFields(ctx, "export_id", exportID, "table", table)
	start := time.Now()

	n, err := s.sink.Write(exportCtx, table, res, progress)
	if err != nil {
		logger.Error("export failed", "error", err, "written", n)
		return nil, fmt.Errorf("export %s: %w", table, err)
	}

	logger.Info("export completed",
		slog.Int64("rows", n),
		slog.Int("columns", len(res.Columns)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return &ExportResult{ID: exportID, Table: table, Rows: n, Columns: len(res.Columns)}, nil
}

// TableNameFor derives a table name from the last path segment of rawURL,
// without its extension, sanitized to [a-z0-9_] and prefixed.
func TableNameFor(prefix, rawURL string) string {
	base := rawURL
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil && u.Path != "" {
		base = u.Path
	}
	base = path.Base(strings.TrimRight(base, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))

	name := strings.ToLower(infer.SanitizeKey(base))
	if strings.Trim(name, "_") == "" {
		name = "data"
	}
	return prefix + name
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return rawURL
}
