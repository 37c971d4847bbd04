package web

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvwdc/internal/cache"
	"github.com/JonMunkholm/csvwdc/internal/config"
	"github.com/JonMunkholm/csvwdc/internal/core"
	"github.com/JonMunkholm/csvwdc/internal/export"
	"github.com/JonMunkholm/csvwdc/internal/fetch"
	"github.com/JonMunkholm/csvwdc/internal/infer"
	mw "github.com/JonMunkholm/csvwdc/internal/web/middleware"
)

const peopleCSV = "Name,Age\nann,30\nbob,41\n"

type stubFetcher struct {
	mu    sync.Mutex
	calls atomic.Int32
	body  string
	err   error
	last  fetch.Request
}

func (f *stubFetcher) Fetch(ctx context.Context, req fetch.Request) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	return f.body, f.err
}

func (f *stubFetcher) lastRequest() fetch.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type stubSink struct{}

func (stubSink) Write(ctx context.Context, table string, res *infer.Result, progress func(int)) (int64, error) {
	return int64(len(res.Rows)), nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
	}
}

func newTestServer(t *testing.T, f *stubFetcher, cfg *config.Config, opts ...core.Option) *Server {
	t.Helper()
	svc := core.NewService(f, cache.NewMemory(8, 0), opts...)
	s := NewServer(svc, f, cfg)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(s *Server, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &stubFetcher{}, testConfig(), core.WithLimiter(core.NewLoadLimiter(2, time.Second)))

	rec := do(s, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["export"])
	assert.Contains(t, body, "loads")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestProxy_Form(t *testing.T) {
	f := &stubFetcher{body: peopleCSV}
	s := newTestServer(t, f, testConfig())

	form := url.Values{"method": {"post"}, "token": {"secret"}}
	rec := do(s, http.MethodPost, "/proxy/https://example.com/data/people.csv?v=2",
		"application/x-www-form-urlencoded", form.Encode())

	require.Equal(t, http.StatusOK, rec.Code)
	var resp proxyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, peopleCSV, resp.Body)
	assert.Empty(t, resp.Error)

	assert.Equal(t, fetch.Request{
		URL:    "https://example.com/data/people.csv?v=2",
		Method: http.MethodPost,
		Token:  "secret",
	}, f.lastRequest())
}

func TestProxy_JSON(t *testing.T) {
	f := &stubFetcher{body: "a\n1\n"}
	s := newTestServer(t, f, testConfig())

	rec := do(s, http.MethodPost, "/proxy/example.com/a.csv", "application/json", `{"method":"GET"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "example.com/a.csv", f.lastRequest().URL)
	assert.Equal(t, http.MethodGet, f.lastRequest().Method)
}

func TestProxy_MergedSchemeSlash(t *testing.T) {
	f := &stubFetcher{body: "a\n"}
	s := newTestServer(t, f, testConfig())

	do(s, http.MethodPost, "/proxy/https:/example.com/a.csv", "", "")
	assert.Equal(t, "https://example.com/a.csv", f.lastRequest().URL)
}

func TestProxy_ErrorInPayload(t *testing.T) {
	f := &stubFetcher{err: fmt.Errorf("%w: 401 Unauthorized", fetch.ErrAuth)}
	s := newTestServer(t, f, testConfig())

	rec := do(s, http.MethodPost, "/proxy/https://example.com/a.csv", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp proxyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Body)
	assert.Equal(t, "AUTH001", resp.Code)
	assert.Contains(t, resp.Error, "rejected the token")
}

func TestSchema(t *testing.T) {
	f := &stubFetcher{body: peopleCSV}
	s := newTestServer(t, f, testConfig())

	rec := do(s, http.MethodPost, "/api/schema", "application/json",
		`{"url":"https://example.com/people.csv","token":"t"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var schema core.TableSchema
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schema))
	assert.Equal(t, core.TableID, schema.ID)
	assert.Equal(t, core.TableAlias, schema.Alias)
	assert.Equal(t, []infer.Column{
		{Key: "Name", Alias: "Name", DataType: infer.TypeString},
		{Key: "Age", Alias: "Age", DataType: infer.TypeInt},
	}, schema.Columns)
	assert.Equal(t, "t", f.lastRequest().Token)
}

func TestSchema_QueryParams(t *testing.T) {
	f := &stubFetcher{body: "a;b\n1;2\n"}
	s := newTestServer(t, f, testConfig())

	rec := do(s, http.MethodPost, "/api/schema?url=example.com/x.csv&delimiter=%3B", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"b"`)
}

func TestSchema_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fetch  *stubFetcher
		status int
		code   string
	}{
		{"malformed json", `{"url":`, &stubFetcher{}, http.StatusBadRequest, "ERR000"},
		{"no url", `{"url":"  "}`, &stubFetcher{}, http.StatusBadRequest, "FETCH003"},
		{"bad delimiter", `{"url":"x.csv","delimiter":"ab"}`, &stubFetcher{}, http.StatusBadRequest, "CSV002"},
		{"empty body", `{"url":"x.csv"}`, &stubFetcher{body: ""}, http.StatusUnprocessableEntity, "CSV001"},
		{"upstream", `{"url":"x.csv"}`, &stubFetcher{err: fmt.Errorf("%w: 500", fetch.ErrUpstream)}, http.StatusBadGateway, "FETCH001"},
		{"too large", `{"url":"x.csv"}`, &stubFetcher{err: fetch.ErrTooLarge}, http.StatusRequestEntityTooLarge, "FETCH002"},
		{"internal address", `{"url":"x.csv"}`, &stubFetcher{err: fetch.ErrBlockedAddress}, http.StatusForbidden, "FETCH005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.fetch, testConfig())
			rec := do(s, http.MethodPost, "/api/schema", "application/json", tt.body)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestRows_Stream(t *testing.T) {
	f := &stubFetcher{body: "n\n1\n2\n3\n"}
	s := newTestServer(t, f, testConfig())

	rec := do(s, http.MethodPost, "/api/rows?batch=2", "application/json", `{"url":"x.csv"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.True(t, rec.Flushed)

	var lines []map[string]any
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "Getting row: 2", lines[0]["progress"])
	assert.Equal(t, "Getting row: 3", lines[1]["progress"])
	assert.Len(t, lines[0]["rows"], 2)
	assert.Len(t, lines[1]["rows"], 1)
	assert.EqualValues(t, 3, lines[1]["total"])
	assert.EqualValues(t, 2, lines[1]["offset"])
}

func TestRows_Empty(t *testing.T) {
	s := newTestServer(t, &stubFetcher{body: "a,b\n"}, testConfig())

	rec := do(s, http.MethodPost, "/api/rows", "application/json", `{"url":"x.csv"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRows_BadBatch(t *testing.T) {
	s := newTestServer(t, &stubFetcher{body: peopleCSV}, testConfig())

	rec := do(s, http.MethodPost, "/api/rows?batch=-1", "application/json", `{"url":"x.csv"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(t, &stubFetcher{body: peopleCSV}, testConfig())
		rec := do(s, http.MethodPost, "/api/export", "application/json", `{"url":"x.csv"}`)
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
		assert.Equal(t, "DB001", decodeError(t, rec).Code)
	})

	t.Run("writes", func(t *testing.T) {
		s := newTestServer(t, &stubFetcher{body: peopleCSV}, testConfig(),
			core.WithSink(stubSink{}), core.WithTablePrefix("csv_"))
		rec := do(s, http.MethodPost, "/api/export", "application/json",
			`{"url":"https://example.com/people.csv"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var res core.ExportResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, "csv_people", res.Table)
		assert.EqualValues(t, 2, res.Rows)
		assert.Equal(t, 2, res.Columns)
		assert.NotEmpty(t, res.ID)
	})
}

func TestInvalidate(t *testing.T) {
	f := &stubFetcher{body: peopleCSV}
	s := newTestServer(t, f, testConfig())
	body := `{"url":"x.csv"}`

	do(s, http.MethodPost, "/api/schema", "application/json", body)
	do(s, http.MethodPost, "/api/schema", "application/json", body)
	assert.EqualValues(t, 1, f.calls.Load())

	rec := do(s, http.MethodDelete, "/api/cache", "application/json", body)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	do(s, http.MethodPost, "/api/schema", "application/json", body)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}
	s := newTestServer(t, &stubFetcher{body: peopleCSV}, cfg)

	rec := do(s, http.MethodPost, "/api/schema", "application/json", `{"url":"x.csv"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/schema", strings.NewReader(`{"url":"x.csv"}`))
	req.Header.Set(mw.APIKeyHeader, "k1")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The proxy keeps the connector page's unauthenticated contract.
	rec = do(s, http.MethodPost, "/proxy/x.csv", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	s := newTestServer(t, &stubFetcher{}, cfg)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/healthz", "", "").Code)
	}
	rec := do(s, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	defer rl.stop()

	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.allow("a"))

	now = now.Add(3 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.visitors)

	rl.stop() // idempotent
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fetch.ErrInvalidURL, http.StatusBadRequest},
		{fetch.ErrMethodNotAllowed, http.StatusBadRequest},
		{export.ErrTableName, http.StatusBadRequest},
		{infer.ErrNoHeader, http.StatusUnprocessableEntity},
		{core.ErrTooManyLoads, http.StatusServiceUnavailable},
		{core.ErrExportDisabled, http.StatusNotImplemented},
		{fmt.Errorf("fetch: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: 403", fetch.ErrAuth), http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
