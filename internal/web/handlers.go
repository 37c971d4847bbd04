package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csvwdc/internal/core"
	"github.com/JonMunkholm/csvwdc/internal/fetch"
	"github.com/JonMunkholm/csvwdc/internal/logging"
)

// maxRequestBody caps JSON and form request bodies.
const maxRequestBody = 1 << 20

// sourceRequest is the JSON body shared by the /api routes. Unlike
// core.Source it carries the token in and the optional export table name.
type sourceRequest struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	Delimiter string `json:"delimiter"`
	Token     string `json:"token"`
	Table     string `json:"table"`
}

func (req sourceRequest) source() core.Source {
	return core.Source{
		URL:       req.URL,
		Method:    req.Method,
		Delimiter: req.Delimiter,
		Token:     req.Token,
	}
}

// proxyResponse is the legacy proxy payload: exactly one of Body or Error.
type proxyResponse struct {
	Body  string `json:"body,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// rowsLine is one NDJSON line of a /api/rows stream.
type rowsLine struct {
	Rows     any    `json:"rows,omitempty"`
	Offset   int    `json:"offset"`
	Total    int    `json:"total"`
	Progress string `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}

// decodeSource reads a sourceRequest from a JSON body, falling back to query
// parameters when the body is empty.
func decodeSource(r *http.Request) (sourceRequest, error) {
	var req sourceRequest

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return req, errors.Join(errBadRequest, err)
	}
	if len(body) > maxRequestBody {
		return req, errors.Join(errBadRequest, fetch.ErrTooLarge)
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		q := r.URL.Query()
		req.URL = q.Get("url")
		req.Method = q.Get("method")
		req.Delimiter = q.Get("delimiter")
		req.Table = q.Get("table")
		return req, nil
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return req, errors.Join(errBadRequest, err)
	}
	return req, nil
}

// handleHealth reports liveness plus load slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"export": s.service.ExportEnabled(),
	}
	if status, ok := s.service.LimiterStatus(); ok {
		resp["loads"] = status
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleProxy fetches the URL in the path on behalf of the connector page and
// returns its raw body. Failures are reported in the payload with status 200
// because the page only inspects the JSON.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	logger := logging.FromContext(ctx)

	target := proxyTarget(r)
	if !fetch.LooksLikeURL(target) {
		logger.Warn("proxy target does not look like a url", "target", target)
	}

	method, token, err := proxyParams(r)
	if err != nil {
		writeJSON(w, r, http.StatusOK, proxyResponse{Error: err.Error(), Code: core.MapError(err).Code})
		return
	}

	src, err := core.Source{URL: target, Method: method, Token: token}.Normalize()
	if err == nil {
		var body string
		body, err = s.fetcher.Fetch(ctx, fetch.Request{URL: src.URL, Method: src.Method, Token: src.Token})
		if err == nil {
			writeJSON(w, r, http.StatusOK, proxyResponse{Body: body})
			return
		}
	}

	msg := core.MapError(err)
	logger.Warn("proxy fetch failed", "error", err, "code", msg.Code)
	writeJSON(w, r, http.StatusOK, proxyResponse{Error: core.FormatUserError(err), Code: msg.Code})
}

// proxyTarget rebuilds the upstream URL from the wildcard path segment and
// the raw query string.
func proxyTarget(r *http.Request) string {
	target := chi.URLParam(r, "*")

	// Some front proxies merge the double slash after the scheme.
	for _, scheme := range []string{"https:/", "http:/"} {
		if strings.HasPrefix(target, scheme) && !strings.HasPrefix(target, scheme+"/") {
			target = scheme + "/" + strings.TrimPrefix(target, scheme)
			break
		}
	}

	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return target
}

// proxyParams reads method and token from a form or JSON body.
func proxyParams(r *http.Request) (method, token string, err error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBody)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req sourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return "", "", errors.Join(errBadRequest, err)
		}
		return req.Method, req.Token, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", "", errors.Join(errBadRequest, err)
	}
	return r.PostForm.Get("method"), r.PostForm.Get("token"), nil
}

// handleSchema returns the inferred table schema.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSource(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	schema, err := s.service.Schema(WithRequestMetadata(r.Context(), r), req.source())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, schema)
}

// handleRows streams rows as NDJSON, one line per batch, flushing after each.
// Once the first line is written, later failures become an error line.
func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSource(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	batch := 0
	if v := r.URL.Query().Get("batch"); v != "" {
		batch, err = strconv.Atoi(v)
		if err != nil || batch < 0 {
			respondError(w, r, errors.Join(errBadRequest, errors.New("batch must be a non-negative integer")), http.StatusBadRequest)
			return
		}
	}

	ctx := WithRequestMetadata(r.Context(), r)
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	started := false

	err = s.service.Rows(ctx, req.source(), batch, func(b core.RowBatch) error {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		line := rowsLine{Rows: b.Rows, Offset: b.Offset, Total: b.Total, Progress: b.Progress}
		if err := enc.Encode(line); err != nil {
			return err
		}
		_ = rc.Flush()
		return nil
	})

	switch {
	case err == nil && !started:
		// No rows: still answer with an empty stream.
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
	case err != nil && !started:
		respondError(w, r, err, statusFor(err))
	case err != nil:
		msg := core.MapError(err)
		logging.FromContext(ctx).Error("row stream interrupted", "error", err, "code", msg.Code)
		_ = enc.Encode(rowsLine{Error: core.FormatUserError(err), Code: msg.Code})
	}
}

// handleExport loads a source and writes it to Postgres.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSource(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.Export(ctx, req.source(), req.Table, nil)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleInvalidate drops a cached source.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSource(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	if err := s.service.Invalidate(WithRequestMetadata(r.Context(), r), req.source()); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
