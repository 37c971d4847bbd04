package web

// errors.go provides unified error responses for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err, statusCode), or statusFor(err) picks the code
//  3. Error is mapped via core.MapError to get a user-friendly message
//  4. Technical error is logged with the request ID for correlation
//  5. The user message is written as JSON

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/csvwdc/internal/core"
	"github.com/JonMunkholm/csvwdc/internal/export"
	"github.com/JonMunkholm/csvwdc/internal/fetch"
	"github.com/JonMunkholm/csvwdc/internal/infer"
	"github.com/JonMunkholm/csvwdc/internal/logging"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("invalid request body")

// respondError logs err and writes its user-facing form.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	level := logger.Warn
	if statusCode >= http.StatusInternalServerError {
		level = logger.Error
	}
	level("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	writeJSON(w, r, statusCode, errorBody(err, userMsg))
}

func errorBody(err error, msg core.UserMessage) ErrorResponse {
	resp := ErrorResponse{
		Error:   core.FormatUserError(err),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	if errors.Is(err, errBadRequest) {
		resp.Error = err.Error()
		resp.Message = err.Error()
	}
	return resp
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, fetch.ErrInvalidURL),
		errors.Is(err, fetch.ErrMethodNotAllowed),
		errors.Is(err, infer.ErrBadDelimiter),
		errors.Is(err, export.ErrTableName):
		return http.StatusBadRequest
	case errors.Is(err, infer.ErrNoHeader):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fetch.ErrBlockedAddress):
		return http.StatusForbidden
	case errors.Is(err, fetch.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyLoads):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrExportDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, fetch.ErrAuth), errors.Is(err, fetch.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
