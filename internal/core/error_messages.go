package core

// # Error Codes Reference
//
// This file maps technical errors to user-friendly messages with codes for
// support reference. When a connector user reports an error, the code tells
// support which stage failed.
//
// Sentinel errors are matched first with errors.Is; anything else falls
// through to case-insensitive substring patterns.
//
// # Fetch Errors (FETCH001-FETCH099)
//
//	FETCH001 - Upstream failed: The CSV host could not be reached or returned an error
//	           Action: Check the URL and that the file is publicly reachable
//	FETCH002 - Too large: The CSV exceeds the maximum download size
//	           Action: Host a smaller extract of the data
//	FETCH003 - Invalid URL: The URL could not be understood
//	           Action: Enter a full http or https URL
//	FETCH004 - Method not allowed: The request method is not permitted
//	           Action: Use GET or POST
//	FETCH005 - Blocked address: The URL points at an internal network address
//	           Action: Use a publicly hosted URL
//
// # Authentication Errors (AUTH001-AUTH099)
//
//	AUTH001 - Upstream auth: The CSV host rejected the token
//	          Action: Check the bearer token entered for this connection
//	AUTH002 - API key: Missing or invalid API key
//	          Action: Supply a valid X-API-Key header
//
// # CSV Errors (CSV001-CSV099)
//
//	CSV001 - No header: The response contained no header row
//	         Action: Verify the URL points at CSV text, not an HTML page
//	CSV002 - Bad delimiter: The delimiter is not a single usable character
//	         Action: Enter one character such as , ; or |
//	CSV003 - Parse error: The CSV text could not be parsed
//	         Action: Check the file for unbalanced quotes
//
// # Load Errors (LOAD001-LOAD099)
//
//	LOAD001 - System busy: Too many loads in progress
//	LOAD002 - Cancelled: The request was cancelled
//	LOAD003 - Timed out: The request took too long
//
// # Cache Errors (CACHE001-CACHE099)
//
//	CACHE001 - Cache unavailable: The result cache is closed or unreadable
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Export disabled: No database is configured
//	DB002 - Connection refused: Unable to connect to database
//	DB003 - Permission denied: The database user cannot create or write the table
//	DB004 - Timeout: Database operation timed out
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: Too many requests
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the application logs for the
// technical error.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/csvwdc/internal/cache"
	"github.com/JonMunkholm/csvwdc/internal/fetch"
	"github.com/JonMunkholm/csvwdc/internal/infer"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorTarget struct {
	target error
	msg    UserMessage
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgUpstream = UserMessage{
		Message: "The CSV host could not be reached or returned an error",
		Action:  "Check the URL and that the file is publicly reachable",
		Code:    "FETCH001",
	}
	msgTooLarge = UserMessage{
		Message: "The CSV exceeds the maximum download size",
		Action:  "Host a smaller extract of the data",
		Code:    "FETCH002",
	}
	msgInvalidURL = UserMessage{
		Message: "The URL could not be understood",
		Action:  "Enter a full http or https URL",
		Code:    "FETCH003",
	}
	msgMethod = UserMessage{
		Message: "The request method is not permitted",
		Action:  "Use GET or POST",
		Code:    "FETCH004",
	}
	msgBlocked = UserMessage{
		Message: "The URL points at an internal network address",
		Action:  "Use a publicly hosted URL",
		Code:    "FETCH005",
	}
	msgUpstreamAuth = UserMessage{
		Message: "The CSV host rejected the token",
		Action:  "Check the bearer token entered for this connection",
		Code:    "AUTH001",
	}
	msgAPIKey = UserMessage{
		Message: "Missing or invalid API key",
		Action:  "Supply a valid X-API-Key header",
		Code:    "AUTH002",
	}
	msgNoHeader = UserMessage{
		Message: "The response contained no header row",
		Action:  "Verify the URL points at CSV text, not an HTML page",
		Code:    "CSV001",
	}
	msgDelimiter = UserMessage{
		Message: "The delimiter is not a single usable character",
		Action:  "Enter one character such as , ; or |",
		Code:    "CSV002",
	}
	msgParse = UserMessage{
		Message: "The CSV text could not be parsed",
		Action:  "Check the file for unbalanced quotes",
		Code:    "CSV003",
	}
	msgBusy = UserMessage{
		Message: "System is busy processing other loads",
		Action:  "Please wait a moment and try again",
		Code:    "LOAD001",
	}
	msgCanceled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "LOAD002",
	}
	msgDeadline = UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check the host's response time",
		Code:    "LOAD003",
	}
	msgCache = UserMessage{
		Message: "The result cache is unavailable",
		Action:  "Please try again; contact support if this persists",
		Code:    "CACHE001",
	}
	msgExportDisabled = UserMessage{
		Message: "Export is not available",
		Action:  "Configure DATABASE_URL to enable export",
		Code:    "DB001",
	}
)

// errorTargets are checked with errors.Is, in order.
var errorTargets = []errorTarget{
	{context.Canceled, msgCanceled},
	{context.DeadlineExceeded, msgDeadline},
	{fetch.ErrAuth, msgUpstreamAuth},
	{fetch.ErrTooLarge, msgTooLarge},
	{fetch.ErrInvalidURL, msgInvalidURL},
	{fetch.ErrMethodNotAllowed, msgMethod},
	{fetch.ErrBlockedAddress, msgBlocked},
	{fetch.ErrUpstream, msgUpstream},
	{infer.ErrNoHeader, msgNoHeader},
	{infer.ErrBadDelimiter, msgDelimiter},
	{ErrTooManyLoads, msgBusy},
	{ErrExportDisabled, msgExportDisabled},
	{cache.ErrClosed, msgCache},
}

// errorPatterns maps technical error text (case-insensitive) to user
// messages. The first matching pattern wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	{"parse error", msgParse},
	{"extraneous", msgParse},
	{"api key", msgAPIKey},
	{"pebble", msgCache},
	{"decode cached result", msgCache},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "permission denied",
		msg: UserMessage{
			Message: "The database user cannot create or write the table",
			Action:  "Grant CREATE and INSERT on the target schema",
			Code:    "DB003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Database operation timed out",
			Action:  "Try again later",
			Code:    "DB004",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns an empty UserMessage for nil.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, et := range errorTargets {
		if errors.Is(err, et.target) {
			return et.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
