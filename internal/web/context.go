package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/csvwdc/internal/core"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx for load logs.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr // already resolved by TrustedRealIP
	ua := r.Header.Get("User-Agent")
	ctx = core.ContextWithIPAddress(ctx, ip)
	ctx = core.ContextWithUserAgent(ctx, ua)
	return ctx
}
