// Package fetch retrieves hosted CSV text over HTTP on behalf of callers.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/JonMunkholm/csvwdc/internal/config"
)

var (
	ErrAuth             = errors.New("upstream rejected credentials")
	ErrUpstream         = errors.New("upstream request failed")
	ErrTooLarge         = errors.New("upstream body exceeds size limit")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrInvalidURL       = errors.New("invalid url")
	ErrBlockedAddress   = errors.New("upstream address not allowed")
)

// StatusError reports a non-2xx upstream response. It unwraps to ErrAuth for
// 401 and 403 and to ErrUpstream otherwise.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %s", e.Status)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return ErrAuth
	}
	return ErrUpstream
}

// Request identifies the CSV to retrieve.
type Request struct {
	URL    string
	Method string // GET when empty
	Token  string // sent as a bearer token when set
}

// Client fetches CSV bodies.
type Client struct {
	http   *http.Client
	cfg    config.FetchConfig
	logger *slog.Logger
}

// NewClient returns a client bounded by cfg. A nil logger uses slog.Default().
func NewClient(cfg config.FetchConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	h := &http.Client{Timeout: cfg.Timeout}
	if cfg.BlockPrivate {
		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second, Control: denyPrivate}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = nil
		transport.DialContext = dialer.DialContext
		h.Transport = transport
	}
	return &Client{
		http:   h,
		cfg:    cfg,
		logger: logger,
	}
}

// denyPrivate runs after DNS resolution, so hostnames that resolve to an
// internal address are refused as well.
func denyPrivate(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if blockedAddr(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ap.Addr())
	}
	return nil
}

// blockedAddr reports whether ip is not a public unicast address.
func blockedAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Fetch retrieves the body at req.URL as text. The body has any UTF-8 BOM
// removed and invalid UTF-8 bytes replaced.
func (c *Client) Fetch(ctx context.Context, req Request) (string, error) {
	method, err := c.method(req.Method)
	if err != nil {
		return "", err
	}

	target, err := NormalizeURL(req.URL)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	if c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	httpReq.Header.Set("Accept", "text/csv, text/plain, */*")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, ErrBlockedAddress) {
			c.logger.Warn("upstream address refused", "host", httpReq.URL.Host)
			return "", fmt.Errorf("%w: %s", ErrBlockedAddress, httpReq.URL.Host)
		}
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	var src io.Reader = resp.Body
	if c.cfg.MaxBodySize > 0 {
		src = io.LimitReader(resp.Body, c.cfg.MaxBodySize+1)
	}
	body, counter := wrapBody(src)

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
	}
	if c.cfg.MaxBodySize > 0 && counter.bytesRead > c.cfg.MaxBodySize {
		return "", fmt.Errorf("%w (%d bytes)", ErrTooLarge, c.cfg.MaxBodySize)
	}

	c.logger.Debug("fetched upstream body",
		"method", method,
		"host", httpReq.URL.Host,
		"status", resp.StatusCode,
		"bytes", counter.bytesRead,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return string(data), nil
}

func (c *Client) method(m string) (string, error) {
	m = strings.ToUpper(strings.TrimSpace(m))
	if m == "" {
		m = http.MethodGet
	}
	if len(c.cfg.AllowedMethods) == 0 {
		return m, nil
	}
	for _, allowed := range c.cfg.AllowedMethods {
		if strings.EqualFold(strings.TrimSpace(allowed), m) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMethodNotAllowed, m)
}

// NormalizeURL trims raw and prefixes https:// when no scheme is given.
// Only http and https are accepted.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u.String(), nil
}

var urlPattern = regexp.MustCompile(`(?m)^(http://www\.|https://www\.|http://|https://|ftp://)?[a-z0-9]+([\-.]{1}[a-z0-9]+)*\.[a-z]{2,5}(:[0-9]{1,5})?(/.*)?$`)

// LooksLikeURL is a loose sanity check on user input. A false result is a
// warning only; callers still attempt the fetch.
func LooksLikeURL(s string) bool {
	return urlPattern.MatchString(strings.TrimSpace(s))
}
