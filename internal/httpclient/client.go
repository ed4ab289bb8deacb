// Package httpclient provides the retrying HTTP transport shared by the
// catalog, resolver and fit-service clients.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/galsynth/pkg/core"
	"github.com/sethvargo/go-retry"
)

// DefaultRetryStatuses are the HTTP statuses treated as transient.
var DefaultRetryStatuses = []int{
	http.StatusMethodNotAllowed,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// maxBodyBytes bounds how much of a response is read into memory.
const maxBodyBytes = 64 << 20

// Config holds transport settings.
type Config struct {
	// Timeout applies to each attempt; zero disables it.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64
	// BackoffBase is the first backoff delay; each retry doubles it.
	BackoffBase time.Duration
	// UserAgent is sent when a request has none.
	UserAgent string
	// RetryStatuses lists the HTTP statuses that are retried.
	RetryStatuses []int
}

// DefaultConfig returns the standard transport settings.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		MaxRetries:    5,
		BackoffBase:   2 * time.Second,
		UserAgent:     "galsynth",
		RetryStatuses: DefaultRetryStatuses,
	}
}

// Response captures a completed exchange.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Duration time.Duration
}

// Client executes requests with per-attempt timeout and bounded exponential retry.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.RetryStatuses == nil {
		cfg.RetryStatuses = DefaultRetryStatuses
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	c := &Client{
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-retryable, non-2xx response.
type StatusError struct {
	Status int
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.Status, e.URL, e.Body)
}

// Get issues a GET with optional query parameters and headers.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values, header http.Header) (Response, error) {
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + query.Encode()
	}
	return c.Do(ctx, http.MethodGet, rawURL, nil, header)
}

// PostForm issues a form-encoded POST.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) (Response, error) {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Do(ctx, http.MethodPost, rawURL, []byte(form.Encode()), h)
}

// PostJSON issues a POST with an already-encoded JSON body.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body []byte, header http.Header) (Response, error) {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	return c.Do(ctx, http.MethodPost, rawURL, body, h)
}

// Do executes a request, retrying transient failures. Exhausted retries are
// reported as core.ErrTransient and 403 responses as core.ErrExternalService.
func (c *Client) Do(ctx context.Context, method, rawURL string, body []byte, header http.Header) (Response, error) {
	backoff := retry.WithMaxRetries(c.cfg.MaxRetries, retry.NewExponential(c.cfg.BackoffBase))

	var (
		resp    Response
		attempt int
		lastErr error
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		r, err := c.once(ctx, method, rawURL, body, header)
		if err != nil {
			lastErr = err
			c.logger.Debug("request failed, retrying",
				slog.String("url", rawURL), slog.Int("attempt", attempt), slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		if slices.Contains(c.cfg.RetryStatuses, r.Status) {
			lastErr = &StatusError{Status: r.Status, URL: rawURL, Body: snippet(r.Body)}
			c.logger.Debug("transient status, retrying",
				slog.String("url", rawURL), slog.Int("attempt", attempt), slog.Int("status", r.Status))
			return retry.RetryableError(lastErr)
		}
		resp = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, fmt.Errorf("%w: %s %s after %d attempts: %w", core.ErrTransient, method, rawURL, attempt, lastErr)
	}

	switch {
	case resp.Status == http.StatusForbidden:
		return resp, fmt.Errorf("%w: %s: %w", core.ErrExternalService, rawURL,
			&StatusError{Status: resp.Status, URL: rawURL, Body: snippet(resp.Body)})
	case resp.Status < 200 || resp.Status > 299:
		return resp, &StatusError{Status: resp.Status, URL: rawURL, Body: snippet(resp.Body)}
	}
	return resp, nil
}

// once performs a single attempt.
func (c *Client) once(ctx context.Context, method, rawURL string, body []byte, header http.Header) (Response, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" && c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return Response{Duration: time.Since(start)}, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return Response{Duration: time.Since(start)}, fmt.Errorf("failed to read response body: %w", err)
	}

	return Response{
		Status:   res.StatusCode,
		Header:   res.Header.Clone(),
		Body:     b,
		Duration: time.Since(start),
	}, nil
}

func snippet(b []byte) string {
	const n = 200
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
