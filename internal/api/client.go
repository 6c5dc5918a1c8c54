// Package api talks to the remote record API: a rate-limited, retrying HTTP
// client, a single re-authentication policy, the response classifier, and the
// record dispatcher built on top of them.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/crmwriter/internal/logging"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig configures the HTTP client behavior.
type ClientConfig struct {
	// BaseURL is the base URL for all requests, e.g. https://org/api/data/v9.1/.
	BaseURL string

	// Timeout for individual attempts (default: 30s).
	Timeout time.Duration

	// MaxRetries for transient failures (default: 7).
	MaxRetries int

	// BackoffFactor scales the delay before retry n: factor * 2^n (default: 100ms).
	BackoffFactor time.Duration

	// MaxBackoff caps the delay between retries (default: 30s).
	MaxBackoff time.Duration

	// RateLimit requests per second (default: 10).
	RateLimit float64

	// RateBurst maximum burst size (default: 5).
	RateBurst int

	// Headers to add to all requests.
	Headers map[string]string

	// UserAgent string (default: "crmwriter/1.0").
	UserAgent string

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// DefaultClientConfig returns a client config with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:       30 * time.Second,
		MaxRetries:    7,
		BackoffFactor: 100 * time.Millisecond,
		MaxBackoff:    30 * time.Second,
		RateLimit:     10.0,
		RateBurst:     5,
		UserAgent:     "crmwriter/1.0",
		Headers:       DefaultHeaders(),
	}
}

// DefaultHeaders are sent with every record API call.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":           "application/json",
		"Content-Type":     "application/json",
		"OData-MaxVersion": "4.0",
		"OData-Version":    "4.0",
	}
}

// BaseURL builds the versioned API root for an organization.
func BaseURL(organizationURL, version string) string {
	return strings.TrimSuffix(organizationURL, "/") + "/api/data/" + version + "/"
}

// =============================================================================
// HTTP CLIENT
// =============================================================================

// Client is a rate-limited, retry-capable HTTP client. Unlike a plain
// http.Client it never turns a non-2xx status into an error; the caller
// classifies responses.
type Client struct {
	config      *ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient creates a new HTTP client with the given configuration.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = 100 * time.Millisecond
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10.0
	}
	if config.RateBurst == 0 {
		config.RateBurst = 5
	}
	if config.UserAgent == "" {
		config.UserAgent = "crmwriter/1.0"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
	}
}

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// Request represents an HTTP request to be made. Body is held as bytes so
// it can be re-sent on retry.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    []byte
}

// withHeader returns a copy of r with one extra header.
func (r *Request) withHeader(key, value string) *Request {
	out := *r
	out.Headers = make(map[string]string, len(r.Headers)+1)
	for k, v := range r.Headers {
		out.Headers[k] = v
	}
	out.Headers[key] = value
	return &out
}

// Response wraps an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// IsSuccess returns true if the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// =============================================================================
// CLIENT METHODS
// =============================================================================

// Do executes a request with rate limiting and retry. Transient statuses
// (429 and 5xx gateway/server errors) and connection failures are retried
// up to MaxRetries times. When retries run out on a transient status the
// last response is returned; when they run out on connection failures a
// *TransientError is returned.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		// Wait for rate limiter
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := c.doOnce(ctx, req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var connErr *connectionError
			if !errors.As(err, &connErr) {
				return nil, err
			}
			lastErr = err
		case isTransientStatus(resp.StatusCode) && attempt < c.config.MaxRetries:
			lastErr = fmt.Errorf("transient status %d", resp.StatusCode)
		default:
			return resp, nil
		}

		if attempt == c.config.MaxRetries {
			break
		}

		backoff := c.backoff(attempt)
		logger.Warn("retrying request",
			"method", req.Method,
			"path", req.Path,
			"attempt", attempt+1,
			"backoff", backoff,
			"error", lastErr,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, &TransientError{Attempts: c.config.MaxRetries + 1, Err: lastErr}
}

// doOnce executes a single request attempt.
func (c *Client) doOnce(ctx context.Context, req *Request) (*Response, error) {
	// Build URL
	fullURL := c.config.BaseURL
	if req.Path != "" {
		fullURL = strings.TrimSuffix(fullURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")
	}
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &connectionError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &connectionError{err: fmt.Errorf("read body: %w", err)}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// =============================================================================
// ERRORS
// =============================================================================

// TransientError reports connection failures that outlasted every retry.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("connection failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

type connectionError struct {
	err error
}

func (e *connectionError) Error() string { return e.err.Error() }

func (e *connectionError) Unwrap() error { return e.err }

func isTransientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// backoff returns factor * 2^attempt, capped at MaxBackoff.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.config.BackoffFactor
	for i := 0; i < attempt && delay < c.config.MaxBackoff; i++ {
		delay *= 2
	}
	return min(delay, c.config.MaxBackoff)
}
