package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// MinTimeout and MaxTimeout bound every provider call.
	MinTimeout = time.Second
	MaxTimeout = 120 * time.Second

	// snippetLimit caps how much of a failed response body is kept in errors.
	snippetLimit = 400

	// maxResponseBytes guards against unbounded response bodies.
	maxResponseBytes = 32 << 20
)

// ClampTimeout returns d bounded to [MinTimeout, MaxTimeout], or def when d is zero.
func ClampTimeout(d, def time.Duration) time.Duration {
	if d <= 0 {
		d = def
	}
	if d < MinTimeout {
		return MinTimeout
	}
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}

// HTTPClient posts JSON to a provider backend.
type HTTPClient struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
	headers http.Header
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithRateLimit limits calls to rps requests per second. Zero disables limiting.
func WithRateLimit(rps float64) HTTPOption {
	return func(c *HTTPClient) {
		if rps > 0 {
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithBearerToken sets the Authorization header on every request.
func WithBearerToken(token string) HTTPOption {
	return func(c *HTTPClient) {
		if token != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// NewHTTPClient creates a client whose calls time out after timeout,
// clamped to [MinTimeout, MaxTimeout].
func NewHTTPClient(name string, timeout time.Duration, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		name:    name,
		client:  &http.Client{Timeout: ClampTimeout(timeout, 30*time.Second)},
		headers: http.Header{},
	}
	c.headers.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the effective per-call timeout.
func (c *HTTPClient) Timeout() time.Duration {
	return c.client.Timeout
}

// PostJSON marshals in, posts it to url and decodes the response into out.
// Transport failures, statuses >= 400 and undecodable bodies all return *Error.
func (c *HTTPClient) PostJSON(ctx context.Context, op, url string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Provider: c.name, Op: op, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	body, err := json.Marshal(in)
	if err != nil {
		return &Error{Provider: c.name, Op: op, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Provider: c.name, Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Provider: c.name, Op: op, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Provider: c.name, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &Error{
			Provider:   c.name,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("backend returned %s: %s", resp.Status, Snippet(string(raw))),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{
			Provider:   c.name,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response body %q: %w", Snippet(string(raw)), err),
		}
	}
	return nil
}

// Snippet trims s to the first 400 bytes for inclusion in error messages.
func Snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= snippetLimit {
		return s
	}
	return s[:snippetLimit]
}

// JoinURL appends path to base, tolerating a trailing slash on base.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
