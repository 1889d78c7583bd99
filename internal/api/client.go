// Package api provides thin HTTP wrappers over the Marketa backend, one file
// per resource. There are no retries: callers decide what a failure means.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/domain"
	"github.com/arunshreyas/Marketa/internal/logging"
)

// Auth supplies credentials to the client and is told when the backend
// rejects them. *session.Manager implements it.
type Auth interface {
	Token() string
	// Expire drops the session only if token is still the current one.
	Expire(ctx context.Context, token string)
}

// Client is an HTTP client for the Marketa backend.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	auth         Auth
	logger       *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for request/response calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithStreamClient replaces the client used for the event stream. It must not
// carry a Timeout; the stream is bounded by its context instead.
func WithStreamClient(hc *http.Client) Option {
	return func(c *Client) { c.streamClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

// NewClient creates a client for the backend at baseURL. auth may be nil for
// unauthenticated use (signup, login).
func NewClient(baseURL string, auth Auth, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
		auth:         auth,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one call.
type request struct {
	op          string
	method      string
	path        string
	body        any
	rawBody     io.Reader
	contentType string
	authed      bool
	// token is the bearer sent with the request, set by newRequest.
	token string
}

func (c *Client) newRequest(ctx context.Context, r *request) (*http.Request, error) {
	var body io.Reader
	contentType := r.contentType
	switch {
	case r.rawBody != nil:
		body = r.rawBody
	case r.body != nil:
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to marshal request: %w", r.op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", r.op, err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if r.authed && c.auth != nil {
		r.token = c.auth.Token()
		if r.token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+r.token)
		}
	}
	return httpReq, nil
}

// do executes r and decodes a JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	data, err := c.doRaw(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", r.op, err)
	}
	return nil
}

// doRaw executes r and returns the raw body of a 2xx response.
func (c *Client) doRaw(ctx context.Context, r request) ([]byte, error) {
	httpReq, err := c.newRequest(ctx, &r)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("request failed", zap.String("op", r.op), zap.Error(err))
		return nil, fmt.Errorf("%s: %w: %w", r.op, ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", r.op, ErrNetwork, err)
	}
	c.logger.Debug("request done",
		zap.String("op", r.op),
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.statusError(ctx, r, resp.StatusCode, data)
	}
	return data, nil
}

// statusError maps a non-2xx response. A 401/403 on an authenticated call
// tears down the session that sent it before the error is returned.
func (c *Client) statusError(ctx context.Context, r request, status int, body []byte) error {
	apiErr := &Error{Op: r.op, Status: status, Message: errorMessage(body)}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("%s failed with status %d", r.op, status)
	}
	if r.authed && (status == http.StatusUnauthorized || status == http.StatusForbidden) && c.auth != nil {
		c.logger.Info("backend rejected session", zap.String("op", r.op), zap.Int("status", status))
		c.auth.Expire(ctx, r.token)
	}
	return apiErr
}

func errorMessage(body []byte) string {
	var eb domain.ErrorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if eb.Message != "" {
		return eb.Message
	}
	return eb.Error
}

func escape(s string) string {
	return url.PathEscape(s)
}
