// Package client is the HTTP layer between the SDK and the booking backend.
//
// Every request carries the access token found in the token store at send
// time. A 401 triggers at most one refresh through the installed Refresher
// and at most one re-send of the original request.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/occasio/occasio/storage"
)

// DefaultBaseURL is the development backend address.
const DefaultBaseURL = "http://127.0.0.1:8000/api/"

// Refresher mints a new access token. An empty token with a nil error means
// there was nothing to refresh with.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefreshFunc adapts a function to the Refresher interface.
type RefreshFunc func(ctx context.Context) (string, error)

func (f RefreshFunc) Refresh(ctx context.Context) (string, error) { return f(ctx) }

// Request describes one API call. Path is relative to the client's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// SkipAuth omits the Authorization header.
	SkipAuth bool
	// SkipRefresh disables the refresh-and-retry path for this request. The
	// refresh call itself sets it so a 401 there cannot recurse.
	SkipRefresh bool

	retried bool
}

// Client sends JSON requests to the booking API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	store   storage.TokenStore
	logger  *slog.Logger
	metrics *Metrics

	mu        sync.RWMutex
	refresher Refresher
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets an overall per-request timeout. Zero keeps the transport
// defaults.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records request and refresh counters.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithRefresher installs the Refresher consulted on 401 responses.
func WithRefresher(r Refresher) Option {
	return func(c *Client) {
		c.refresher = r
	}
}

// New creates a Client for baseURL that reads tokens from store.
func New(baseURL string, store storage.TokenStore, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if store == nil {
		return nil, errors.New("token store is required")
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{},
		store:   store,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	c.logger = c.logger.With("component", "client")
	return c, nil
}

// SetRefresher installs r as the Refresher consulted on 401 responses. It
// may be called after New to break the construction cycle with the session
// layer.
func (c *Client) SetRefresher(r Refresher) {
	c.mu.Lock()
	c.refresher = r
	c.mu.Unlock()
}

// BaseURL returns the resolved API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Get issues a GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path}, out)
}

// Post issues a POST with body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Patch issues a PATCH with body encoded as JSON.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path}, nil)
}

// Do sends req and decodes a 2xx JSON response into out (which may be nil).
// Non-2xx responses are returned as *APIError.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	r := *req
	payload, err := encodeBody(r.Body)
	if err != nil {
		return fmt.Errorf("encoding %s %s body: %w", r.Method, r.Path, err)
	}

	resp, err := c.send(ctx, &r, payload, "")
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !r.SkipRefresh && !r.retried {
		r.retried = true
		original := newAPIError(r.Method, r.Path, resp)

		token := c.refresh(ctx)
		if token == "" {
			return original
		}

		c.logger.Debug("retrying after token refresh",
			slog.String("method", r.Method),
			slog.String("path", r.Path))
		c.metrics.observeRetry()
		resp, err = c.send(ctx, &r, payload, token)
		if err != nil {
			return err
		}
	}

	return decodeResponse(&r, resp, out)
}

// refresh runs the installed Refresher once and returns the new access
// token, or "" when none was obtained.
func (c *Client) refresh(ctx context.Context) string {
	c.mu.RLock()
	r := c.refresher
	c.mu.RUnlock()
	if r == nil {
		return ""
	}
	token, err := r.Refresh(ctx)
	switch {
	case err != nil:
		c.metrics.observeRefresh(refreshFailure)
		c.logger.Debug("token refresh after 401 failed", slog.String("error", err.Error()))
		return ""
	case token == "":
		c.metrics.observeRefresh(refreshEmpty)
		return ""
	default:
		c.metrics.observeRefresh(refreshSuccess)
		return token
	}
}

func (c *Client) send(ctx context.Context, r *Request, payload []byte, token string) (*http.Response, error) {
	u := c.resolve(r.Path, r.Query)

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, r.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", r.Method, r.Path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if !r.SkipAuth {
		if token == "" {
			token, err = storage.Lookup(c.store, storage.KeyAccess)
			if err != nil {
				return nil, fmt.Errorf("reading access token: %w", err)
			}
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.observeRequest(r.Method, "error")
		return nil, fmt.Errorf("%s %s: %w", r.Method, r.Path, err)
	}
	c.metrics.observeRequest(r.Method, strconv.Itoa(resp.StatusCode))
	return resp, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	ref := &url.URL{Path: strings.TrimPrefix(path, "/")}
	u := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if raw, ok := body.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(body)
}

func decodeResponse(r *Request, resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(r.Method, r.Path, resp)
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusResetContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s %s response: %w", r.Method, r.Path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", r.Method, r.Path, err)
	}
	return nil
}
