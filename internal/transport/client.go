// Package transport is the single HTTP path to the backend. Every request
// carries the stored credential, and every 401 is announced to rejection
// subscribers before the caller sees the response.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chemviz/internal/metrics"
	"chemviz/internal/session"
	"chemviz/internal/utils"
)

// Scheme is the Authorization header scheme expected by the backend.
const Scheme = "Token"

const maxErrorBody = 64 << 10

// Rejection describes a response that refused the presented credential.
type Rejection struct {
	Method string
	Path   string
	Status int
	// Token is the credential sent with the rejected request, empty when
	// the request went out anonymous.
	Token string
}

type RejectionHandler func(Rejection)

type Options struct {
	BaseURL string
	// Timeout of zero leaves requests unbounded.
	Timeout time.Duration
	// Base is the underlying transport; nil means http.DefaultTransport.
	Base    http.RoundTripper
	Metrics *metrics.Metrics
	Logger  *utils.Logger
}

type Client struct {
	base     *url.URL
	http     *http.Client
	sessions session.Store
	metrics  *metrics.Metrics
	logger   *utils.Logger

	mu       sync.RWMutex
	handlers []RejectionHandler
}

func New(sessions session.Store, opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("transport: invalid base url %q", opts.BaseURL)
	}
	next := opts.Base
	if next == nil {
		next = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NopLogger()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	c := &Client{base: base, sessions: sessions, metrics: m, logger: logger}
	c.http = &http.Client{
		Timeout:   opts.Timeout,
		Transport: &authRoundTripper{client: c, next: next},
	}
	return c, nil
}

// OnRejected registers h to run, synchronously and in registration order,
// whenever a response carries 401.
func (c *Client) OnRejected(h RejectionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// HTTPClient exposes the intercepting client for callers that need raw
// access; requests made through it get the same treatment.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) BaseURL() string {
	return c.base.String()
}

// URL resolves an API path such as "/history/" under the base URL.
func (c *Client) URL(path string) string {
	return c.base.String() + "/" + strings.TrimLeft(path, "/")
}

// Do sends a request and returns the response for any 2xx status. Other
// statuses are drained and returned as *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newStatusError(method, path, resp)
	}
	return resp, nil
}

// JSON sends in (when non-nil) as a JSON body and decodes a 2xx body into
// out (when non-nil).
func (c *Client) JSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	resp, err := c.Do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) emit(r Rejection) {
	c.mu.RLock()
	handlers := append([]RejectionHandler(nil), c.handlers...)
	c.mu.RUnlock()
	for _, h := range handlers {
		h(r)
	}
}

// relativePath strips the base path so rejections and metrics report API
// routes ("/history/") rather than full URLs.
func (c *Client) relativePath(u *url.URL) string {
	p := strings.TrimPrefix(u.Path, c.base.Path)
	if p == "" {
		return "/"
	}
	return p
}
