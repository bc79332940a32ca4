// Package apiclient provides a REST client for the DittoSwap control API.
package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marmos91/dittoswap/pkg/cache"
)

// DefaultTimeout bounds every request unless WithTimeout says otherwise.
const DefaultTimeout = 30 * time.Second

const (
	contentTypeJSON = "application/json"
	contentTypePage = "application/octet-stream"
)

// Client talks to one dittoswap daemon.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the daemon at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of the client that sends token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// SetToken sets the bearer token.
func (c *Client) SetToken(token string) { c.token = token }

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// request is one API call. JSON bodies go through in and out; pages travel
// as raw octet streams in page.
type request struct {
	method string
	path   string
	in     any
	out    any
	page   []byte
}

func (c *Client) call(r request) ([]byte, error) {
	contentType := contentTypeJSON
	var body io.Reader
	switch {
	case r.page != nil:
		contentType = contentTypePage
		body = bytes.NewReader(r.page)
	case r.in != nil:
		data, err := json.Marshal(r.in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(r.method, c.baseURL+r.path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentTypeJSON+", "+contentTypePage)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseError(resp.StatusCode, raw)
	}

	if r.out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, r.out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return raw, nil
}

// fetch GETs path and decodes the JSON answer into a fresh T.
func fetch[T any](c *Client, path string) (*T, error) {
	var out T
	if _, err := c.call(request{method: http.MethodGet, path: path, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func regionPath(region cache.RegionID) string {
	return fmt.Sprintf("/api/v1/regions/%d", region)
}

func pagePath(region cache.RegionID, offset uint64) string {
	return fmt.Sprintf("/api/v1/regions/%d/pages/%d", region, offset)
}
