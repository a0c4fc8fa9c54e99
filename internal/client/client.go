// ABOUTME: HTTP client for the coven-threads API
// ABOUTME: Typed wrappers over the /threads endpoints with bearer or API key auth

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/coven-threads/internal/api"
	"github.com/2389/coven-threads/internal/auth"
	"github.com/2389/coven-threads/internal/dedupe"
	"github.com/2389/coven-threads/internal/threads"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("thread not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithAPIKey sends an API key on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client talks to a coven-threads server.
type Client struct {
	baseURL string
	token   string
	apiKey  string
	http    *http.Client
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:8080".
// A bare host:port is treated as http.
func New(baseURL string, opts ...Option) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CallOption adjusts a single request.
type CallOption func(*http.Request)

// WithIdempotencyKey marks a create or append so the server refuses replays.
func WithIdempotencyKey(key string) CallOption {
	return func(r *http.Request) { r.Header.Set(dedupe.HeaderKey, key) }
}

// List returns thread summaries, most recently updated first.
func (c *Client) List(ctx context.Context) ([]threads.ThreadSummary, error) {
	var out []threads.ThreadSummary
	if err := c.doJSON(ctx, http.MethodGet, "/threads", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a single thread with its messages.
func (c *Client) Get(ctx context.Context, id string) (threads.Thread, error) {
	var out threads.Thread
	err := c.doJSON(ctx, http.MethodGet, threadPath(id), nil, &out)
	return out, err
}

// Create starts a thread. Empty title and initialMessage select server defaults.
func (c *Client) Create(ctx context.Context, title, initialMessage string, opts ...CallOption) (threads.Thread, error) {
	req := api.CreateThreadRequest{}
	if title != "" {
		req.Title = &title
	}
	if initialMessage != "" {
		req.InitialMessage = &initialMessage
	}
	var out threads.Thread
	err := c.doJSON(ctx, http.MethodPost, "/threads", req, &out, opts...)
	return out, err
}

// UpdateTitle renames a thread.
func (c *Client) UpdateTitle(ctx context.Context, id, title string) (threads.Thread, error) {
	var out threads.Thread
	err := c.doJSON(ctx, http.MethodPatch, threadPath(id), api.UpdateThreadRequest{Title: &title}, &out)
	return out, err
}

// AppendMessage adds a message to the end of a thread.
func (c *Client) AppendMessage(ctx context.Context, id, role, content string, opts ...CallOption) (threads.Thread, error) {
	var out threads.Thread
	body := api.AppendMessageRequest{Role: &role, Content: content}
	err := c.doJSON(ctx, http.MethodPost, threadPath(id)+"/messages", body, &out, opts...)
	return out, err
}

// Delete removes a thread. Returns ErrNotFound if it did not exist.
func (c *Client) Delete(ctx context.Context, id string) error {
	var out api.DeleteThreadResponse
	return c.doJSON(ctx, http.MethodDelete, threadPath(id), nil, &out)
}

// Export renders a thread as "markdown" or "html" and returns the document.
func (c *Client) Export(ctx context.Context, id, format string) ([]byte, error) {
	path := threadPath(id) + "/export"
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	return data, nil
}

// Health reports whether the server answers its liveness probe.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func threadPath(id string) string {
	return "/threads/" + url.PathEscape(id)
}

// doJSON sends body as JSON and decodes the response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, opts ...CallOption) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, path, reader, opts...)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// do sends the request and converts non-2xx responses into *APIError.
// The caller must close the body of a successful response.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, opts ...CallOption) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.apiKey != "" {
		req.Header.Set(auth.APIKeyHeader, c.apiKey)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return nil, apiErr
	}
	return resp, nil
}
