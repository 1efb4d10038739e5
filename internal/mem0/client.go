// Package mem0 wraps the Mem0 managed memory API for per-user long-term
// memory across conversations.
package mem0

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.mem0.ai"
	defaultTimeout = 30 * time.Second

	defaultSearchLimit = 5
)

// Memory is one stored memory for a user.
type Memory struct {
	ID        string  `json:"id"`
	Text      string  `json:"memory"`
	CreatedAt string  `json:"created_at"`
	Score     float32 `json:"score,omitempty"` // search results only
}

// APIError is a non-2xx response from the Mem0 API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mem0 API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the upstream status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Client is an HTTP client for the Mem0 API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL overrides the default Mem0 base URL.
func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = strings.TrimRight(u, "/")
	}
}

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// NewClient creates a Mem0 client with the given API key and options.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wire types

type addRequest struct {
	Messages []addMessage `json:"messages"`
	UserID   string       `json:"user_id"`
}

type addMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

type resultsEnvelope struct {
	Results []Memory `json:"results"`
}

// Add stores a new memory for the user.
func (c *Client) Add(ctx context.Context, userID, text string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if text == "" {
		return fmt.Errorf("memory text is required")
	}
	req := addRequest{
		Messages: []addMessage{{Role: "user", Content: text}},
		UserID:   userID,
	}
	return c.do(ctx, http.MethodPost, "/v1/memories/", req, nil)
}

// Search returns the user's memories most relevant to the query.
func (c *Client) Search(ctx context.Context, userID, query string, limit int) ([]Memory, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	var env resultsEnvelope
	req := searchRequest{Query: query, UserID: userID, Limit: limit}
	if err := c.do(ctx, http.MethodPost, "/v1/memories/search/", req, &env); err != nil {
		return nil, err
	}
	return env.Results, nil
}

// List returns all memories stored for the user.
func (c *Client) List(ctx context.Context, userID string) ([]Memory, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	var env resultsEnvelope
	path := "/v1/memories/?" + url.Values{"user_id": {userID}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Results, nil
}

// Delete removes one memory by id.
func (c *Client) Delete(ctx context.Context, memoryID string) error {
	if memoryID == "" {
		return fmt.Errorf("memory id is required")
	}
	return c.do(ctx, http.MethodDelete, "/v1/memories/"+url.PathEscape(memoryID)+"/", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+c.apiKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mem0 request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func errorMessage(body []byte) string {
	var parsed struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Detail != "":
			return parsed.Detail
		case parsed.Error != "":
			return parsed.Error
		case parsed.Message != "":
			return parsed.Message
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
