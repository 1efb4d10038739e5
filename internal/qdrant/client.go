// Package qdrant is a minimal HTTP client for the Qdrant vector database,
// covering the point-search call used by knowledge-base retrieval.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:6333"
	defaultTimeout = 15 * time.Second
)

// ScoredPoint is one search hit with its similarity score and payload.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// APIError is a non-2xx response from the Qdrant API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("qdrant API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the upstream status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Client is an HTTP client for a Qdrant instance.
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

// WithAPIKey sets the api-key header for Qdrant Cloud instances.
func WithAPIKey(key string) Option {
	return func(cl *Client) {
		cl.apiKey = key
	}
}

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// NewClient creates a Qdrant client for the given base URL.
// An empty baseURL falls back to a local instance.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wire types

type searchRequest struct {
	Vector         []float32 `json:"vector"`
	Limit          int       `json:"limit"`
	ScoreThreshold float32   `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
}

type searchResponse struct {
	Result []wirePoint `json:"result"`
	Status any         `json:"status"`
}

type wirePoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float32         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// SearchPoints returns the points nearest to vector in the named collection.
// Points scoring below scoreThreshold are filtered server-side; a zero
// threshold disables filtering.
func (c *Client) SearchPoints(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]ScoredPoint, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("search vector is empty")
	}
	if limit <= 0 {
		limit = 5
	}

	body, err := json.Marshal(searchRequest{
		Vector:         vector,
		Limit:          limit,
		ScoreThreshold: scoreThreshold,
		WithPayload:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, collection)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	var parsed searchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	points := make([]ScoredPoint, 0, len(parsed.Result))
	for _, p := range parsed.Result {
		points = append(points, ScoredPoint{
			ID:      pointID(p.ID),
			Score:   p.Score,
			Payload: p.Payload,
		})
	}
	return points, nil
}

// Collection binds a collection name and search defaults to the client, so
// callers hold one handle instead of re-passing configuration per query.
type Collection struct {
	client         *Client
	name           string
	scoreThreshold float32
}

// CollectionOption configures a Collection handle.
type CollectionOption func(*Collection)

// WithScoreThreshold sets the minimum similarity score for hits.
func WithScoreThreshold(threshold float32) CollectionOption {
	return func(col *Collection) {
		col.scoreThreshold = threshold
	}
}

// Collection returns a handle bound to the named collection.
func (c *Client) Collection(name string, opts ...CollectionOption) *Collection {
	col := &Collection{client: c, name: name}
	for _, opt := range opts {
		opt(col)
	}
	return col
}

// Query searches the bound collection with the handle's defaults.
func (col *Collection) Query(ctx context.Context, vector []float32, limit int) ([]ScoredPoint, error) {
	return col.client.SearchPoints(ctx, col.name, vector, limit, col.scoreThreshold)
}

// pointID normalizes Qdrant point IDs, which may be integers or UUID strings.
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func errorMessage(body []byte) string {
	var parsed struct {
		Status struct {
			Error string `json:"error"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Status.Error != "" {
		return parsed.Status.Error
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
