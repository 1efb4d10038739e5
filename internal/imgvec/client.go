// Package imgvec wraps the image vectorization service, which turns an
// image into an embedding vector for visual similarity search.
package imgvec

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 60 * time.Second

	// maxImageBytes bounds uploads before base64 inflation.
	maxImageBytes = 10 << 20
)

// Vector is the embedding produced for one image.
type Vector struct {
	Values []float32
	Model  string
}

// Dimensions returns the vector length.
func (v *Vector) Dimensions() int { return len(v.Values) }

// APIError is a non-2xx response from the vectorization API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("imgvec API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the upstream status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Client is an HTTP client for the image vectorization API.
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

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// NewClient creates a vectorization client for the given base URL and API key.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wire types

type vectorizeRequest struct {
	URL      string `json:"url,omitempty"`
	Data     string `json:"data,omitempty"` // base64
	MimeType string `json:"mimeType,omitempty"`
}

type vectorizeResponse struct {
	Vector []float32 `json:"vector"`
	Model  string    `json:"model"`
}

// VectorizeURL vectorizes an image the service fetches itself.
func (c *Client) VectorizeURL(ctx context.Context, imageURL string) (*Vector, error) {
	if imageURL == "" {
		return nil, fmt.Errorf("image url is required")
	}
	return c.vectorize(ctx, vectorizeRequest{URL: imageURL})
}

// VectorizeBytes vectorizes raw image bytes, uploaded base64-encoded.
func (c *Client) VectorizeBytes(ctx context.Context, data []byte, mimeType string) (*Vector, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image data is empty")
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image is %d bytes, the limit is %d", len(data), maxImageBytes)
	}
	return c.vectorize(ctx, vectorizeRequest{
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	})
}

func (c *Client) vectorize(ctx context.Context, req vectorizeRequest) (*Vector, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/vectorize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("imgvec request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	var parsed vectorizeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Vector) == 0 {
		return nil, fmt.Errorf("response contains no vector")
	}

	return &Vector{Values: parsed.Vector, Model: parsed.Model}, nil
}

func errorMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
