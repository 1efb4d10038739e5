package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/attachehq/attache/internal/agent"
)

const (
	defaultBaseURL        = "https://openrouter.ai/api/v1"
	defaultTimeout        = 120 * time.Second
	defaultEmbeddingModel = "openai/text-embedding-3-small"
)

// Client is an HTTP client for an OpenAI-compatible chat completions API.
// It handles retries with exponential backoff + jitter, and per-model
// circuit breakers via sony/gobreaker. It satisfies agent.ModelProvider.
type Client struct {
	httpClient     *http.Client
	apiKey         string
	baseURL        string
	embeddingModel string
	logger         *slog.Logger
	sleepFn        func(context.Context, time.Duration) // for testing

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*agent.ChatResponse]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(cl *Client) {
		cl.baseURL = url
	}
}

// WithEmbeddingModel sets the model used by Embed and Embeddings.
func WithEmbeddingModel(model string) Option {
	return func(cl *Client) {
		if model != "" {
			cl.embeddingModel = model
		}
	}
}

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// WithSleepFunc overrides the retry sleep function (for testing).
func WithSleepFunc(fn func(context.Context, time.Duration)) Option {
	return func(cl *Client) {
		cl.sleepFn = fn
	}
}

// defaultSleep is the production sleep function — respects context cancellation.
func defaultSleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// NewClient creates a client with the given API key and options.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: defaultTimeout},
		apiKey:         apiKey,
		baseURL:        defaultBaseURL,
		embeddingModel: defaultEmbeddingModel,
		logger:         slog.Default(),
		sleepFn:        defaultSleep,
		breakers:       make(map[string]*gobreaker.CircuitBreaker[*agent.ChatResponse]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatCompletion makes a single chat completion request.
// It handles retries and circuit breaking transparently.
func (c *Client) ChatCompletion(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error) {
	cb := c.getOrCreateBreaker(req.Model)

	resp, err := cb.Execute(func() (*agent.ChatResponse, error) {
		return c.chatCompletionWithRetry(ctx, req)
	})
	if err != nil {
		// Wrap gobreaker sentinel errors for clarity.
		if err == gobreaker.ErrOpenState {
			return nil, &ClassifiedError{
				Type:    ErrProviderOverloaded,
				Message: fmt.Sprintf("circuit breaker open for model %s", req.Model),
			}
		}
		if err == gobreaker.ErrTooManyRequests {
			return nil, &ClassifiedError{
				Type:    ErrRateLimit,
				Message: fmt.Sprintf("circuit breaker half-open, too many probes for model %s", req.Model),
			}
		}
		return nil, err
	}
	return resp, nil
}

// chatCompletionWithRetry executes the HTTP request with retry logic.
func (c *Client) chatCompletionWithRetry(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.doChatRequest(ctx, req)
		if err == nil {
			return resp, nil
		}

		classified, ok := err.(*ClassifiedError)
		if !ok {
			// Non-classified error (e.g., context canceled, network failure).
			return nil, err
		}

		if !classified.Retryable() || attempt >= classified.MaxRetries() {
			return nil, classified
		}

		delay := c.retryDelay(classified, attempt)

		c.logger.Warn("retrying chat completion request",
			"model", req.Model,
			"error_type", classified.Type.String(),
			"attempt", attempt+1,
			"delay", delay,
		)

		c.sleepFn(ctx, delay)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

// doChatRequest performs a single HTTP request and parses the response.
func (c *Client) doChatRequest(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error) {
	var wireResp chatResponse
	if err := c.postJSON(ctx, "/chat/completions", toWireRequest(req), &wireResp); err != nil {
		return nil, err
	}

	if len(wireResp.Choices) == 0 {
		return nil, &ClassifiedError{
			Type:    ErrMalformedResponse,
			Message: "response contains no choices",
		}
	}

	return &agent.ChatResponse{
		Message: fromWireMessage(wireResp.Choices[0].Message),
		Usage:   wireResp.Usage,
	}, nil
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Embeddings returns one vector per input text, in input order.
// Retries follow the same classification rules as chat completions.
func (c *Client) Embeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no input texts")
	}

	for attempt := 0; ; attempt++ {
		vecs, err := c.doEmbeddingsRequest(ctx, texts)
		if err == nil {
			return vecs, nil
		}

		classified, ok := err.(*ClassifiedError)
		if !ok {
			return nil, err
		}

		if !classified.Retryable() || attempt >= classified.MaxRetries() {
			return nil, classified
		}

		delay := c.retryDelay(classified, attempt)

		c.logger.Warn("retrying embeddings request",
			"model", c.embeddingModel,
			"error_type", classified.Type.String(),
			"attempt", attempt+1,
			"delay", delay,
		)

		c.sleepFn(ctx, delay)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

func (c *Client) doEmbeddingsRequest(ctx context.Context, texts []string) ([][]float32, error) {
	var wireResp embeddingsResponse
	req := embeddingsRequest{Model: c.embeddingModel, Input: texts}
	if err := c.postJSON(ctx, "/embeddings", req, &wireResp); err != nil {
		return nil, err
	}

	if len(wireResp.Data) != len(texts) {
		return nil, &ClassifiedError{
			Type:    ErrMalformedResponse,
			Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(wireResp.Data)),
		}
	}

	vecs := make([][]float32, len(texts))
	for _, d := range wireResp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, &ClassifiedError{
				Type:    ErrMalformedResponse,
				Message: fmt.Sprintf("embedding index %d out of range", d.Index),
			}
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// postJSON sends one JSON POST and decodes the 200 response into out.
// Non-200 responses and transport failures come back classified.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Classify network/timeout errors.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ClassifiedError{
			Type:    ErrTimeout,
			Message: err.Error(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyHTTPError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ClassifiedError{
			Type:    ErrMalformedResponse,
			Message: fmt.Sprintf("read response body: %v", err),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &ClassifiedError{
			Type:    ErrMalformedResponse,
			Message: fmt.Sprintf("parse response JSON: %v", err),
		}
	}
	return nil
}

// retryDelay calculates the delay before the next retry attempt.
// Uses exponential backoff + jitter. For rate limits, respects Retry-After.
func (c *Client) retryDelay(err *ClassifiedError, attempt int) time.Duration {
	if err.Type == ErrRateLimit && err.RetryAfter > 0 {
		return jitter(err.RetryAfter)
	}

	// Exponential backoff: 1s, 2s, 4s, 8s, 16s
	base := time.Second * time.Duration(1<<uint(attempt))
	if base > 16*time.Second {
		base = 16 * time.Second
	}
	return jitter(base)
}

// jitter applies random jitter: delay * (0.5 + rand.Float64()).
// This prevents thundering herd when concurrent runs retry simultaneously.
func jitter(d time.Duration) time.Duration {
	factor := 0.5 + rand.Float64() // [0.5, 1.5)
	return time.Duration(float64(d) * factor)
}

// getOrCreateBreaker returns the circuit breaker for the given model,
// creating one if it doesn't exist. Per-model breakers isolate failures.
func (c *Client) getOrCreateBreaker(model string) *gobreaker.CircuitBreaker[*agent.ChatResponse] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[model]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[*agent.ChatResponse](gobreaker.Settings{
		Name:        "llm-" + model,
		MaxRequests: 1,                // Allow 1 probe request in half-open state
		Interval:    0,                // Don't clear counts in closed state
		Timeout:     30 * time.Second, // Time to wait before probing after open
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Don't count client errors (auth, content filter) as circuit breaker failures.
			classified, ok := err.(*ClassifiedError)
			if !ok {
				return false
			}
			switch classified.Type {
			case ErrAuth, ErrContentFiltered, ErrContextTooLong:
				return true // These are not provider failures.
			default:
				return false
			}
		},
	})

	c.breakers[model] = cb
	return cb
}
