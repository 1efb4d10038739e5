// Package exa wraps the Exa search API for web search and company research.
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.exa.ai"
	defaultTimeout = 30 * time.Second

	defaultNumResults = 5
	maxNumResults     = 10
	maxTextChars      = 4000
)

// defaultSubpageTargets are the company subpages worth pulling for research.
var defaultSubpageTargets = []string{"about", "products", "pricing", "news"}

// SearchRequest describes one web search.
type SearchRequest struct {
	Query          string
	IncludeDomains []string
	ExcludeDomains []string
	Recency        string // "", "day", "week", "month" or "year"
	NumResults     int
}

// CompanyRequest describes one company research lookup.
type CompanyRequest struct {
	Company    string // company name or domain
	NumResults int
}

// Result is one search hit with its retrieved text.
type Result struct {
	Title         string
	URL           string
	PublishedDate string
	Text          string
	Subpages      []Subpage
}

// Subpage is a crawled subpage attached to a company result.
type Subpage struct {
	Title string
	URL   string
	Text  string
}

// APIError is a non-2xx response from the Exa API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exa API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the upstream status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Client is an HTTP client for the Exa search API.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	logger     *slog.Logger
	now        func() time.Time // for testing recency cutoffs
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL overrides the default Exa base URL.
func WithBaseURL(url string) Option {
	return func(cl *Client) {
		cl.baseURL = url
	}
}

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// WithNowFunc overrides the clock used for recency cutoffs (for testing).
func WithNowFunc(fn func() time.Time) Option {
	return func(cl *Client) {
		cl.now = fn
	}
}

// NewClient creates an Exa client with the given API key and options.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wire types

type searchRequest struct {
	Query              string        `json:"query"`
	Category           string        `json:"category,omitempty"`
	NumResults         int           `json:"numResults"`
	IncludeDomains     []string      `json:"includeDomains,omitempty"`
	ExcludeDomains     []string      `json:"excludeDomains,omitempty"`
	StartPublishedDate string        `json:"startPublishedDate,omitempty"`
	Contents           *contentsSpec `json:"contents,omitempty"`
}

type contentsSpec struct {
	Text          *textSpec `json:"text,omitempty"`
	Subpages      int       `json:"subpages,omitempty"`
	SubpageTarget []string  `json:"subpageTarget,omitempty"`
}

type textSpec struct {
	MaxCharacters int `json:"maxCharacters,omitempty"`
}

type searchResponse struct {
	Results []wireResult `json:"results"`
}

type wireResult struct {
	Title         string       `json:"title"`
	URL           string       `json:"url"`
	PublishedDate string       `json:"publishedDate"`
	Text          string       `json:"text"`
	Subpages      []wireResult `json:"subpages"`
}

// Search runs a web search with optional domain filters and a recency cutoff.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Result, error) {
	wire := searchRequest{
		Query:          req.Query,
		NumResults:     clampResults(req.NumResults),
		IncludeDomains: req.IncludeDomains,
		ExcludeDomains: req.ExcludeDomains,
		Contents:       &contentsSpec{Text: &textSpec{MaxCharacters: maxTextChars}},
	}
	if cutoff, ok := lookback(req.Recency, c.now()); ok {
		wire.StartPublishedDate = cutoff.UTC().Format(time.RFC3339)
	}
	return c.search(ctx, wire)
}

// ResearchCompany searches the company category and pulls key subpages.
func (c *Client) ResearchCompany(ctx context.Context, req CompanyRequest) ([]Result, error) {
	wire := searchRequest{
		Query:      req.Company,
		Category:   "company",
		NumResults: clampResults(req.NumResults),
		Contents: &contentsSpec{
			Text:          &textSpec{MaxCharacters: maxTextChars},
			Subpages:      2,
			SubpageTarget: defaultSubpageTargets,
		},
	}
	return c.search(ctx, wire)
}

func (c *Client) search(ctx context.Context, wire searchRequest) ([]Result, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("exa request: %w", err)
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

	results := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out := Result{
			Title:         r.Title,
			URL:           r.URL,
			PublishedDate: r.PublishedDate,
			Text:          r.Text,
		}
		for _, sp := range r.Subpages {
			out.Subpages = append(out.Subpages, Subpage{Title: sp.Title, URL: sp.URL, Text: sp.Text})
		}
		results = append(results, out)
	}
	return results, nil
}

// lookback maps a recency value to a published-after cutoff.
// Unknown or empty values mean no cutoff.
func lookback(recency string, now time.Time) (time.Time, bool) {
	switch recency {
	case "day":
		return now.AddDate(0, 0, -1), true
	case "week":
		return now.AddDate(0, 0, -7), true
	case "month":
		return now.AddDate(0, -1, 0), true
	case "year":
		return now.AddDate(-1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

func clampResults(n int) int {
	if n <= 0 {
		return defaultNumResults
	}
	if n > maxNumResults {
		return maxNumResults
	}
	return n
}

// errorMessage extracts the error string from an Exa error body, falling
// back to the raw body.
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
