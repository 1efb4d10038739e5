package exa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key",
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithNowFunc(func() time.Time {
			return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
		}),
	)
}

func TestSearch_RequestShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("expected /search, got %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("expected x-api-key test-key, got %s", got)
		}

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Query != "slack ai assistants" {
			t.Errorf("unexpected query: %q", req.Query)
		}
		if req.NumResults != 3 {
			t.Errorf("expected 3 results requested, got %d", req.NumResults)
		}
		if len(req.IncludeDomains) != 1 || req.IncludeDomains[0] != "techcrunch.com" {
			t.Errorf("include domains not forwarded: %v", req.IncludeDomains)
		}
		if req.Contents == nil || req.Contents.Text == nil || req.Contents.Text.MaxCharacters != maxTextChars {
			t.Error("text contents spec missing")
		}

		w.Write([]byte(`{"results":[{"title":"AI bots","url":"https://techcrunch.com/x","publishedDate":"2026-03-01","text":"body text"}]}`))
	})

	results, err := client.Search(context.Background(), SearchRequest{
		Query:          "slack ai assistants",
		IncludeDomains: []string{"techcrunch.com"},
		NumResults:     3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Title != "AI bots" || results[0].Text != "body text" {
		t.Errorf("result not mapped: %+v", results[0])
	}
}

func TestSearch_RecencyCutoff(t *testing.T) {
	tests := []struct {
		recency string
		want    string
	}{
		{"day", "2026-03-14T12:00:00Z"},
		{"week", "2026-03-08T12:00:00Z"},
		{"month", "2026-02-15T12:00:00Z"},
		{"year", "2025-03-15T12:00:00Z"},
		{"", ""},
		{"fortnight", ""}, // unknown values mean no cutoff
	}

	for _, tt := range tests {
		t.Run("recency_"+tt.recency, func(t *testing.T) {
			var got string
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				var req searchRequest
				json.NewDecoder(r.Body).Decode(&req)
				got = req.StartPublishedDate
				w.Write([]byte(`{"results":[]}`))
			})

			_, err := client.Search(context.Background(), SearchRequest{Query: "q", Recency: tt.recency})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("recency %q: expected cutoff %q, got %q", tt.recency, tt.want, got)
			}
		})
	}
}

func TestSearch_DefaultAndCappedResults(t *testing.T) {
	var got int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		json.NewDecoder(r.Body).Decode(&req)
		got = req.NumResults
		w.Write([]byte(`{"results":[]}`))
	})

	client.Search(context.Background(), SearchRequest{Query: "q"})
	if got != defaultNumResults {
		t.Errorf("expected default %d, got %d", defaultNumResults, got)
	}

	client.Search(context.Background(), SearchRequest{Query: "q", NumResults: 50})
	if got != maxNumResults {
		t.Errorf("expected cap %d, got %d", maxNumResults, got)
	}
}

func TestResearchCompany_RequestShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Category != "company" {
			t.Errorf("expected category company, got %q", req.Category)
		}
		if req.Contents == nil || req.Contents.Subpages != 2 {
			t.Error("subpages spec missing")
		}
		if len(req.Contents.SubpageTarget) == 0 {
			t.Error("subpage targets missing")
		}

		w.Write([]byte(`{"results":[{"title":"Acme Corp","url":"https://acme.io","text":"main page","subpages":[{"title":"About Acme","url":"https://acme.io/about","text":"founded 2019"}]}]}`))
	})

	results, err := client.ResearchCompany(context.Background(), CompanyRequest{Company: "acme.io"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if len(results[0].Subpages) != 1 || results[0].Subpages[0].Title != "About Acme" {
		t.Errorf("subpages not mapped: %+v", results[0].Subpages)
	}
}

func TestSearch_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`))
	})

	_, err := client.Search(context.Background(), SearchRequest{Query: "q"})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "invalid api key" {
		t.Errorf("unexpected message: %q", apiErr.Message)
	}
}
