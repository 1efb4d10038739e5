package imgvec

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "iv-key", WithHTTPClient(srv.Client()))
}

func TestVectorizeURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/vectorize" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req vectorizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.URL != "https://example.com/cat.png" {
			t.Errorf("unexpected url: %q", req.URL)
		}
		if req.Data != "" {
			t.Error("data must be empty for url requests")
		}
		w.Write([]byte(`{"vector":[0.1,0.2,0.3],"model":"clip-vit-b32"}`))
	})

	vec, err := client.VectorizeURL(context.Background(), "https://example.com/cat.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec.Dimensions() != 3 {
		t.Errorf("expected 3 dimensions, got %d", vec.Dimensions())
	}
	if vec.Model != "clip-vit-b32" {
		t.Errorf("unexpected model: %q", vec.Model)
	}
}

func TestVectorizeBytes_Base64Upload(t *testing.T) {
	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req vectorizeRequest
		json.NewDecoder(r.Body).Decode(&req)
		decoded, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			t.Fatalf("data not valid base64: %v", err)
		}
		if string(decoded) != string(raw) {
			t.Error("uploaded bytes do not round-trip")
		}
		if req.MimeType != "image/png" {
			t.Errorf("unexpected mime type: %q", req.MimeType)
		}
		w.Write([]byte(`{"vector":[1],"model":"clip-vit-b32"}`))
	})

	if _, err := client.VectorizeBytes(context.Background(), raw, "image/png"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVectorizeBytes_SizeLimit(t *testing.T) {
	client := NewClient("http://unused", "k")
	big := make([]byte, maxImageBytes+1)
	if _, err := client.VectorizeBytes(context.Background(), big, "image/png"); err == nil {
		t.Fatal("expected error for oversized image")
	}
}

func TestVectorize_EmptyInputs(t *testing.T) {
	client := NewClient("http://unused", "k")
	if _, err := client.VectorizeURL(context.Background(), ""); err == nil {
		t.Error("expected error for empty url")
	}
	if _, err := client.VectorizeBytes(context.Background(), nil, "image/png"); err == nil {
		t.Error("expected error for empty data")
	}
}

func TestVectorize_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		w.Write([]byte(`{"error":"unsupported image format"}`))
	})

	_, err := client.VectorizeURL(context.Background(), "https://example.com/doc.pdf")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", apiErr.StatusCode)
	}
}

func TestVectorize_NoVectorInResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"clip-vit-b32"}`))
	})

	if _, err := client.VectorizeURL(context.Background(), "https://example.com/cat.png"); err == nil {
		t.Fatal("expected error for missing vector")
	}
}
