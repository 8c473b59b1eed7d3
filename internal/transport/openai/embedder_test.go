package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rankeval/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// embeddingResponse mirrors the OpenAI-compatible API embedding response.
type embeddingResponse struct {
	Object string          `json:"object"`
	Data   []embeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type embeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

func newTestServer(t *testing.T, resp embeddingResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestEmbedder(baseURL string) *Embedder {
	return NewEmbedder(&Config{
		APIKey:   "test-key",
		BaseURL:  baseURL,
		Model:    "test-model",
		Provider: "test",
		Logger:   zap.NewNop(),
	})
}

func TestEmbedder_Embed(t *testing.T) {
	resp := embeddingResponse{Object: "list", Model: "test-model"}
	resp.Data = []embeddingData{{Object: "embedding", Embedding: []float32{0.1, 0.2, 0.3}, Index: 0}}
	resp.Usage.PromptTokens = 10
	resp.Usage.TotalTokens = 10

	server := newTestServer(t, resp)
	defer server.Close()

	e := newTestEmbedder(server.URL)

	result, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if len(result.Embedding) != 3 {
		t.Errorf("embedding has %d dims, want 3", len(result.Embedding))
	}
	if result.TotalTokens != 10 {
		t.Errorf("TotalTokens = %d, want 10", result.TotalTokens)
	}
}

func TestEmbedder_BatchEmbed_RestoresOrder(t *testing.T) {
	resp := embeddingResponse{Object: "list", Model: "test-model"}
	// Deliberately out of order; Index must restore input order.
	resp.Data = []embeddingData{
		{Object: "embedding", Embedding: []float32{2}, Index: 1},
		{Object: "embedding", Embedding: []float32{1}, Index: 0},
	}
	resp.Usage.TotalTokens = 7

	server := newTestServer(t, resp)
	defer server.Close()

	e := newTestEmbedder(server.URL)

	result, err := e.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("BatchEmbed() error: %v", err)
	}

	if result.Embeddings[0][0] != 1 || result.Embeddings[1][0] != 2 {
		t.Errorf("embeddings out of order: %v", result.Embeddings)
	}
	if result.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, want 7", result.TotalTokens)
	}
}

func TestEmbedder_BatchEmbed_CountMismatch(t *testing.T) {
	resp := embeddingResponse{Object: "list", Model: "test-model"}
	resp.Data = []embeddingData{{Object: "embedding", Embedding: []float32{1}, Index: 0}}

	server := newTestServer(t, resp)
	defer server.Close()

	e := newTestEmbedder(server.URL)

	_, err := e.BatchEmbed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error for vector count mismatch")
	}
}

func TestEmbedder_Embed_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail": "rate limited"}`))
	}))
	defer server.Close()

	e := newTestEmbedder(server.URL)

	_, err := e.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error from API failure")
	}
}
