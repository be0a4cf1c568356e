package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/openshelf/bookdex/internal/domain"
	"github.com/openshelf/bookdex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
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

func serveEmbeddings(t *testing.T, resp embeddingResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func testEmbedder(baseURL string) *Embedder {
	return NewEmbedder(&Config{
		APIKey:   "test-key",
		BaseURL:  baseURL,
		Model:    "test-model",
		Provider: "test",
		Logger:   zap.NewNop(),
	})
}

func TestEmbedder_Embed(t *testing.T) {
	expectedVec := []float32{0.1, 0.2, 0.3, 0.4}

	resp := embeddingResponse{Object: "list", Model: "test-model"}
	resp.Data = []embeddingData{{Object: "embedding", Embedding: expectedVec, Index: 0}}
	resp.Usage.PromptTokens = 10
	resp.Usage.TotalTokens = 10

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	result, err := testEmbedder(server.URL).Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(result.Embedding) != len(expectedVec) {
		t.Fatalf("expected %d dimensions, got %d", len(expectedVec), len(result.Embedding))
	}
	for i, v := range result.Embedding {
		if v != expectedVec[i] {
			t.Errorf("vec[%d] = %f, expected %f", i, v, expectedVec[i])
		}
	}
	if result.PromptTokens != 10 || result.TotalTokens != 10 {
		t.Errorf("usage = (%d, %d), expected (10, 10)", result.PromptTokens, result.TotalTokens)
	}
}

func TestEmbedder_BatchEmbed_RestoresOrder(t *testing.T) {
	resp := embeddingResponse{Object: "list", Model: "test-model"}
	// Out of order on purpose: order must be restored by Index.
	resp.Data = []embeddingData{
		{Object: "embedding", Embedding: []float32{0.3, 0.4}, Index: 1},
		{Object: "embedding", Embedding: []float32{0.1, 0.2}, Index: 0},
	}
	resp.Usage.PromptTokens = 20
	resp.Usage.TotalTokens = 20

	server := serveEmbeddings(t, resp)
	defer server.Close()

	result, err := testEmbedder(server.URL).BatchEmbed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("BatchEmbed failed: %v", err)
	}

	if len(result.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(result.Embeddings))
	}
	if result.Embeddings[0][0] != 0.1 {
		t.Errorf("expected first vec[0]=0.1, got %f", result.Embeddings[0][0])
	}
	if result.Embeddings[1][0] != 0.3 {
		t.Errorf("expected second vec[0]=0.3, got %f", result.Embeddings[1][0])
	}
	if result.TotalTokens != 20 {
		t.Errorf("expected TotalTokens=20, got %d", result.TotalTokens)
	}
}

func TestEmbedder_BatchEmbed_Empty(t *testing.T) {
	result, err := testEmbedder("http://unused").BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Embeddings != nil {
		t.Errorf("expected nil embeddings for empty input, got %v", result.Embeddings)
	}
}

func TestEmbedder_BatchEmbed_CountMismatch(t *testing.T) {
	resp := embeddingResponse{Object: "list", Model: "test-model"}
	resp.Data = []embeddingData{{Object: "embedding", Embedding: []float32{0.1}, Index: 0}}
	resp.Usage.PromptTokens = 5
	resp.Usage.TotalTokens = 5

	server := serveEmbeddings(t, resp)
	defer server.Close()

	_, err := testEmbedder(server.URL).BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestEmbedder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "rate limit exceeded",
				"type":    "rate_limit_error",
			},
		})
	}))
	defer server.Close()

	_, err := testEmbedder(server.URL).Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError for 429 response, got %v", err)
	}
}
