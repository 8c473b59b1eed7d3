package rankeval

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/kailas-cloud/rankeval/internal/domain"
)

func newMemoryClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestClient_Evaluate_SingleVector(t *testing.T) {
	c := newMemoryClient(t)

	report, err := c.Evaluate(context.Background(), Request{
		Queries: []Item{
			{ID: "q1", Vector: []float32{1, 0}},
			{ID: "q2", Vector: []float32{0, 1}},
		},
		Passages: []Item{
			{ID: "d1", Vector: []float32{1, 0}},
			{ID: "d2", Vector: []float32{0, 1}},
			{ID: "d3", Vector: []float32{0.5, 0.5}},
		},
		Qrels: Qrels{
			"q1": {"d1": 1},
			"q2": {"d2": 1},
		},
		KValues: []int{1, 3},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	if report.Mode != "single_vector" {
		t.Errorf("mode = %q, want single_vector", report.Mode)
	}
	if got := report.Metrics["ndcg_at_1"]; got != 1.0 {
		t.Errorf("ndcg_at_1 = %v, want 1", got)
	}
	if report.Top1Accuracy != 1.0 {
		t.Errorf("Top1Accuracy = %v, want 1", report.Top1Accuracy)
	}
	if report.ID == "" {
		t.Error("report ID is empty")
	}
}

func TestClient_Evaluate_MultiVector(t *testing.T) {
	c := newMemoryClient(t)

	report, err := c.Evaluate(context.Background(), Request{
		MultiVector: true,
		Queries: []Item{
			{ID: "q1", Vectors: [][]float32{{1, 0}, {0, 1}}},
		},
		Passages: []Item{
			{ID: "d1", Vectors: [][]float32{{1, 0}}},
			{ID: "d2", Vectors: [][]float32{{0, 0}}},
		},
		Qrels:   Qrels{"q1": {"d1": 1}},
		KValues: []int{1},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if report.Mode != "multi_vector" {
		t.Errorf("mode = %q, want multi_vector", report.Mode)
	}
	if got := report.Metrics["ndcg_at_1"]; got != 1.0 {
		t.Errorf("ndcg_at_1 = %v, want 1", got)
	}
}

func TestClient_Evaluate_ValidationErrors(t *testing.T) {
	c := newMemoryClient(t)

	_, err := c.Evaluate(context.Background(), Request{
		Passages: []Item{{ID: "d1", Vector: []float32{1}}},
		Qrels:    Qrels{"q1": {"d1": 1}},
	})
	if !errors.Is(err, ErrNoQueries) {
		t.Errorf("Evaluate() error = %v, want ErrNoQueries", err)
	}

	_, err = c.Evaluate(context.Background(), Request{
		Queries: []Item{{ID: "q1", Vector: []float32{1, 0}}},
		Passages: []Item{
			{ID: "d1", Vector: []float32{1, 0, 0}},
		},
		Qrels: Qrels{"q1": {"d1": 1}},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Evaluate() error = %v, want ErrDimensionMismatch", err)
	}

	_, err = c.Evaluate(context.Background(), Request{
		Queries:  []Item{{ID: "q1", Vector: []float32{}}},
		Passages: []Item{{ID: "d1", Vector: []float32{}}},
		Qrels:    Qrels{"q1": {"d1": 1}},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Evaluate() error = %v, want ErrDimensionMismatch for zero-length vectors", err)
	}
}

func TestClient_ComputeMetrics(t *testing.T) {
	c := newMemoryClient(t, WithKValues(1, 2))

	report, err := c.ComputeMetrics(context.Background(),
		Qrels{"q1": {"d1": 1, "d2": 0}},
		Run{"q1": {"d1": 0.9, "d2": 0.4}},
		nil, // fall back to client defaults
	)
	if err != nil {
		t.Fatalf("ComputeMetrics() error: %v", err)
	}
	if report.Mode != "run_only" {
		t.Errorf("mode = %q, want run_only", report.Mode)
	}
	if got := report.Metrics["mrr_at_1"]; got != 1.0 {
		t.Errorf("mrr_at_1 = %v, want 1", got)
	}
	if _, ok := report.Metrics["ndcg_at_2"]; !ok {
		t.Error("expected ndcg_at_2 from client default k values")
	}
}

func TestClient_ReportsWithoutStorage(t *testing.T) {
	c := newMemoryClient(t)

	if _, err := c.GetReport(context.Background(), "x"); !errors.Is(err, ErrNoStorage) {
		t.Errorf("GetReport() error = %v, want ErrNoStorage", err)
	}
	if _, err := c.ListReports(context.Background()); !errors.Is(err, ErrNoStorage) {
		t.Errorf("ListReports() error = %v, want ErrNoStorage", err)
	}
	if err := c.DeleteReport(context.Background(), "x"); !errors.Is(err, ErrNoStorage) {
		t.Errorf("DeleteReport() error = %v, want ErrNoStorage", err)
	}
}

// textEmbedder maps texts to fixed vectors for embedding-path tests.
type textEmbedder struct {
	vectors map[string][]float32
}

func (e *textEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	vec, ok := e.vectors[text]
	if !ok {
		return domain.EmbeddingResult{}, errors.New("unknown text")
	}
	return domain.EmbeddingResult{Embedding: vec, TotalTokens: 3}, nil
}

func TestClient_Evaluate_WithCustomEmbedder(t *testing.T) {
	embedder := &textEmbedder{vectors: map[string][]float32{
		"what is go":   {1, 0},
		"go is a lang": {1, 0},
		"cooking rice": {0, 1},
	}}
	c := newMemoryClient(t, WithEmbedder("text-embedder", embedder))

	report, err := c.Evaluate(context.Background(), Request{
		Queries: []Item{{ID: "q1", Text: "what is go"}},
		Passages: []Item{
			{ID: "d1", Text: "go is a lang"},
			{ID: "d2", Text: "cooking rice"},
		},
		Qrels:   Qrels{"q1": {"d1": 1}},
		KValues: []int{1},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if report.TotalTokens != 9 {
		t.Errorf("TotalTokens = %d, want 9", report.TotalTokens)
	}
	if got := report.Metrics["recall_at_1"]; math.Abs(got-1.0) > 1e-12 {
		t.Errorf("recall_at_1 = %v, want 1", got)
	}
}

func TestNew_CacheRequiresModel(t *testing.T) {
	embedder := &textEmbedder{}

	t.Run("embedding cache", func(t *testing.T) {
		_, err := New(context.Background(), WithEmbedder("", embedder), WithEmbeddingCache())
		if err == nil || !strings.Contains(err.Error(), "requires a model name") {
			t.Errorf("New() error = %v, want model name requirement", err)
		}
	})

	t.Run("multi-vector cache", func(t *testing.T) {
		_, err := New(context.Background(), WithEmbedder("", embedder), WithMultiVectorCache())
		if err == nil || !strings.Contains(err.Error(), "requires a model name") {
			t.Errorf("New() error = %v, want model name requirement", err)
		}
	})

	t.Run("named embedder passes", func(t *testing.T) {
		c, err := New(context.Background(), WithEmbedder("text-embedder", embedder), WithEmbeddingCache())
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		c.Close()
	})
}

func TestClient_Evaluate_TokenBudget(t *testing.T) {
	embedder := &textEmbedder{vectors: map[string][]float32{"a": {1, 0}, "b": {0, 1}}}
	c := newMemoryClient(t, WithEmbedder("text-embedder", embedder), WithTokenBudget(5, 0))

	// First evaluation spends the budget, second is rejected.
	req := Request{
		Queries:  []Item{{ID: "q1", Text: "a"}},
		Passages: []Item{{ID: "d1", Text: "b"}},
		Qrels:    Qrels{"q1": {"d1": 1}},
		KValues:  []int{1},
	}
	if _, err := c.Evaluate(context.Background(), req); err != nil {
		t.Fatalf("first Evaluate() error: %v", err)
	}
	_, err := c.Evaluate(context.Background(), req)
	if !errors.Is(err, ErrTokenBudgetExceeded) {
		t.Errorf("second Evaluate() error = %v, want ErrTokenBudgetExceeded", err)
	}
}
