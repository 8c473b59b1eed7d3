package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rankeval/internal/domain"
)

func TestBudgetTracker_Unlimited(t *testing.T) {
	b := NewBudgetTracker("openai", 0, 0, BudgetActionReject, zap.NewNop())

	b.Record(1_000_000)
	if err := b.Check(context.Background()); err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if got := b.RemainingDaily(); got != -1 {
		t.Errorf("RemainingDaily() = %d, want -1", got)
	}
	if got := b.RemainingMonthly(); got != -1 {
		t.Errorf("RemainingMonthly() = %d, want -1", got)
	}
}

func TestBudgetTracker_Reject(t *testing.T) {
	b := NewBudgetTracker("openai", 100, 0, BudgetActionReject, zap.NewNop())

	b.Record(50)
	if err := b.Check(context.Background()); err != nil {
		t.Fatalf("Check() under budget error: %v", err)
	}

	b.Record(50)
	err := b.Check(context.Background())
	if !errors.Is(err, domain.ErrTokenBudgetExceeded) {
		t.Errorf("Check() error = %v, want ErrTokenBudgetExceeded", err)
	}
	if got := b.RemainingDaily(); got != 0 {
		t.Errorf("RemainingDaily() = %d, want 0", got)
	}
}

func TestBudgetTracker_Warn(t *testing.T) {
	b := NewBudgetTracker("openai", 10, 0, BudgetActionWarn, zap.NewNop())

	b.Record(100)
	if err := b.Check(context.Background()); err != nil {
		t.Errorf("Check() with warn action error: %v", err)
	}
}

func TestBudgetTracker_MonthlyLimit(t *testing.T) {
	b := NewBudgetTracker("openai", 0, 200, BudgetActionReject, zap.NewNop())

	b.Record(150)
	if got := b.RemainingMonthly(); got != 50 {
		t.Errorf("RemainingMonthly() = %d, want 50", got)
	}

	b.Record(100)
	if err := b.Check(context.Background()); !errors.Is(err, domain.ErrTokenBudgetExceeded) {
		t.Errorf("Check() error = %v, want ErrTokenBudgetExceeded", err)
	}
}

type budgetEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (e *budgetEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	e.calls++
	return e.result, e.err
}

func TestGuardedEmbedder_RecordsUsage(t *testing.T) {
	b := NewBudgetTracker("openai", 100, 0, BudgetActionReject, zap.NewNop())
	inner := &budgetEmbedder{result: domain.EmbeddingResult{
		Embedding:   domain.Vector{1, 2},
		TotalTokens: 30,
	}}
	g := NewGuardedEmbedder(inner, b)

	if _, err := g.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if got := b.RemainingDaily(); got != 70 {
		t.Errorf("RemainingDaily() = %d, want 70", got)
	}
}

func TestGuardedEmbedder_BlocksWhenSpent(t *testing.T) {
	b := NewBudgetTracker("openai", 10, 0, BudgetActionReject, zap.NewNop())
	b.Record(10)
	inner := &budgetEmbedder{result: domain.EmbeddingResult{Embedding: domain.Vector{1}}}
	g := NewGuardedEmbedder(inner, b)

	_, err := g.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrTokenBudgetExceeded) {
		t.Fatalf("Embed() error = %v, want ErrTokenBudgetExceeded", err)
	}
	if inner.calls != 0 {
		t.Errorf("inner embedder called %d times, want 0", inner.calls)
	}
}

func TestGuardedEmbedder_BatchFallback(t *testing.T) {
	b := NewBudgetTracker("openai", 0, 0, BudgetActionReject, zap.NewNop())
	inner := &budgetEmbedder{result: domain.EmbeddingResult{
		Embedding:   domain.Vector{1},
		TotalTokens: 5,
	}}
	g := NewGuardedEmbedder(inner, b)

	res, err := g.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("BatchEmbed() error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Errorf("embeddings = %d, want 3", len(res.Embeddings))
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}
	if res.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", res.TotalTokens)
	}
}
