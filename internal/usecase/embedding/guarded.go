package embedding

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/rankeval/internal/domain"
)

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}

// GuardedEmbedder wraps an embedder with token budget enforcement.
// Transport metrics (requests, duration, tokens) are recorded in
// transport/openai; this layer owns budget accounting only.
type GuardedEmbedder struct {
	inner  domain.Embedder
	budget BudgetChecker
}

// NewGuardedEmbedder wraps an embedder with a budget guard.
func NewGuardedEmbedder(inner domain.Embedder, budget BudgetChecker) *GuardedEmbedder {
	return &GuardedEmbedder{inner: inner, budget: budget}
}

// Embed checks the budget, delegates, and records consumed tokens.
func (g *GuardedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := g.budget.Check(ctx); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("budget check: %w", err)
	}

	result, err := g.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	g.budget.Record(int64(result.TotalTokens))
	return result, nil
}

// BatchEmbed checks the budget once per batch and records aggregate usage.
func (g *GuardedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if err := g.budget.Check(ctx); err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("budget check: %w", err)
	}

	var result domain.BatchEmbeddingResult
	var err error
	if be, ok := g.inner.(domain.BatchEmbedder); ok {
		result, err = be.BatchEmbed(ctx, texts)
	} else {
		result, err = domain.BatchFallback(ctx, g.inner, texts)
	}
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	g.budget.Record(int64(result.TotalTokens))
	return result, nil
}
