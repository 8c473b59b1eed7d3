package evaluation

import (
	"context"

	"github.com/kailas-cloud/rankeval/internal/domain"
)

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// ReportWriter persists evaluation reports.
type ReportWriter interface {
	Save(ctx context.Context, r domain.EvaluationReport) error
}

// MultiVectorCache stores precomputed token embeddings keyed by item text.
// Lookup misses are not errors; the caller falls back to requiring
// precomputed vectors on the item itself.
type MultiVectorCache interface {
	Get(ctx context.Context, text string) (domain.MultiVector, bool)
	Put(ctx context.Context, text string, mv domain.MultiVector)
}
