package rankeval

import "github.com/kailas-cloud/rankeval/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNoQueries              = domain.ErrNoQueries
	ErrNoPassages             = domain.ErrNoPassages
	ErrDimensionMismatch      = domain.ErrDimensionMismatch
	ErrNoQrels                = domain.ErrNoQrels
	ErrNoRun                  = domain.ErrNoRun
	ErrReportNotFound         = domain.ErrReportNotFound
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrTokenBudgetExceeded    = domain.ErrTokenBudgetExceeded
)
