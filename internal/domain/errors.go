package domain

import "errors"

var (
	// ErrNoQueries signals an empty query embedding set.
	ErrNoQueries = errors.New("no queries provided")
	// ErrNoPassages signals an empty passage embedding set.
	ErrNoPassages = errors.New("no passages provided")
	// ErrDimensionMismatch signals embeddings of different dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrNoQrels signals empty relevance judgments.
	ErrNoQrels = errors.New("no relevance judgments provided")
	// ErrNoRun signals an empty run to evaluate.
	ErrNoRun = errors.New("no run results provided")
	// ErrReportNotFound signals a missing evaluation report.
	ErrReportNotFound = errors.New("report not found")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrTokenBudgetExceeded signals the embedding token budget is spent.
	ErrTokenBudgetExceeded = errors.New("embedding token budget exceeded")
)
