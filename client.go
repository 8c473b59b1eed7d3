package rankeval

import (
	"context"
	"errors"
	"time"

	"github.com/kailas-cloud/rankeval/internal/db"
	dbRedis "github.com/kailas-cloud/rankeval/internal/db/redis"
	"github.com/kailas-cloud/rankeval/internal/domain"
	"github.com/kailas-cloud/rankeval/internal/domain/eval"
	"github.com/kailas-cloud/rankeval/internal/repository/embcache"
	reportrepo "github.com/kailas-cloud/rankeval/internal/repository/report"
	openaiEmb "github.com/kailas-cloud/rankeval/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/rankeval/internal/usecase/embedding"
	evaluc "github.com/kailas-cloud/rankeval/internal/usecase/evaluation"
)

const defaultReadinessTimeout = 10 * time.Second

// Type aliases re-exported for the public API.
type (
	// Item is a query or passage under evaluation.
	Item = evaluc.Item
	// Request describes an evaluation: items, judgments, cutoffs.
	Request = evaluc.Request
	// Report is the evaluation result with flattened metrics.
	Report = domain.EvaluationReport
	// Qrels maps query ID -> passage ID -> graded relevance.
	Qrels = eval.Qrels
	// Run maps query ID -> passage ID -> retrieval score.
	Run = eval.Run
	// Embedder vectorizes text. Supply your own via WithEmbedder.
	Embedder = domain.Embedder
)

// ErrNoStorage signals a report operation on a client without Redis.
var ErrNoStorage = errors.New("rankeval: no storage configured (use WithRedis)")

// Client is the embedded evaluation entry point: scoring and metrics
// without running the HTTP service. Redis and an embedding provider
// are both optional.
type Client struct {
	store   db.Store
	reports *reportrepo.Store
	svc     *evaluc.Service
}

// New creates a Client. With no options it evaluates precomputed
// embeddings and runs in memory only.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		keyPrefix:        "rankeval:",
		readinessTimeout: defaultReadinessTimeout,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if (cfg.cacheEmbeddings || cfg.cacheMultiVectors) && cfg.model() == "" {
		return nil, errors.New("embedding cache requires a model name to key entries by")
	}

	c := &Client{}

	if len(cfg.addrs) > 0 {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, err
		}
		if err := store.WaitForReady(ctx, cfg.readinessTimeout); err != nil {
			store.Close()
			return nil, err
		}
		c.store = store
		c.reports = reportrepo.New(store, cfg.keyPrefix, cfg.reportTTL)
	}

	embedder := buildEmbedder(cfg, c.store)

	// Pass nil interfaces (not typed nil pointers) for absent deps.
	var embDep evaluc.Embedder
	if embedder != nil {
		embDep = embedder
	}
	var reportDep evaluc.ReportWriter
	if c.reports != nil {
		reportDep = c.reports
	}

	c.svc = evaluc.New(embDep, reportDep, evaluc.Options{
		KValues:       cfg.kValues,
		ScoreBlock:    cfg.scoreBlock,
		EmbedParallel: cfg.embedParallel,
		MaxBatchSize:  cfg.maxBatchSize,
	}, cfg.logger()).WithInstructions(cfg.queryInstruction, cfg.passageInstruction)

	if cfg.cacheMultiVectors && c.store != nil {
		mvCache, err := embcache.NewMultiVectorCache(c.store, cfg.keyPrefix, cfg.model(), cfg.logger())
		if err != nil {
			c.Close()
			return nil, err
		}
		c.svc = c.svc.WithMultiVectorCache(mvCache)
	}

	return c, nil
}

// buildEmbedder assembles the decorator chain: provider -> cache -> budget.
func buildEmbedder(cfg *clientConfig, store db.Store) Embedder {
	var embedder Embedder
	switch {
	case cfg.embedder != nil:
		embedder = cfg.embedder
	case cfg.openAIKey != "":
		embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.openAIKey,
			BaseURL:    cfg.openAIBaseURL,
			Model:      cfg.openAIModel,
			Dimensions: cfg.openAIDimensions,
			Provider:   "openai",
			Logger:     cfg.logger(),
		})
	default:
		return nil
	}

	if cfg.cacheEmbeddings && store != nil {
		embedder = embcache.New(
			embedder, store, cfg.keyPrefix, cfg.model(), nil, cfg.logger(),
		)
	}

	if cfg.dailyTokenLimit > 0 || cfg.monthlyTokenLimit > 0 {
		budget := embeddinguc.NewBudgetTracker(
			"openai", cfg.dailyTokenLimit, cfg.monthlyTokenLimit,
			embeddinguc.BudgetActionReject, cfg.logger(),
		)
		embedder = embeddinguc.NewGuardedEmbedder(embedder, budget)
	}

	return embedder
}

// Evaluate scores queries against passages and aggregates ranking metrics.
// Items may carry precomputed vectors or raw texts (texts require an
// embedding provider).
func (c *Client) Evaluate(ctx context.Context, req Request) (Report, error) {
	return c.svc.Evaluate(ctx, req)
}

// ComputeMetrics evaluates a precomputed run against qrels without scoring.
func (c *Client) ComputeMetrics(ctx context.Context, qrels Qrels, run Run, kValues []int) (Report, error) {
	return c.svc.ComputeMetrics(ctx, qrels, run, kValues)
}

// GetReport loads a persisted evaluation report by ID.
func (c *Client) GetReport(ctx context.Context, id string) (Report, error) {
	if c.reports == nil {
		return Report{}, ErrNoStorage
	}
	return c.reports.Get(ctx, id)
}

// ListReports returns the IDs of all persisted reports.
func (c *Client) ListReports(ctx context.Context) ([]string, error) {
	if c.reports == nil {
		return nil, ErrNoStorage
	}
	return c.reports.ListIDs(ctx)
}

// DeleteReport removes a persisted report.
func (c *Client) DeleteReport(ctx context.Context, id string) error {
	if c.reports == nil {
		return ErrNoStorage
	}
	return c.reports.Delete(ctx, id)
}

// Close releases the database connection, if any.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}
