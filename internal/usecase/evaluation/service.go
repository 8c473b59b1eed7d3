// Package evaluation runs retrieval evaluations: it scores query embeddings
// against passage embeddings and aggregates ranking metrics over the result.
package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/kailas-cloud/rankeval/internal/domain"
	"github.com/kailas-cloud/rankeval/internal/domain/eval"
	"github.com/kailas-cloud/rankeval/internal/domain/scoring"
	"github.com/kailas-cloud/rankeval/internal/metrics"
)

// Item is one query or passage: an ID plus exactly one representation.
// Text is embedded on the fly; Vector and Vectors are used as-is.
type Item struct {
	ID      string
	Text    string
	Vector  domain.Vector
	Vectors domain.MultiVector
}

// Request describes one evaluation run.
type Request struct {
	Queries  []Item
	Passages []Item
	Qrels    eval.Qrels
	KValues  []int
	// MultiVector selects MaxSim scoring over dot-product scoring.
	MultiVector bool
	// KeepIdenticalIDs keeps results whose passage ID equals the query ID.
	KeepIdenticalIDs bool
}

// Options tune the evaluation service.
type Options struct {
	KValues       []int
	ScoreBlock    int
	EmbedParallel int
	MaxBatchSize  int
}

// Service runs evaluations. reports and embed may be nil: without reports
// nothing is persisted, without embed only precomputed embeddings work.
type Service struct {
	embed        Embedder
	queryEmbed   Embedder
	passageEmbed Embedder
	mvCache      MultiVectorCache
	reports      ReportWriter
	opts         Options
	logger       *zap.Logger
}

// New creates an evaluation service.
func New(embed Embedder, reports ReportWriter, opts Options, logger *zap.Logger) *Service {
	if len(opts.KValues) == 0 {
		opts.KValues = eval.DefaultKValues
	}
	if opts.ScoreBlock <= 0 {
		opts.ScoreBlock = scoring.DefaultBlockSize
	}
	if opts.EmbedParallel <= 0 {
		opts.EmbedParallel = 4
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 256
	}
	return &Service{embed: embed, reports: reports, opts: opts, logger: logger}
}

// WithInstructions wraps the embedder with per-side instruction prefixes.
// Retrieval models often expect different prompts for queries and passages.
func (s *Service) WithInstructions(query, passage string) *Service {
	if s.embed == nil {
		return s
	}
	if query != "" {
		s.queryEmbed = domain.NewInstructionEmbedder(s.embed, query)
	}
	if passage != "" {
		s.passageEmbed = domain.NewInstructionEmbedder(s.embed, passage)
	}
	return s
}

// WithMultiVectorCache lets multi-vector items carry only text when their
// token embeddings were cached by an earlier evaluation.
func (s *Service) WithMultiVectorCache(c MultiVectorCache) *Service {
	s.mvCache = c
	return s
}

// embedderFor returns the instruction-decorated embedder for a side,
// falling back to the undecorated one.
func (s *Service) embedderFor(kind string) Embedder {
	switch {
	case kind == "query" && s.queryEmbed != nil:
		return s.queryEmbed
	case kind == "passage" && s.passageEmbed != nil:
		return s.passageEmbed
	}
	return s.embed
}

// Evaluate runs the full pipeline: resolve embeddings, score, build the run,
// compute metrics, and persist the report.
func (s *Service) Evaluate(ctx context.Context, req Request) (domain.EvaluationReport, error) {
	mode := domain.ModeSingleVector
	if req.MultiVector {
		mode = domain.ModeMultiVector
	}

	report, err := s.evaluate(ctx, req, mode)
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues(mode, "error").Inc()
		return domain.EvaluationReport{}, err
	}

	metrics.EvaluationsTotal.WithLabelValues(mode, "success").Inc()
	return report, nil
}

func (s *Service) evaluate(ctx context.Context, req Request, mode string) (domain.EvaluationReport, error) {
	if len(req.Queries) == 0 {
		return domain.EvaluationReport{}, domain.ErrNoQueries
	}
	if len(req.Passages) == 0 {
		return domain.EvaluationReport{}, domain.ErrNoPassages
	}

	kValues := req.KValues
	if len(kValues) == 0 {
		kValues = s.opts.KValues
	}

	var scores *mat.Dense
	var tokens int
	var err error
	if req.MultiVector {
		scores, err = s.scoreMultiVector(ctx, req)
	} else {
		scores, tokens, err = s.scoreSingleVector(ctx, req)
	}
	if err != nil {
		return domain.EvaluationReport{}, err
	}

	rows, cols := scores.Dims()
	if rows != len(req.Queries) {
		return domain.EvaluationReport{}, fmt.Errorf(
			"expected %d score rows, got %d", len(req.Queries), rows)
	}
	metrics.ScoredPairsTotal.WithLabelValues(mode).Add(float64(rows * cols))

	accuracy := scoring.Top1Accuracy(scores)
	s.logger.Info("Scoring completed",
		zap.String("mode", mode),
		zap.Int("queries", rows),
		zap.Int("passages", cols),
		zap.Float64("top1_accuracy", accuracy),
	)

	run := RunFromScores(itemIDs(req.Queries), itemIDs(req.Passages), scores)

	evalOpts := []eval.Option{}
	if req.KeepIdenticalIDs {
		evalOpts = append(evalOpts, eval.WithIdenticalIDs())
	}
	result, err := eval.Compute(req.Qrels, run, kValues, evalOpts...)
	if err != nil {
		return domain.EvaluationReport{}, fmt.Errorf("compute metrics: %w", err)
	}

	report := domain.EvaluationReport{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		Mode:         mode,
		KValues:      kValues,
		NumQueries:   len(req.Queries),
		NumPassages:  len(req.Passages),
		Top1Accuracy: accuracy,
		TotalTokens:  tokens,
		Metrics:      result.Flatten(),
	}

	if s.reports != nil {
		if err := s.reports.Save(ctx, report); err != nil {
			return domain.EvaluationReport{}, fmt.Errorf("save report: %w", err)
		}
	}

	return report, nil
}

// Scores computes the raw score matrix without metric aggregation.
// Mode selection and validation match Evaluate.
func (s *Service) Scores(ctx context.Context, queries, passages []Item, multiVector bool) (*mat.Dense, error) {
	if len(queries) == 0 {
		return nil, domain.ErrNoQueries
	}
	if len(passages) == 0 {
		return nil, domain.ErrNoPassages
	}

	req := Request{Queries: queries, Passages: passages, MultiVector: multiVector}
	if multiVector {
		return s.scoreMultiVector(ctx, req)
	}
	scores, _, err := s.scoreSingleVector(ctx, req)
	return scores, err
}

// ComputeMetrics evaluates a caller-supplied run without scoring.
func (s *Service) ComputeMetrics(
	ctx context.Context, qrels eval.Qrels, run eval.Run, kValues []int,
) (domain.EvaluationReport, error) {
	if len(kValues) == 0 {
		kValues = s.opts.KValues
	}

	result, err := eval.Compute(qrels, run, kValues)
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues(domain.ModeRunOnly, "error").Inc()
		return domain.EvaluationReport{}, fmt.Errorf("compute metrics: %w", err)
	}

	report := domain.EvaluationReport{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Mode:      domain.ModeRunOnly,
		KValues:   kValues,
		Metrics:   result.Flatten(),
	}

	if s.reports != nil {
		if err := s.reports.Save(ctx, report); err != nil {
			metrics.EvaluationsTotal.WithLabelValues(domain.ModeRunOnly, "error").Inc()
			return domain.EvaluationReport{}, fmt.Errorf("save report: %w", err)
		}
	}

	metrics.EvaluationsTotal.WithLabelValues(domain.ModeRunOnly, "success").Inc()
	return report, nil
}

// RunFromScores converts a score matrix plus ID lists into run results.
func RunFromScores(queryIDs, passageIDs []string, scores *mat.Dense) eval.Run {
	run := make(eval.Run, len(queryIDs))
	for i, qid := range queryIDs {
		row := scores.RawRowView(i)
		results := make(map[string]float64, len(passageIDs))
		for j, pid := range passageIDs {
			results[pid] = row[j]
		}
		run[qid] = results
	}
	return run
}

func (s *Service) scoreSingleVector(ctx context.Context, req Request) (*mat.Dense, int, error) {
	qs, qTokens, err := s.resolveVectors(ctx, req.Queries, "query")
	if err != nil {
		return nil, 0, err
	}
	ps, pTokens, err := s.resolveVectors(ctx, req.Passages, "passage")
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	scores, err := scoring.SingleVector(qs, ps)
	if err != nil {
		return nil, 0, err
	}
	metrics.ScoringDuration.WithLabelValues(domain.ModeSingleVector).Observe(time.Since(start).Seconds())

	return scores, qTokens + pTokens, nil
}

func (s *Service) scoreMultiVector(ctx context.Context, req Request) (*mat.Dense, error) {
	qs, err := s.resolveMultiVectors(ctx, req.Queries, "query")
	if err != nil {
		return nil, err
	}
	ps, err := s.resolveMultiVectors(ctx, req.Passages, "passage")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	scores, err := scoring.MaxSim(qs, ps, scoring.WithBlockSize(s.opts.ScoreBlock))
	if err != nil {
		return nil, err
	}
	metrics.ScoringDuration.WithLabelValues(domain.ModeMultiVector).Observe(time.Since(start).Seconds())

	return scores, nil
}

// resolveVectors returns single-vector embeddings for all items, embedding
// texts in parallel batches where vectors are missing.
func (s *Service) resolveVectors(ctx context.Context, items []Item, kind string) ([]domain.Vector, int, error) {
	vectors := make([]domain.Vector, len(items))
	var missing []int
	for i, it := range items {
		switch {
		case it.Vector != nil:
			vectors[i] = it.Vector
		case it.Text != "":
			missing = append(missing, i)
		default:
			return nil, 0, fmt.Errorf("%s %q has neither vector nor text", kind, it.ID)
		}
	}

	if len(missing) == 0 {
		return vectors, 0, nil
	}
	if s.embed == nil {
		return nil, 0, fmt.Errorf("%s %q has only text but no embedder is configured", kind, items[missing[0]].ID)
	}

	tokens, err := s.embedMissing(ctx, s.embedderFor(kind), items, vectors, missing)
	if err != nil {
		return nil, 0, fmt.Errorf("embed %s texts: %w", kind, err)
	}
	return vectors, tokens, nil
}

// embedMissing fans batches out over errgroup with bounded parallelism.
func (s *Service) embedMissing(
	ctx context.Context,
	embed Embedder,
	items []Item,
	vectors []domain.Vector,
	missing []int,
) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.EmbedParallel)

	tokenCounts := make([]int, (len(missing)+s.opts.MaxBatchSize-1)/s.opts.MaxBatchSize)

	for b := 0; b*s.opts.MaxBatchSize < len(missing); b++ {
		batch := missing[b*s.opts.MaxBatchSize : min((b+1)*s.opts.MaxBatchSize, len(missing))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, i := range batch {
				texts[j] = items[i].Text
			}

			var res domain.BatchEmbeddingResult
			var err error
			if be, ok := embed.(domain.BatchEmbedder); ok {
				res, err = be.BatchEmbed(ctx, texts)
			} else {
				res, err = domain.BatchFallback(ctx, embed, texts)
			}
			if err != nil {
				return err
			}

			for j, i := range batch {
				vectors[i] = res.Embeddings[j]
			}
			tokenCounts[b] = res.TotalTokens
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, t := range tokenCounts {
		total += t
	}
	return total, nil
}

// resolveMultiVectors returns token embeddings for all items. Items carrying
// vectors are used as-is and written through to the cache; text-only items
// are served from the cache.
func (s *Service) resolveMultiVectors(
	ctx context.Context, items []Item, kind string,
) ([]domain.MultiVector, error) {
	mvs := make([]domain.MultiVector, len(items))
	for i, it := range items {
		switch {
		case it.Vectors != nil:
			mvs[i] = it.Vectors
			if s.mvCache != nil && it.Text != "" {
				s.mvCache.Put(ctx, it.Text, it.Vectors)
			}
		case it.Text != "" && s.mvCache != nil:
			mv, ok := s.mvCache.Get(ctx, it.Text)
			if !ok {
				return nil, fmt.Errorf(
					"%s %q: token embeddings not cached, multi-vector evaluation requires precomputed token embeddings",
					kind, it.ID)
			}
			mvs[i] = mv
		default:
			return nil, fmt.Errorf(
				"%s %q: multi-vector evaluation requires precomputed token embeddings", kind, it.ID)
		}
	}
	return mvs, nil
}

func itemIDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
