package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rankeval/internal/config"
	dbRedis "github.com/kailas-cloud/rankeval/internal/db/redis"
	"github.com/kailas-cloud/rankeval/internal/domain"
	logpkg "github.com/kailas-cloud/rankeval/internal/logger"
	"github.com/kailas-cloud/rankeval/internal/metrics"
	"github.com/kailas-cloud/rankeval/internal/repository/embcache"
	reportrepo "github.com/kailas-cloud/rankeval/internal/repository/report"
	chiTransport "github.com/kailas-cloud/rankeval/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/rankeval/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/rankeval/internal/usecase/embedding"
	evaluc "github.com/kailas-cloud/rankeval/internal/usecase/evaluation"
	healthuc "github.com/kailas-cloud/rankeval/internal/usecase/health"
	"github.com/kailas-cloud/rankeval/internal/version"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the evaluation HTTP API server",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting rankeval API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return fmt.Errorf("create database store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database")

	// Register evaluation and embedding metrics explicitly (no init())
	metrics.Register()

	// Build embedder chain — composition root.
	// Pass nil interface (not typed nil pointer!) when no provider is configured.
	// Go gotcha: a typed nil wrapped in an interface != nil.
	var embedder evaluc.Embedder
	var embChecker healthuc.EmbeddingChecker
	provCfg := cfg.Embedding.Provider
	if provCfg.Name != "" {
		base := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     provCfg.APIKey,
			BaseURL:    provCfg.BaseURL,
			Model:      provCfg.Model,
			Dimensions: provCfg.Dimensions,
			Provider:   provCfg.Name,
			Logger:     logger,
		})
		embChecker = newEmbeddingHealthChecker(base)

		embedder = base
		if provCfg.CacheEmbeddings {
			embedder = embcache.New(
				base, store, cfg.Storage.KeyPrefix, provCfg.Model,
				metrics.EmbeddingCacheTotal, logger,
			)
		}

		if b := provCfg.Budget; b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0 {
			budget := embeddinguc.NewBudgetTracker(
				provCfg.Name, b.DailyTokenLimit, b.MonthlyTokenLimit,
				embeddinguc.BudgetAction(b.Action), logger,
			)
			embedder = embeddinguc.NewGuardedEmbedder(embedder, budget)
		}

		logger.Info("Embedder created",
			zap.String("provider", provCfg.Name),
			zap.String("model", provCfg.Model),
			zap.Int("dimensions", provCfg.Dimensions),
			zap.Bool("cache", provCfg.CacheEmbeddings),
		)
	} else {
		logger.Warn("No embedding provider configured; only precomputed embeddings accepted")
	}

	reports := reportrepo.New(
		store, cfg.Storage.KeyPrefix,
		time.Duration(cfg.Storage.ReportTTLSec)*time.Second,
	)

	mvCache, err := embcache.NewMultiVectorCache(store, cfg.Storage.KeyPrefix, provCfg.Model, logger)
	if err != nil {
		return fmt.Errorf("create multi-vector cache: %w", err)
	}

	evalSvc := evaluc.New(embedder, reports, evaluc.Options{
		KValues:       cfg.Evaluation.KValues,
		ScoreBlock:    cfg.Evaluation.ScoreBlock,
		EmbedParallel: cfg.Evaluation.EmbedParallel,
		MaxBatchSize:  cfg.Evaluation.MaxBatchSize,
	}, logger).
		WithInstructions(provCfg.QueryInstruction, provCfg.PassageInstruction).
		WithMultiVectorCache(mvCache)

	healthSvc := healthuc.New(store, embChecker)

	server := chiTransport.NewServer(evalSvc, reports, healthSvc, logger).
		WithMultiVectorDefault(cfg.Evaluation.MultiVector)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// embeddingHealthChecker adapts the embedder chain to the health contract.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
