package rankeval

import (
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addrs            []string
	password         string
	readinessTimeout time.Duration
	keyPrefix        string
	reportTTL        time.Duration

	embedder          Embedder
	embedderModel     string
	openAIKey         string
	openAIBaseURL     string
	openAIModel       string
	openAIDimensions  int
	cacheEmbeddings   bool
	cacheMultiVectors bool

	queryInstruction   string
	passageInstruction string

	dailyTokenLimit   int64
	monthlyTokenLimit int64

	kValues       []int
	scoreBlock    int
	embedParallel int
	maxBatchSize  int

	log *zap.Logger
}

func (c *clientConfig) logger() *zap.Logger {
	if c.log != nil {
		return c.log
	}
	return zap.NewNop()
}

// model returns the identifier that namespaces cache keys, so entries from
// different embedding models never mix.
func (c *clientConfig) model() string {
	if c.embedder != nil {
		return c.embedderModel
	}
	return c.openAIModel
}

// WithRedis connects the client to Redis for report persistence and
// embedding caching.
func WithRedis(addrs []string, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = addrs
		c.password = password
	})
}

// WithOpenAI configures an OpenAI-compatible embedding provider so
// evaluation items may carry raw texts.
func WithOpenAI(apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openAIKey = apiKey
		c.openAIModel = model
	})
}

// WithBaseURL points the embedding provider at a non-default endpoint
// (Nebius, Azure, a local server).
func WithBaseURL(url string) Option {
	return optionFunc(func(c *clientConfig) { c.openAIBaseURL = url })
}

// WithDimensions requests reduced-dimension embeddings from the provider.
func WithDimensions(n int) Option {
	return optionFunc(func(c *clientConfig) { c.openAIDimensions = n })
}

// WithEmbedder supplies a custom embedder instead of the OpenAI provider.
// The model name namespaces cache keys; it must be unique per embedding
// model when caching is enabled.
func WithEmbedder(model string, e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedderModel = model
		c.embedder = e
	})
}

// WithEmbeddingCache caches embeddings in Redis. Requires WithRedis.
func WithEmbeddingCache() Option {
	return optionFunc(func(c *clientConfig) { c.cacheEmbeddings = true })
}

// WithMultiVectorCache caches precomputed token embeddings in Redis so
// multi-vector items may carry only text on repeat evaluations. Requires
// WithRedis.
func WithMultiVectorCache() Option {
	return optionFunc(func(c *clientConfig) { c.cacheMultiVectors = true })
}

// WithInstructions prepends per-side instruction text before embedding.
func WithInstructions(query, passage string) Option {
	return optionFunc(func(c *clientConfig) {
		c.queryInstruction = query
		c.passageInstruction = passage
	})
}

// WithTokenBudget caps embedding token spend; requests beyond the cap
// are rejected. Zero means unlimited.
func WithTokenBudget(daily, monthly int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.dailyTokenLimit = daily
		c.monthlyTokenLimit = monthly
	})
}

// WithKValues sets the default cutoff depths for metrics.
func WithKValues(ks ...int) Option {
	return optionFunc(func(c *clientConfig) { c.kValues = ks })
}

// WithScoreBlock sets the batch size for multi-vector MaxSim scoring.
func WithScoreBlock(n int) Option {
	return optionFunc(func(c *clientConfig) { c.scoreBlock = n })
}

// WithEmbedParallel bounds concurrent embedding batches.
func WithEmbedParallel(n int) Option {
	return optionFunc(func(c *clientConfig) { c.embedParallel = n })
}

// WithMaxBatchSize caps texts per embedding API call.
func WithMaxBatchSize(n int) Option {
	return optionFunc(func(c *clientConfig) { c.maxBatchSize = n })
}

// WithKeyPrefix namespaces all Redis keys.
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) { c.keyPrefix = prefix })
}

// WithReportTTL expires persisted reports after d. Zero keeps them forever.
func WithReportTTL(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) { c.reportTTL = d })
}

// WithReadinessTimeout bounds the initial database readiness wait.
func WithReadinessTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) { c.readinessTimeout = d })
}

// WithLogger attaches a zap logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) { c.log = l })
}
