// Package embcache caches embeddings in a key-value store so evaluation
// reruns over the same corpus skip the provider entirely.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rankeval/internal/db"
	"github.com/kailas-cloud/rankeval/internal/domain"
)

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedEmbedder caches embeddings in a key-value store. Keys are derived
// from the model name and the text, so switching models never serves stale
// vectors.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	keyPrefix  string
	model      string
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	s store,
	keyPrefix, model string,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		keyPrefix:  keyPrefix + "emb_cache:",
		model:      model,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Cache miss: full EmbeddingResult from inner.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	c.incCache("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.putToCache(ctx, key, result.Embedding)
	return result, nil
}

// BatchEmbed serves cached vectors where possible and embeds only the
// misses, preserving input order.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	embeddings := make([]domain.Vector, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		key := c.cacheKey(text)
		if vec, ok := c.getFromCache(ctx, key); ok {
			c.incCache("hit")
			embeddings[i] = vec
			continue
		}
		c.incCache("miss")
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
	}

	var missRes domain.BatchEmbeddingResult
	var err error
	if be, ok := c.inner.(domain.BatchEmbedder); ok {
		missRes, err = be.BatchEmbed(ctx, missTexts)
	} else {
		missRes, err = domain.BatchFallback(ctx, c.inner, missTexts)
	}
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed misses: %w", err)
	}

	for j, i := range missIdx {
		embeddings[i] = missRes.Embeddings[j]
		c.putToCache(ctx, c.cacheKey(texts[i]), missRes.Embeddings[j])
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: missRes.PromptTokens,
		TotalTokens:  missRes.TotalTokens,
	}, nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.model + "\x00" + text))
	return c.keyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) (domain.Vector, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return vec, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec domain.Vector) {
	if err := c.store.Set(ctx, key, vectorToBytes(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToBytes(v domain.Vector) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) (domain.Vector, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make(domain.Vector, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

// --- multi-vector cache ---

// MultiVectorCache caches ColBERT-style multi-vector embeddings. Payloads
// are zstd-compressed: token matrices are large (tokens x dim x 4 bytes) and
// compress well after the float32 frame layout.
type MultiVectorCache struct {
	store     store
	keyPrefix string
	model     string
	enc       *zstd.Encoder
	dec       *zstd.Decoder
	logger    *zap.Logger
}

// NewMultiVectorCache creates a multi-vector cache over the KV store.
func NewMultiVectorCache(s store, keyPrefix, model string, logger *zap.Logger) (*MultiVectorCache, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &MultiVectorCache{
		store:     s,
		keyPrefix: keyPrefix + "mv_cache:",
		model:     model,
		enc:       enc,
		dec:       dec,
		logger:    logger,
	}, nil
}

// Get returns the cached multi-vector for the text, if present.
func (c *MultiVectorCache) Get(ctx context.Context, text string) (domain.MultiVector, bool) {
	key := c.cacheKey(text)

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached multi-vector", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		c.logger.Warn("Failed to decompress cached multi-vector", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	mv, err := bytesToMultiVector(raw)
	if err != nil {
		c.logger.Warn("Failed to parse cached multi-vector", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return mv, true
}

// Put stores the multi-vector for the text.
func (c *MultiVectorCache) Put(ctx context.Context, text string, mv domain.MultiVector) {
	key := c.cacheKey(text)
	data := c.enc.EncodeAll(multiVectorToBytes(mv), nil)
	if err := c.store.Set(ctx, key, data); err != nil {
		c.logger.Warn("Failed to cache multi-vector", zap.String("key", key), zap.Error(err))
	}
}

func (c *MultiVectorCache) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.model + "\x00" + text))
	return c.keyPrefix + hex.EncodeToString(h[:])
}

// multiVectorToBytes lays out the frame as: uint32 tokens, uint32 dim,
// then tokens*dim little-endian float32 values.
func multiVectorToBytes(mv domain.MultiVector) []byte {
	dim := 0
	if len(mv) > 0 {
		dim = len(mv[0])
	}
	buf := make([]byte, 8+len(mv)*dim*4)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(mv)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(dim))
	off := 8
	for _, tok := range mv {
		for _, f := range tok {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
			off += 4
		}
	}
	return buf
}

func bytesToMultiVector(data []byte) (domain.MultiVector, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("invalid multi-vector cache data: len=%d", len(data))
	}
	tokens := int(binary.LittleEndian.Uint32(data[0:]))
	dim := int(binary.LittleEndian.Uint32(data[4:]))
	if len(data) != 8+tokens*dim*4 {
		return nil, fmt.Errorf("invalid multi-vector cache data: len=%d for %d tokens x %d dims",
			len(data), tokens, dim)
	}

	mv := make(domain.MultiVector, tokens)
	off := 8
	for i := range mv {
		tok := make(domain.Vector, dim)
		for j := range tok {
			tok[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		mv[i] = tok
	}
	return mv, nil
}
