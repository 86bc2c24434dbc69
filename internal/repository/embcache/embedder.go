// Package embcache memoizes embeddings in the key-value store so rebuilding
// the taxonomy index or re-running a batch does not pay for the same text twice.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/escomatch/internal/db"
	"github.com/kailas-cloud/escomatch/internal/domain"
)

// KeyPrefix namespaces cache entries. Keys are KeyPrefix + model + ":" + sha256(text).
const KeyPrefix = "escomatch:emb_cache:"

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder is a read-through cache in front of an embedder.
// Entries are scoped by model, so switching models never returns a vector
// from the wrong space.
type CachedEmbedder struct {
	inner   domain.Embedder
	store   store
	model   string
	ttl     time.Duration
	lookups *prometheus.CounterVec
	logger  *zap.Logger
}

// New wraps inner. lookups carries the labels "model" and "result" and may be nil.
func New(
	inner domain.Embedder,
	s store,
	model string,
	lookups *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{inner: inner, store: s, model: model, lookups: lookups, logger: logger}
}

// WithTTL expires entries after d. Zero keeps them forever.
func (c *CachedEmbedder) WithTTL(d time.Duration) *CachedEmbedder {
	if d > 0 {
		c.ttl = d
	}
	return c
}

// Embed serves text from the cache or the inner embedder. Hits report zero tokens.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)

	data, err := c.store.Get(ctx, key)
	if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
	}
	if vec, ok := c.decode(key, data); ok {
		c.count("hit", 1)
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	c.count("miss", 1)

	res, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	c.store1(ctx, key, res.Embedding)
	return res, nil
}

// BatchEmbed reads all keys in one pipelined call and embeds only the misses.
// A failed cache read degrades to embedding everything.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}
	cached, err := c.store.GetMulti(ctx, keys)
	if err != nil || len(cached) != len(keys) {
		c.logger.Warn("Embedding cache batch read failed", zap.Int("keys", len(keys)), zap.Error(err))
		cached = make([][]byte, len(keys))
	}

	out := make([][]float32, len(texts))
	var pending []int
	for i := range texts {
		if vec, ok := c.decode(keys[i], cached[i]); ok {
			out[i] = vec
			continue
		}
		pending = append(pending, i)
	}
	c.count("hit", len(texts)-len(pending))
	c.count("miss", len(pending))

	if len(pending) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: out}, nil
	}

	missTexts := make([]string, len(pending))
	for j, i := range pending {
		missTexts[j] = texts[i]
	}
	res, err := domain.BatchEmbed(ctx, c.inner, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed batch: %w", err)
	}
	if len(res.Embeddings) != len(pending) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed batch: got %d embeddings for %d texts: %w",
			len(res.Embeddings), len(pending), domain.ErrEmbeddingProviderError)
	}

	for j, i := range pending {
		out[i] = res.Embeddings[j]
		c.store1(ctx, keys[i], res.Embeddings[j])
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	return domain.CheckHealth(ctx, c.inner)
}

func (c *CachedEmbedder) count(result string, n int) {
	if c.lookups != nil && n > 0 {
		c.lookups.WithLabelValues(c.model, result).Add(float64(n))
	}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return KeyPrefix + c.model + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) decode(key string, data []byte) ([]float32, bool) {
	if len(data) == 0 {
		return nil, false
	}
	vec, err := unpack(data)
	if err != nil {
		c.logger.Warn("Discarding corrupt embedding cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

// store1 writes one entry. Write failures only cost a future miss.
func (c *CachedEmbedder) store1(ctx context.Context, key string, vec []float32) {
	if err := c.store.Set(ctx, key, pack(vec), c.ttl); err != nil {
		c.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// pack encodes v as little-endian float32s.
func pack(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func unpack(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding cache entry of %d bytes is not a float32 vector", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
