package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agentforge/backend/internal/metrics"
	"github.com/agentforge/backend/pkg/logger"
)

// CachedEmbedder caches embeddings in Redis keyed by the hash of the text
// and the model name, so identical chunks and repeated queries skip the
// provider call. Cache failures fall through to the provider.
type CachedEmbedder struct {
	inner Embedder
	cache *redis.Client
	ttl   time.Duration
}

func NewCachedEmbedder(inner Embedder, cache *redis.Client, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}
}

func (c *CachedEmbedder) Model() string {
	return c.inner.Model()
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vector, ok := c.get(ctx, key); ok {
		metrics.EmbeddingCacheHits.Inc()
		return vector, nil
	}
	metrics.EmbeddingCacheMisses.Inc()

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.put(ctx, key, vector)
	return vector, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	// Collect the misses and embed them in one provider batch.
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vector, ok := c.get(ctx, c.cacheKey(text)); ok {
			metrics.EmbeddingCacheHits.Inc()
			vectors[i] = vector
			continue
		}
		metrics.EmbeddingCacheMisses.Inc()
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		embedded, err := c.inner.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, vector := range embedded {
			idx := missingIdx[j]
			vectors[idx] = vector
			c.put(ctx, c.cacheKey(texts[idx]), vector)
		}
	}

	return vectors, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.inner.Model() + "\x00" + text))
	return fmt.Sprintf("embedding:%x", sum)
}

func (c *CachedEmbedder) get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.cache.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
		return nil, false
	}

	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		logger.Warn("Embedding cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vector, true
}

func (c *CachedEmbedder) put(ctx context.Context, key string, vector []float32) {
	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
}
