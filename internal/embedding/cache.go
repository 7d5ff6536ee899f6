package embedding

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-kb/internal/kb"
	"github.com/JakeFAU/campus-kb/internal/metrics"
)

// Cache stores query embeddings by key. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// MemoryCache is a size-bounded LRU whose entries expire after a TTL.
type MemoryCache struct {
	lru *expirable.LRU[string, []float32]
}

// NewMemoryCache returns an LRU holding at most maxEntries vectors. Entries
// expire after ttl; 0 keeps them until evicted.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &MemoryCache{lru: expirable.NewLRU[string, []float32](maxEntries, nil, ttl)}
}

// Get returns a copy of the cached vector.
func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	vec, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), vec...), true, nil
}

// Set stores a copy of vec, evicting the least recently used entry when full.
func (c *MemoryCache) Set(_ context.Context, key string, vec []float32) error {
	c.lru.Add(key, append([]float32(nil), vec...))
	return nil
}

// Len reports the number of cached vectors.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// RedisCache shares query embeddings across service instances.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

// NewRedisCache wraps a Redis client. Keys expire after ttl (0 keeps them).
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "kb:qemb:"}
}

// Get fetches and decodes a vector.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set encodes and stores a vector.
func (c *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	if err := c.client.Set(ctx, c.prefix+key, encodeVector(vec), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, x := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("cached vector has %d bytes, not a multiple of 4", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec, nil
}

// KeyFunc derives a cache key from a model identity and text.
type KeyFunc func(model, text string) string

// CachedEmbedder consults a Cache before calling the wrapped embedder. Cache
// errors are logged and treated as misses.
type CachedEmbedder struct {
	inner  kb.Embedder
	cache  Cache
	key    KeyFunc
	logger *zap.Logger
}

// NewCachedEmbedder wraps inner with cache.
func NewCachedEmbedder(inner kb.Embedder, cache Cache, key KeyFunc, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{inner: inner, cache: cache, key: key, logger: logger.Named("embedding_cache")}
}

// Model returns the wrapped model identity.
func (c *CachedEmbedder) Model() string {
	return c.inner.Model()
}

// Embed returns cached vectors where present and embeds the rest in one call.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := c.inner.Model()
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, text := range texts {
		keys[i] = c.key(model, text)
		vec, ok, err := c.cache.Get(ctx, keys[i])
		if err != nil {
			c.logger.Warn("embedding cache lookup failed", zap.Error(err))
		}
		metrics.ObserveEmbeddingCache(ok)
		if ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", kb.ErrEmbeddingUnavailable, len(vectors), len(missTexts))
	}
	for j, vec := range vectors {
		i := missIdx[j]
		out[i] = vec
		if err := c.cache.Set(ctx, keys[i], vec); err != nil {
			c.logger.Warn("embedding cache store failed", zap.Error(err))
		}
	}
	return out, nil
}
