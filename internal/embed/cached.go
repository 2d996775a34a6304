package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of embeddings kept in memory.
// Overlapping windows repeat text across chunks, so even a modest
// cache avoids re-embedding shared content on re-runs.
const DefaultCacheSize = 10000

// CachedEmbedder wraps an Embedder with an in-memory LRU cache keyed
// by content hash.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]

	mu     sync.Mutex
	hits   int64
	misses int64
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with an LRU cache of the given size.
// Size <= 0 uses DefaultCacheSize.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// EmbedBatch serves cached vectors where possible and forwards only
// cache misses to the inner embedder, preserving input order.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		key := cacheKey(text)
		if vec, ok := c.cache.Get(key); ok {
			results[i] = vec
			c.count(true)
		} else {
			missTexts = append(missTexts, text)
			missIdx = append(missIdx, i)
			c.count(false)
		}
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for i, vec := range vecs {
		results[missIdx[i]] = vec
		c.cache.Add(cacheKey(missTexts[i]), vec)
	}

	return results, nil
}

// Dimensions returns the inner embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the inner embedder's model identifier.
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// Stats returns cache hit and miss counts.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Close logs cache effectiveness and closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	hits, misses := c.Stats()
	if hits+misses > 0 {
		slog.Debug("embedding cache stats",
			slog.Int64("hits", hits),
			slog.Int64("misses", misses))
	}
	c.cache.Purge()
	return c.inner.Close()
}

func (c *CachedEmbedder) count(hit bool) {
	c.mu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
}

// cacheKey hashes text content to a fixed-size key.
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
