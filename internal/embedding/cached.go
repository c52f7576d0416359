package embedding

import (
	"context"
	"fmt"
)

// metrics is the slice of the performance monitor this package needs.
// The interface is defined by the consumer so any recorder satisfying it
// (or nil) can be injected.
type metrics interface {
	RecordCacheHit()
	RecordCacheMiss()
}

// CachedEmbedder fronts an Embedder with a Cache. Per call it serves what
// it can from the cache, then issues exactly one batched provider request
// for the remaining texts. Cache writes happen only after the provider
// call succeeds, so a cancelled or failed request never leaves a dangling
// entry.
type CachedEmbedder struct {
	provider Embedder
	cache    *Cache
	metrics  metrics
}

// NewCachedEmbedder wraps provider with cache. metrics may be nil.
func NewCachedEmbedder(provider Embedder, cache *Cache, m metrics) *CachedEmbedder {
	return &CachedEmbedder{provider: provider, cache: cache, metrics: m}
}

// Dimension reports the underlying provider dimension.
func (e *CachedEmbedder) Dimension() int { return e.provider.Dimension() }

// Cache exposes the underlying cache for stats reporting.
func (e *CachedEmbedder) Cache() *Cache { return e.cache }

// Embed returns one vector per text, same order and length as the input.
// A provider failure aborts the whole batch: no partial vectors are
// returned and no cache entries are written; hits from earlier calls
// remain valid.
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var uncached []string
	var uncachedIdx []int

	for i, text := range texts {
		if vec, ok := e.cache.Get(text); ok {
			vectors[i] = vec
			e.recordHit()
			continue
		}
		uncached = append(uncached, text)
		uncachedIdx = append(uncachedIdx, i)
		e.recordMiss()
	}

	if len(uncached) == 0 {
		return vectors, nil
	}

	fresh, err := e.provider.Embed(ctx, uncached)
	if err != nil {
		return nil, fmt.Errorf("embed %d uncached texts: %w", len(uncached), err)
	}
	if len(fresh) != len(uncached) {
		return nil, fmt.Errorf("%w: requested %d vectors, got %d",
			ErrProviderUnavailable, len(uncached), len(fresh))
	}

	for j, vec := range fresh {
		e.cache.Put(uncached[j], vec)
		vectors[uncachedIdx[j]] = vec
	}

	return vectors, nil
}

func (e *CachedEmbedder) recordHit() {
	if e.metrics != nil {
		e.metrics.RecordCacheHit()
	}
}

func (e *CachedEmbedder) recordMiss() {
	if e.metrics != nil {
		e.metrics.RecordCacheMiss()
	}
}
