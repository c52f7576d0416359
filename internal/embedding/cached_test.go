package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider returns deterministic vectors derived from the text length
// and tracks batch calls.
type mockProvider struct {
	dimension int
	embedErr  error
	calls     int
	batches   [][]string
}

func (m *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	m.batches = append(m.batches, append([]string(nil), texts...))
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, m.dimension)
		for j := range vec {
			vec[j] = float32(len(text)+j) / 100
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockProvider) Dimension() int { return m.dimension }

// counter satisfies the metrics interface.
type counter struct {
	hits, misses int
}

func (c *counter) RecordCacheHit()  { c.hits++ }
func (c *counter) RecordCacheMiss() { c.misses++ }

func TestCachedEmbedder_Idempotence(t *testing.T) {
	provider := &mockProvider{dimension: 4}
	stats := &counter{}
	e := NewCachedEmbedder(provider, NewCache(time.Hour, 100), stats)

	first, err := e.Embed(context.Background(), []string{"campus library hours"})
	require.NoError(t, err)

	second, err := e.Embed(context.Background(), []string{"campus library hours"})
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls, "second call must be served from cache")
	assert.Equal(t, first, second, "cached vector must equal the original")
	assert.Equal(t, 1, stats.hits)
	assert.Equal(t, 1, stats.misses)
}

func TestCachedEmbedder_SingleBatchForMisses(t *testing.T) {
	provider := &mockProvider{dimension: 4}
	e := NewCachedEmbedder(provider, NewCache(time.Hour, 100), nil)

	// Warm one of three texts.
	_, err := e.Embed(context.Background(), []string{"bb"})
	require.NoError(t, err)

	vectors, err := e.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	// One warm-up call plus exactly one batched call for both misses.
	require.Equal(t, 2, provider.calls)
	assert.Equal(t, []string{"a", "ccc"}, provider.batches[1])

	// Order preserved: vector i corresponds to text i.
	assert.Equal(t, float32(1)/100, vectors[0][0]) // len("a") == 1
	assert.Equal(t, float32(2)/100, vectors[1][0]) // len("bb") == 2
	assert.Equal(t, float32(3)/100, vectors[2][0]) // len("ccc") == 3
}

func TestCachedEmbedder_ProviderFailureAbortsBatch(t *testing.T) {
	provider := &mockProvider{dimension: 4}
	cache := NewCache(time.Hour, 100)
	e := NewCachedEmbedder(provider, cache, nil)

	// Warm one entry, then fail the provider.
	_, err := e.Embed(context.Background(), []string{"warm"})
	require.NoError(t, err)

	provider.embedErr = errors.New("upstream down")
	vectors, err := e.Embed(context.Background(), []string{"warm", "cold"})

	require.Error(t, err)
	assert.Nil(t, vectors, "no partial vectors on provider failure")
	assert.Equal(t, 1, cache.Len(), "failed batch must not write cache entries")

	// The warm entry stays valid.
	_, ok := cache.Get("warm")
	assert.True(t, ok)
}

func TestCachedEmbedder_NoSpeculativeCacheWrite(t *testing.T) {
	provider := &mockProvider{dimension: 4, embedErr: context.Canceled}
	cache := NewCache(time.Hour, 100)
	e := NewCachedEmbedder(provider, cache, nil)

	_, err := e.Embed(context.Background(), []string{"cancelled"})

	require.Error(t, err)
	assert.Equal(t, 0, cache.Len(), "cancelled request must not leave a dangling cache write")
}

func TestCachedEmbedder_EmptyInput(t *testing.T) {
	provider := &mockProvider{dimension: 4}
	e := NewCachedEmbedder(provider, NewCache(time.Hour, 100), nil)

	vectors, err := e.Embed(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Equal(t, 0, provider.calls)
}

func TestCachedEmbedder_AllCachedSkipsProvider(t *testing.T) {
	provider := &mockProvider{dimension: 4}
	e := NewCachedEmbedder(provider, NewCache(time.Hour, 100), nil)

	texts := []string{"one", "two"}
	_, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), texts)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls)
}
