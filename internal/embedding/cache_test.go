package embedding

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetPut(t *testing.T) {
	c := NewCache(time.Hour, 10)

	_, ok := c.Get("hello")
	assert.False(t, ok, "empty cache should miss")

	c.Put("hello", []float32{1, 2, 3})

	vec, ok := c.Get("hello")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := NewCache(time.Minute, 10)

	clock := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Put("hello", []float32{1})

	_, ok := c.Get("hello")
	assert.True(t, ok, "fresh entry should hit")

	clock = clock.Add(time.Minute)
	_, ok = c.Get("hello")
	assert.False(t, ok, "entry at TTL age is treated as absent")
}

func TestCache_RefreshResetsAge(t *testing.T) {
	c := NewCache(time.Minute, 10)

	clock := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Put("hello", []float32{1})
	clock = clock.Add(30 * time.Second)
	c.Put("hello", []float32{2})
	clock = clock.Add(45 * time.Second)

	// 75s after the first write but only 45s after the refresh.
	vec, ok := c.Get("hello")
	require.True(t, ok)
	assert.Equal(t, []float32{2}, vec)
}

func TestCache_CapacityBound(t *testing.T) {
	const maxEntries = 8
	c := NewCache(time.Hour, maxEntries)

	clock := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	for i := 0; i < 50; i++ {
		clock = clock.Add(time.Second)
		c.Put(fmt.Sprintf("text-%d", i), []float32{float32(i)})
		assert.LessOrEqual(t, c.Len(), maxEntries,
			"cache must never exceed its entry limit")
	}
}

func TestCache_EvictsOldestFirst(t *testing.T) {
	c := NewCache(time.Hour, 2)

	clock := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Put("oldest", []float32{0})
	clock = clock.Add(time.Second)
	c.Put("middle", []float32{1})
	clock = clock.Add(time.Second)
	c.Put("newest", []float32{2})

	_, ok := c.Get("oldest")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("middle")
	assert.True(t, ok)
	_, ok = c.Get("newest")
	assert.True(t, ok)
}

func TestCache_ExpiredEvictedBeforeLive(t *testing.T) {
	c := NewCache(time.Minute, 2)

	clock := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Put("expired", []float32{0})
	clock = clock.Add(2 * time.Minute)
	c.Put("live-a", []float32{1})
	clock = clock.Add(time.Second)
	c.Put("live-b", []float32{2})

	_, ok := c.Get("live-a")
	assert.True(t, ok, "live entry must survive while an expired one exists")
	_, ok = c.Get("live-b")
	assert.True(t, ok)
}

func TestCache_Purge(t *testing.T) {
	c := NewCache(time.Hour, 10)
	c.Put("a", []float32{1})
	c.Put("b", []float32{2})

	c.Purge()

	assert.Equal(t, 0, c.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache(time.Hour, 64)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("text-%d", i%32)
				c.Put(key, []float32{float32(g)})
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}

func TestKey_Stable(t *testing.T) {
	assert.Equal(t, Key("hello"), Key("hello"))
	assert.NotEqual(t, Key("hello"), Key("hello "))
}
