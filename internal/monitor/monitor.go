// Package monitor records retrieval-engine performance samples in a
// fixed-capacity ring buffer and aggregates them on demand.
//
// The ring silently overwrites the oldest sample at capacity: bounded
// memory is traded for historical completeness. Statistics are computed
// from the current ring contents at snapshot time rather than accumulated
// incrementally, keeping the implementation inspectable.
package monitor

import (
	"sort"
	"sync"
	"time"
)

// Latency categories used across the engine. Callers may record their own
// category strings; these are the ones the orchestrator emits.
const (
	CategoryEmbedding = "embedding"
	CategorySearch    = "search"
	CategoryIngest    = "ingest"
	CategoryRetrieve  = "retrieve"
	CategoryChat      = "chat"
)

// Sample is a single recorded latency observation.
type Sample struct {
	Elapsed  time.Duration
	Category string
	At       time.Time
}

// CategoryStats aggregates the samples of one category currently in the
// ring.
type CategoryStats struct {
	Count int           `json:"count"`
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	P95   time.Duration `json:"p95"`
}

// Snapshot is a point-in-time aggregation of everything the monitor holds.
type Snapshot struct {
	Latencies  map[string]CategoryStats `json:"latencies"`
	CacheHits  uint64                   `json:"cache_hits"`
	CacheMiss  uint64                   `json:"cache_misses"`
	Errors     map[string]uint64        `json:"errors"`
	Samples    int                      `json:"samples"`
	Capacity   int                      `json:"capacity"`
	Uptime     time.Duration            `json:"uptime"`
	SnapshotAt time.Time                `json:"snapshot_at"`
}

// HitRate returns the cache hit ratio in [0, 1], or 0 with no lookups.
func (s Snapshot) HitRate() float64 {
	total := s.CacheHits + s.CacheMiss
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// Monitor is a thread-safe performance recorder. All mutating operations
// take a single mutex; contention is negligible next to the network calls
// being measured.
type Monitor struct {
	mu        sync.Mutex
	ring      []Sample
	next      int
	filled    bool
	cacheHits uint64
	cacheMiss uint64
	errors    map[string]uint64
	started   time.Time

	// now is swappable in tests.
	now func() time.Time
}

// New creates a Monitor holding at most capacity latency samples.
func New(capacity int) *Monitor {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Monitor{
		ring:    make([]Sample, capacity),
		errors:  make(map[string]uint64),
		started: time.Now(),
		now:     time.Now,
	}
}

// RecordLatency stores one latency observation, overwriting the oldest
// sample once the ring is full.
func (m *Monitor) RecordLatency(elapsed time.Duration, category string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ring[m.next] = Sample{Elapsed: elapsed, Category: category, At: m.now()}
	m.next++
	if m.next == len(m.ring) {
		m.next = 0
		m.filled = true
	}
}

// RecordCacheHit increments the embedding-cache hit counter.
func (m *Monitor) RecordCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

// RecordCacheMiss increments the embedding-cache miss counter.
func (m *Monitor) RecordCacheMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMiss++
}

// RecordError counts one error of the given kind.
func (m *Monitor) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

// Snapshot aggregates the current ring contents and counters.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byCategory := make(map[string][]time.Duration)
	count := m.next
	if m.filled {
		count = len(m.ring)
	}
	for i := 0; i < count; i++ {
		s := m.ring[i]
		byCategory[s.Category] = append(byCategory[s.Category], s.Elapsed)
	}

	latencies := make(map[string]CategoryStats, len(byCategory))
	for category, values := range byCategory {
		latencies[category] = aggregate(values)
	}

	errs := make(map[string]uint64, len(m.errors))
	for k, v := range m.errors {
		errs[k] = v
	}

	now := m.now()
	return Snapshot{
		Latencies:  latencies,
		CacheHits:  m.cacheHits,
		CacheMiss:  m.cacheMiss,
		Errors:     errs,
		Samples:    count,
		Capacity:   len(m.ring),
		Uptime:     now.Sub(m.started),
		SnapshotAt: now,
	}
}

func aggregate(values []time.Duration) CategoryStats {
	sorted := append([]time.Duration(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, v := range sorted {
		sum += v
	}

	// Nearest-rank p95.
	rank := (len(sorted)*95 + 99) / 100
	if rank < 1 {
		rank = 1
	}

	return CategoryStats{
		Count: len(sorted),
		Avg:   sum / time.Duration(len(sorted)),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P95:   sorted[rank-1],
	}
}
