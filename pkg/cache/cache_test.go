package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirandagan/llmflow/pkg/models"
)

func TestKeyOrderIndependence(t *testing.T) {
	first, err := Key("google_places", "nearby_search", map[string]any{
		"location": "47.6,-122.3",
		"radius":   500,
		"type":     "hospital",
	})
	require.NoError(t, err)

	second, err := Key("google_places", "nearby_search", map[string]any{
		"type":     "hospital",
		"location": "47.6,-122.3",
		"radius":   500,
	})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestKeyValueSensitivity(t *testing.T) {
	base := map[string]any{"location": "47.6,-122.3", "radius": 500}

	first, err := Key("google_places", "nearby_search", base)
	require.NoError(t, err)

	changed, err := Key("google_places", "nearby_search", map[string]any{"location": "47.6,-122.3", "radius": 501})
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)

	otherOp, err := Key("google_places", "text_search", base)
	require.NoError(t, err)
	assert.NotEqual(t, first, otherOp)
}

func TestLRUEviction(t *testing.T) {
	lru := NewLRU(3)
	expiry := time.Now().Add(time.Hour)

	lru.Set("k1", map[string]any{"v": 1}, expiry)
	lru.Set("k2", map[string]any{"v": 2}, expiry)
	lru.Set("k3", map[string]any{"v": 3}, expiry)
	lru.Set("k4", map[string]any{"v": 4}, expiry)

	_, ok := lru.Get("k1")
	assert.False(t, ok, "oldest entry must be evicted")

	for _, key := range []string{"k2", "k3", "k4"} {
		_, ok := lru.Get(key)
		assert.True(t, ok, key)
	}
}

func TestLRUAccessReordersEviction(t *testing.T) {
	lru := NewLRU(3)
	expiry := time.Now().Add(time.Hour)

	lru.Set("k1", map[string]any{"v": 1}, expiry)
	lru.Set("k2", map[string]any{"v": 2}, expiry)
	lru.Set("k3", map[string]any{"v": 3}, expiry)

	_, ok := lru.Get("k1")
	require.True(t, ok)

	lru.Set("k4", map[string]any{"v": 4}, expiry)

	_, ok = lru.Get("k2")
	assert.False(t, ok, "k2 became least recently used after k1 was touched")

	_, ok = lru.Get("k1")
	assert.True(t, ok)
}

func TestLRUExpiry(t *testing.T) {
	lru := NewLRU(3)

	lru.Set("stale", map[string]any{"v": 1}, time.Now().Add(-time.Minute))

	_, ok := lru.Get("stale")
	assert.False(t, ok)
	assert.Zero(t, lru.Len())
}

func TestLRUConcurrentAccess(t *testing.T) {
	lru := NewLRU(16)
	expiry := time.Now().Add(time.Hour)

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func(worker int) {
			defer wg.Done()

			keys := []string{"a", "b", "c", "d"}
			for j := 0; j < 200; j++ {
				key := keys[(worker+j)%len(keys)]
				lru.Set(key, map[string]any{"worker": worker}, expiry)
				lru.Get(key)
			}
		}(i)
	}

	wg.Wait()
}

type fakeStore struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
	hits    map[string]int
	getErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: make(map[string]*models.CacheEntry),
		hits:    make(map[string]int),
	}
}

func (s *fakeStore) GetCacheEntry(_ context.Context, service, operation, key string) (*models.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return nil, s.getErr
	}

	entry, ok := s.entries[service+"|"+operation+"|"+key]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return nil, nil
	}

	return entry, nil
}

func (s *fakeStore) UpsertCacheEntry(_ context.Context, entry *models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.ServiceName+"|"+entry.Operation+"|"+entry.CacheKey] = entry

	return nil
}

func (s *fakeStore) RecordCacheHit(_ context.Context, service, operation, key string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hits[service+"|"+operation+"|"+key]++

	return nil
}

func (s *fakeStore) DeleteExpiredCacheEntries(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64

	for key, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			delete(s.entries, key)
			removed++
		}
	}

	return removed, nil
}

func TestManagerWriteThroughAndMemoryHit(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(store, 10, time.Hour)
	params := map[string]any{"location": "47.6,-122.3"}
	response := map[string]any{"results": []any{"Harborview"}}

	require.NoError(t, manager.Set(context.Background(), "google_places", "nearby_search", params, response, 0))

	got, ok := manager.Get(context.Background(), "google_places", "nearby_search", params)
	require.True(t, ok)
	assert.Equal(t, response, got)

	key, err := Key("google_places", "nearby_search", params)
	require.NoError(t, err)
	assert.Zero(t, store.hits["google_places|nearby_search|"+key], "memory hit must not touch the store")
}

func TestManagerPersistentHitBackfills(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(store, 10, time.Hour)
	params := map[string]any{"q": "urgent care"}
	response := map[string]any{"results": []any{}}

	require.NoError(t, manager.Set(context.Background(), "google_places", "text_search", params, response, time.Hour))

	// Fresh manager simulates another worker process with a cold memory layer.
	other := NewManager(store, 10, time.Hour)

	got, ok := other.Get(context.Background(), "google_places", "text_search", params)
	require.True(t, ok)
	assert.Equal(t, response, got)

	key, err := Key("google_places", "text_search", params)
	require.NoError(t, err)
	assert.Equal(t, 1, store.hits["google_places|text_search|"+key])

	// Backfilled: a second read is a memory hit and does not bump the counter.
	_, ok = other.Get(context.Background(), "google_places", "text_search", params)
	require.True(t, ok)
	assert.Equal(t, 1, store.hits["google_places|text_search|"+key])
}

func TestManagerStoreFailureIsAMiss(t *testing.T) {
	store := newFakeStore()
	store.getErr = assert.AnError
	manager := NewManager(store, 10, time.Hour)

	_, ok := manager.Get(context.Background(), "weatherapi", "current", map[string]any{"q": "Seattle"})
	assert.False(t, ok)
}

func TestManagerSweep(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(store, 10, time.Hour)

	require.NoError(t, manager.Set(context.Background(), "weatherapi", "current", map[string]any{"q": "a"}, map[string]any{}, time.Hour))
	require.NoError(t, manager.Set(context.Background(), "weatherapi", "current", map[string]any{"q": "b"}, map[string]any{}, -time.Minute))

	removed, err := manager.Sweep(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}
