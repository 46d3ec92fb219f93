// Package cache implements the two-level response cache for external service
// calls: a bounded in-process LRU in front of a persistent store, keyed by a
// content hash of the request.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/tirandagan/llmflow/pkg/log"
	"github.com/tirandagan/llmflow/pkg/models"
)

// DefaultTTL applies when a caller does not pass an explicit TTL.
const DefaultTTL = 7 * 24 * time.Hour

// Store is the persistent cache layer. Lookups must already filter out
// expired entries; a miss is (nil, nil).
type Store interface {
	GetCacheEntry(ctx context.Context, service, operation, key string) (*models.CacheEntry, error)
	UpsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error
	RecordCacheHit(ctx context.Context, service, operation, key string, accessedAt time.Time) error
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error)
}

// Manager coordinates the two layers. Safe for concurrent use across runs;
// multiple worker processes share consistency through the store's upserts.
type Manager struct {
	memory     *LRU
	store      Store
	defaultTTL time.Duration
	logger     *slog.Logger
}

// NewManager builds a manager with a bounded in-process layer over the store.
func NewManager(store Store, memoryEntries int, defaultTTL time.Duration) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	return &Manager{
		memory:     NewLRU(memoryEntries),
		store:      store,
		defaultTTL: defaultTTL,
		logger:     log.WithModule("cache"),
	}
}

// Get looks up a cached response for the call, in-process layer first. A
// persistent hit bumps the entry's hit counter, refreshes its last access,
// and backfills the in-process layer. Store failures degrade to a miss; the
// cache never fails a service call.
func (m *Manager) Get(ctx context.Context, service, operation string, params map[string]any) (map[string]any, bool) {
	key, err := Key(service, operation, params)
	if err != nil {
		m.logger.Warn("failed to derive cache key", "service", service, "operation", operation, "error", err)

		return nil, false
	}

	if value, ok := m.memory.Get(key); ok {
		return value, true
	}

	entry, err := m.store.GetCacheEntry(ctx, service, operation, key)
	if err != nil {
		m.logger.Warn("persistent cache lookup failed", "service", service, "operation", operation, "error", err)

		return nil, false
	}

	if entry == nil {
		return nil, false
	}

	if err := m.store.RecordCacheHit(ctx, service, operation, key, time.Now().UTC()); err != nil {
		m.logger.Warn("failed to record cache hit", "service", service, "error", err)
	}

	m.memory.Set(key, entry.ResponseData, entry.ExpiresAt)

	return entry.ResponseData, true
}

// Set writes a response through both layers. A zero ttl uses the default;
// the persistent write is an upsert on (service, operation, key).
func (m *Manager) Set(ctx context.Context, service, operation string, params, response map[string]any, ttl time.Duration) error {
	key, err := Key(service, operation, params)
	if err != nil {
		return err
	}

	if ttl == 0 {
		ttl = m.defaultTTL
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	m.memory.Set(key, response, expiresAt)

	return m.store.UpsertCacheEntry(ctx, &models.CacheEntry{
		ServiceName:   service,
		Operation:     operation,
		CacheKey:      key,
		RequestParams: params,
		ResponseData:  response,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
	})
}

// Sweep deletes expired persistent entries and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	removed, err := m.store.DeleteExpiredCacheEntries(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		m.logger.Info("swept expired cache entries", "removed", removed)
	}

	return removed, nil
}
