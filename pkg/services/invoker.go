package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/tirandagan/llmflow/pkg/log"
)

// ResponseCache is the slice of the cache manager the invoker needs.
type ResponseCache interface {
	Get(ctx context.Context, service, operation string, params map[string]any) (map[string]any, bool)
	Set(ctx context.Context, service, operation string, params, response map[string]any, ttl time.Duration) error
}

// RateLimiter is the slice of the rate limiter the invoker needs.
type RateLimiter interface {
	Check(ctx context.Context, service, userID string) error
	Record(ctx context.Context, service, userID string) error
}

// Invoker executes external-service calls with the shared cross-cutting
// concerns: cache lookup before the call, rate-limit check before the call,
// rate-limit recording and cache write-through after a success. A nil cache
// or limiter disables that concern.
type Invoker struct {
	registry *Registry
	cache    ResponseCache
	limiter  RateLimiter
	logger   *slog.Logger
}

// NewInvoker wires the registry with the cache and limiter.
func NewInvoker(registry *Registry, cache ResponseCache, limiter RateLimiter) *Invoker {
	return &Invoker{
		registry: registry,
		cache:    cache,
		limiter:  limiter,
		logger:   log.WithModule("services"),
	}
}

// Call runs one external-service operation. A cached response skips the rate
// limiter entirely. The limiter records only after a successful upstream
// call, so failures are not charged against the quota. Errors are returned
// raw; the step executor owns their classification.
func (i *Invoker) Call(ctx context.Context, serviceName, operation string, params map[string]any, userID string, cacheTTL time.Duration) (*Response, error) {
	service, err := i.registry.Get(serviceName)
	if err != nil {
		return nil, err
	}

	if !supports(service, operation) {
		return nil, &OperationError{Service: serviceName, Operation: operation, Supported: service.Operations()}
	}

	if i.cache != nil {
		if data, ok := i.cache.Get(ctx, serviceName, operation, params); ok {
			i.logger.Debug("cache hit", "service", serviceName, "operation", operation)

			return &Response{Success: true, Data: data, Cached: true}, nil
		}
	}

	if i.limiter != nil {
		if err := i.limiter.Check(ctx, serviceName, userID); err != nil {
			return nil, err
		}
	}

	data, err := service.Call(ctx, operation, params)
	if err != nil {
		return nil, err
	}

	if i.limiter != nil {
		if err := i.limiter.Record(ctx, serviceName, userID); err != nil {
			i.logger.Warn("failed to record rate limit entry", "service", serviceName, "error", err)
		}
	}

	if i.cache != nil {
		if err := i.cache.Set(ctx, serviceName, operation, params, data, cacheTTL); err != nil {
			i.logger.Warn("failed to cache response", "service", serviceName, "operation", operation, "error", err)
		}
	}

	return &Response{Success: true, Data: data, Cached: false}, nil
}
