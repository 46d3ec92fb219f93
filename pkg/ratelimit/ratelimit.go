// Package ratelimit implements the distributed sliding-window rate limiter
// protecting external service quotas. Windows are Redis sorted sets of
// request timestamps, one per service plus one per (service, user), so the
// limits hold across every worker process sharing the Redis instance.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tirandagan/llmflow/pkg/log"
)

const (
	// DefaultPerUserLimit is the per-user request ceiling per window.
	DefaultPerUserLimit = 10
	// DefaultGlobalLimit is the service-wide request ceiling per window.
	DefaultGlobalLimit = 100
	// DefaultWindow is the sliding window length.
	DefaultWindow = time.Hour

	// keyTTLBuffer keeps window keys alive slightly past the window so a
	// straggling check still sees the full set.
	keyTTLBuffer = 60 * time.Second
)

// LimitError reports which limit tripped and when a retry may succeed.
type LimitError struct {
	LimitType  string // "user" or "global"
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s), retry after %d seconds", e.LimitType, int(e.RetryAfter.Seconds()))
}

// Limiter is safe for concurrent use; all coordination happens in Redis.
type Limiter struct {
	client       redis.UniversalClient
	perUserLimit int
	globalLimit  int
	window       time.Duration
	logger       *slog.Logger
}

// New builds a limiter over an existing Redis client. Non-positive limits and
// window fall back to the defaults.
func New(client redis.UniversalClient, perUserLimit, globalLimit int, window time.Duration) *Limiter {
	if perUserLimit <= 0 {
		perUserLimit = DefaultPerUserLimit
	}

	if globalLimit <= 0 {
		globalLimit = DefaultGlobalLimit
	}

	if window <= 0 {
		window = DefaultWindow
	}

	return &Limiter{
		client:       client,
		perUserLimit: perUserLimit,
		globalLimit:  globalLimit,
		window:       window,
		logger:       log.WithModule("ratelimit"),
	}
}

func globalKey(service string) string {
	return "rate_limit:global:" + service
}

func userKey(service, userID string) string {
	return "rate_limit:user:" + service + ":" + userID
}

// Check verifies the request fits both windows, pruning expired entries
// first. It returns a *LimitError naming the tripped limit; the global limit
// is checked before the per-user one. An empty userID skips the user window.
func (l *Limiter) Check(ctx context.Context, service, userID string) error {
	now := time.Now()

	if err := l.checkWindow(ctx, globalKey(service), "global", l.globalLimit, now); err != nil {
		return err
	}

	if userID == "" {
		return nil
	}

	return l.checkWindow(ctx, userKey(service, userID), "user", l.perUserLimit, now)
}

func (l *Limiter) checkWindow(ctx context.Context, key, limitType string, limit int, now time.Time) error {
	windowStart := now.Add(-l.window)

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", formatScore(windowStart))
	count := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to check rate limit window %q: %w", key, err)
	}

	if count.Val() < int64(limit) {
		return nil
	}

	retryAfter := l.window

	oldest, err := l.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		l.logger.Warn("failed to read oldest window entry", "key", key, "error", err)
	} else if len(oldest) > 0 {
		oldestAt := time.Unix(0, int64(oldest[0].Score*float64(time.Second)))
		retryAfter = oldestAt.Add(l.window).Sub(now)
	}

	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	return &LimitError{LimitType: limitType, RetryAfter: retryAfter}
}

// Record appends the request to both windows. Callers invoke it only after a
// successful upstream call so failed requests are not counted against the
// quota. Keys expire a bit past the window to bound Redis memory.
func (l *Limiter) Record(ctx context.Context, service, userID string) error {
	now := time.Now()
	member := strconv.FormatInt(now.UnixNano(), 10)
	entry := redis.Z{Score: scoreOf(now), Member: member}
	ttl := l.window + keyTTLBuffer

	pipe := l.client.Pipeline()
	pipe.ZAdd(ctx, globalKey(service), entry)
	pipe.Expire(ctx, globalKey(service), ttl)

	if userID != "" {
		pipe.ZAdd(ctx, userKey(service, userID), entry)
		pipe.Expire(ctx, userKey(service, userID), ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record rate limit entry for %q: %w", service, err)
	}

	return nil
}

// Remaining reports how many requests are left in each window. The user count
// is -1 when no userID is given.
func (l *Limiter) Remaining(ctx context.Context, service, userID string) (userRemaining, globalRemaining int, err error) {
	now := time.Now()

	globalCount, err := l.windowCount(ctx, globalKey(service), now)
	if err != nil {
		return 0, 0, err
	}

	globalRemaining = max(0, l.globalLimit-int(globalCount))
	userRemaining = -1

	if userID != "" {
		userCount, err := l.windowCount(ctx, userKey(service, userID), now)
		if err != nil {
			return 0, 0, err
		}

		userRemaining = max(0, l.perUserLimit-int(userCount))
	}

	return userRemaining, globalRemaining, nil
}

func (l *Limiter) windowCount(ctx context.Context, key string, now time.Time) (int64, error) {
	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", formatScore(now.Add(-l.window)))
	count := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to count rate limit window %q: %w", key, err)
	}

	return count.Val(), nil
}

// Reset clears the user window when userID is given, otherwise the global
// window. Operator escape hatch, not used by the execution path.
func (l *Limiter) Reset(ctx context.Context, service, userID string) error {
	key := globalKey(service)
	if userID != "" {
		key = userKey(service, userID)
	}

	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit window %q: %w", key, err)
	}

	return nil
}

func scoreOf(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func formatScore(t time.Time) string {
	return strconv.FormatFloat(scoreOf(t), 'f', -1, 64)
}
