package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/llmflow?sslmode=disable")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "workflows/definitions", cfg.WorkflowsDir)
	assert.Equal(t, "workflows/prompts", cfg.PromptsDir)
	assert.Equal(t, "openrouter", cfg.LLMProvider)
	assert.Equal(t, 120*time.Second, cfg.LLMRequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, 3, cfg.WebhookMaxRetries)
	assert.Equal(t, []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}, cfg.WebhookRetryDelays)
	assert.Equal(t, 10, cfg.RateLimitPerUser)
	assert.Equal(t, 100, cfg.RateLimitGlobal)
	assert.Equal(t, time.Hour, cfg.RateLimitWindow)
	assert.Equal(t, 500, cfg.CacheMemoryEntries)
	assert.Equal(t, 7*24*time.Hour, cfg.CacheDefaultTTL)
	assert.Equal(t, "gochannel", cfg.EventBus)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db:5432/llmflow")
	t.Setenv("EVENT_BUS", "kafka")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("WEBHOOK_RETRY_DELAYS", "1s,2s")
	t.Setenv("RATE_LIMIT_PER_USER", "25")
	t.Setenv("CACHE_DEFAULT_TTL", "24h")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "kafka", cfg.EventBus)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, cfg.WebhookRetryDelays)
	assert.Equal(t, 25, cfg.RateLimitPerUser)
	assert.Equal(t, 24*time.Hour, cfg.CacheDefaultTTL)
}

func TestFromEnvRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnvRejectsUnknownEventBus(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db:5432/llmflow")
	t.Setenv("EVENT_BUS", "rabbitmq")

	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db:5432/llmflow")
	t.Setenv("RATE_LIMIT_GLOBAL", "lots")
	t.Setenv("WEBHOOK_TIMEOUT", "soon")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.RateLimitGlobal)
	assert.Equal(t, 30*time.Second, cfg.WebhookTimeout)
}
