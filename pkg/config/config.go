// Package config provides environment-driven configuration for the service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds service-level settings shared across commands. Command-specific
// settings (worker id, ports) stay on the CLI flags.
type Config struct {
	DatabaseURL string `validate:"required"`
	RedisURL    string `validate:"required"`

	WorkflowsDir string `validate:"required"`
	PromptsDir   string `validate:"required"`

	OpenRouterAPIKey  string
	GooglePlacesKey   string
	WeatherAPIKey     string
	LLMProvider       string `validate:"required"`
	LLMRequestTimeout time.Duration

	WebhookSecret      string
	WebhookTimeout     time.Duration
	WebhookMaxRetries  int           `validate:"gte=0"`
	WebhookRetryDelays []time.Duration

	RateLimitPerUser int `validate:"gt=0"`
	RateLimitGlobal  int `validate:"gt=0"`
	RateLimitWindow  time.Duration

	CacheMemoryEntries int `validate:"gt=0"`
	CacheDefaultTTL    time.Duration

	EventBus     string `validate:"oneof=gochannel kafka"`
	KafkaBrokers []string

	ResendAPIKey    string
	NotifyFromEmail string
	NotifyToEmail   string
}

// FromEnv builds a Config from environment variables, applying defaults for
// everything the deployment does not override.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		WorkflowsDir:       getEnv("WORKFLOWS_DIR", "workflows/definitions"),
		PromptsDir:         getEnv("PROMPTS_DIR", "workflows/prompts"),
		OpenRouterAPIKey:   os.Getenv("OPENROUTER_API_KEY"),
		GooglePlacesKey:    os.Getenv("GOOGLE_PLACES_API_KEY"),
		WeatherAPIKey:      os.Getenv("WEATHERAPI_KEY"),
		LLMProvider:        getEnv("LLM_PROVIDER", "openrouter"),
		LLMRequestTimeout:  getEnvDuration("LLM_REQUEST_TIMEOUT", 120*time.Second),
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeout:     getEnvDuration("WEBHOOK_TIMEOUT", 30*time.Second),
		WebhookMaxRetries:  getEnvInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookRetryDelays: parseDelays(getEnv("WEBHOOK_RETRY_DELAYS", "5s,15s,45s")),
		RateLimitPerUser:   getEnvInt("RATE_LIMIT_PER_USER", 10),
		RateLimitGlobal:    getEnvInt("RATE_LIMIT_GLOBAL", 100),
		RateLimitWindow:    getEnvDuration("RATE_LIMIT_WINDOW", time.Hour),
		CacheMemoryEntries: getEnvInt("CACHE_MEMORY_ENTRIES", 500),
		CacheDefaultTTL:    getEnvDuration("CACHE_DEFAULT_TTL", 7*24*time.Hour),
		EventBus:           getEnv("EVENT_BUS", "gochannel"),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		ResendAPIKey:       os.Getenv("RESEND_API_KEY"),
		NotifyFromEmail:    os.Getenv("NOTIFY_FROM_EMAIL"),
		NotifyToEmail:      os.Getenv("NOTIFY_TO_EMAIL"),
	}

	err := validator.New().Struct(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}

	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}

	return parsed
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}

	return values
}

func parseDelays(raw string) []time.Duration {
	parts := strings.Split(raw, ",")
	delays := make([]time.Duration, 0, len(parts))

	for _, part := range parts {
		parsed, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			continue
		}

		delays = append(delays, parsed)
	}

	return delays
}
