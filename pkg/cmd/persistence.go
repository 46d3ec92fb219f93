package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tirandagan/llmflow/pkg/persistence"
	"github.com/tirandagan/llmflow/pkg/persistence/postgresql"
)

// NewPersistence opens the PostgreSQL repository and runs pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Repository {
	repo, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	if err != nil {
		panic(fmt.Errorf("failed to initialize persistence: %w", err))
	}

	return repo
}

// NewRedisClient connects to Redis from a URL like redis://host:6379/0.
func NewRedisClient(redisURL string) redis.UniversalClient {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to parse redis URL: %w", err))
	}

	return redis.NewClient(opts)
}
