package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/tirandagan/llmflow/pkg/cache"
	pkgcmd "github.com/tirandagan/llmflow/pkg/cmd"
	"github.com/tirandagan/llmflow/pkg/config"
	"github.com/tirandagan/llmflow/pkg/engine"
	"github.com/tirandagan/llmflow/pkg/log"
	"github.com/tirandagan/llmflow/pkg/prompt"
	"github.com/tirandagan/llmflow/pkg/ratelimit"
	"github.com/tirandagan/llmflow/pkg/services"
	"github.com/tirandagan/llmflow/pkg/webhook"
	"github.com/tirandagan/llmflow/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "llmflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker to execute workflow jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("llmflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing llmflow worker")

			repo := pkgcmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
			defer func() {
				err := repo.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := pkgcmd.NewEventBus(cfg.EventBus, cfg.KafkaBrokers, "llmflow-worker", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			workflows, err := workflow.NewLoader(cfg.WorkflowsDir)
			if err != nil {
				return err
			}

			prompts, err := prompt.NewLoader(cfg.PromptsDir)
			if err != nil {
				return err
			}

			redisClient := pkgcmd.NewRedisClient(cfg.RedisURL)
			limiter := ratelimit.New(redisClient, cfg.RateLimitPerUser, cfg.RateLimitGlobal, cfg.RateLimitWindow)
			cacheManager := cache.NewManager(repo, cfg.CacheMemoryEntries, cfg.CacheDefaultTTL)
			invoker := services.NewInvoker(pkgcmd.NewServiceRegistry(cfg, logger), cacheManager, limiter)

			runner := engine.New(pkgcmd.NewTextProvider(cfg), prompts, nil, invoker)

			var notifier webhook.Notifier
			if cfg.ResendAPIKey != "" && cfg.NotifyToEmail != "" {
				notifier = webhook.NewEmailNotifier(cfg.ResendAPIKey, cfg.NotifyFromEmail, cfg.NotifyToEmail, "")
			}

			dispatcher := webhook.NewDispatcher(
				webhook.NewSender(cfg.WebhookSecret, cfg.WebhookTimeout),
				repo,
				notifier,
				cfg.WebhookRetryDelays,
			)

			worker := NewWorker(workerID, repo, eventBus, runner, workflows, dispatcher, cacheManager, logger)

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
