package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	pkgcmd "github.com/tirandagan/llmflow/pkg/cmd"
	"github.com/tirandagan/llmflow/pkg/config"
	"github.com/tirandagan/llmflow/pkg/log"
	"github.com/tirandagan/llmflow/pkg/workflow"
)

const defaultPort = 9090

func main() {
	command := &cli.Command{
		Name:                  "llmflow-api",
		Usage:                 "Submit and poll workflow jobs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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

			logger := log.WithModule("llmflow-api")

			logger.InfoContext(ctx, "Initializing llmflow API")

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			repo := pkgcmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
			defer func() {
				err := repo.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := pkgcmd.NewEventBus(cfg.EventBus, cfg.KafkaBrokers, "llmflow-api", logger)
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

			api := NewAPI(logger, repo, workflows, eventBus)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
