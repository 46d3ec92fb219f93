// Package main provides the llmflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/tirandagan/llmflow/pkg/eventbus"
	"github.com/tirandagan/llmflow/pkg/persistence"
	"github.com/tirandagan/llmflow/pkg/web"
	"github.com/tirandagan/llmflow/pkg/workflow"
)

type API struct {
	logger    *slog.Logger
	repo      persistence.Repository
	workflows *workflow.Loader
	eventBus  eventbus.EventBus
	validate  *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	repo persistence.Repository,
	workflows *workflow.Loader,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:    logger,
		repo:      repo,
		workflows: workflows,
		eventBus:  eventBus,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.repo, a.workflows, a.eventBus, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("llmflow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.ListWorkflows)
	w.Get("/:name", handlers.GetWorkflow)
	w.Post("/:name/execute", handlers.ExecuteWorkflow)

	jobs := app.Group("/jobs")
	jobs.Get("/:id", handlers.GetJob)
	jobs.Get("/:id/webhook-attempts", handlers.GetJobWebhookAttempts)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
