// Package web provides the HTTP handlers for submitting and polling workflow jobs.
package web

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/tirandagan/llmflow/pkg/eventbus"
	"github.com/tirandagan/llmflow/pkg/events"
	"github.com/tirandagan/llmflow/pkg/models"
	"github.com/tirandagan/llmflow/pkg/persistence"
	"github.com/tirandagan/llmflow/pkg/workflow"
)

type APIHandlers struct {
	repo      persistence.Repository
	workflows *workflow.Loader
	eventBus  eventbus.EventBus
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	repo persistence.Repository,
	workflows *workflow.Loader,
	eventBus eventbus.EventBus,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		repo:      repo,
		workflows: workflows,
		eventBus:  eventBus,
		validator: validator,
		logger:    logger,
	}
}

// ListWorkflows returns the names of the deployable workflow definitions.
func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	names, err := h.workflows.Names()
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": names})
}

// GetWorkflow returns one workflow definition.
func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	name := c.Params("name")

	definition, err := h.workflows.Load(name)
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) || errors.Is(err, workflow.ErrUnsafeName) {
			return notFound(c, "workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(definition)
}

// ExecuteWorkflow accepts a job for asynchronous execution and returns 202
// with the URL to poll.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	name := c.Params("name")

	definition, err := h.workflows.Load(name)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrWorkflowNotFound), errors.Is(err, workflow.ErrUnsafeName):
			return notFound(c, "workflow not found")
		case errors.Is(err, workflow.ErrInvalidDefinition):
			return badRequest(c, err.Error())
		default:
			return internalError(c, err)
		}
	}

	var req ExecuteRequest

	err = c.Bind().JSON(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = h.validator.Struct(&req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	job := models.NewJob(definition.Name, req.Input)
	job.UserID = req.UserID
	job.WebhookURL = req.WebhookURL
	job.WebhookSecret = req.WebhookSecret
	job.DebugMode = req.DebugMode

	submitted := events.JobSubmitted{
		BaseEvent:    events.NewBaseEvent(events.JobSubmittedEvent, job.ID),
		WorkflowName: job.WorkflowName,
		Input:        job.InputData,
		UserID:       job.UserID,
		DebugMode:    job.DebugMode,
	}
	job.TaskID = submitted.ID

	err = h.repo.SaveJob(c.Context(), job)
	if err != nil {
		return internalError(c, err)
	}

	err = h.eventBus.Publish(c.Context(), job.ID, submitted)
	if err != nil {
		h.logger.Error("Failed to publish job submitted event", "job_id", job.ID, "error", err)

		return internalError(c, err)
	}

	h.logger.Info("Job accepted", "job_id", job.ID, "workflow_name", job.WorkflowName)

	return c.Status(fiber.StatusAccepted).JSON(ExecuteResponse{
		JobID:     job.ID,
		TaskID:    job.TaskID,
		Status:    string(job.Status),
		StatusURL: "/jobs/" + job.ID,
	})
}

// GetJob returns the current state of a job, including the result once the
// run finished.
func (h *APIHandlers) GetJob(c fiber.Ctx) error {
	job, err := h.repo.JobByID(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, persistence.ErrJobNotFound) {
			return notFound(c, "job not found")
		}

		return internalError(c, err)
	}

	return c.JSON(newJobResponse(job))
}

// GetJobWebhookAttempts returns the immutable webhook delivery log of a job.
func (h *APIHandlers) GetJobWebhookAttempts(c fiber.Ctx) error {
	jobID := c.Params("id")

	_, err := h.repo.JobByID(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, persistence.ErrJobNotFound) {
			return notFound(c, "job not found")
		}

		return internalError(c, err)
	}

	attempts, err := h.repo.WebhookAttempts(c.Context(), jobID)
	if err != nil {
		return internalError(c, err)
	}

	responses := make([]WebhookAttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		responses = append(responses, newWebhookAttemptResponse(attempt))
	}

	return c.JSON(fiber.Map{"job_id": jobID, "attempts": responses})
}

// HealthCheck reports persistence connectivity.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.repo.HealthCheck(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
