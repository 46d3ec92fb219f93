package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirandagan/llmflow/pkg/channels/gochannel"
	"github.com/tirandagan/llmflow/pkg/eventbus"
	"github.com/tirandagan/llmflow/pkg/models"
	"github.com/tirandagan/llmflow/pkg/persistence/memory"
	"github.com/tirandagan/llmflow/pkg/workflow"
)

const testDefinition = `{
	"name": "city-report",
	"version": "1.0.0",
	"steps": [
		{"id": "only", "type": "transform", "config": {"operation": "uppercase", "input": "${input.city}"}}
	]
}`

func setupTestApp(t *testing.T) (*fiber.App, *memory.Repository) {
	t.Helper()

	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "city-report.json"), []byte(testDefinition), 0o600)
	require.NoError(t, err)

	workflows, err := workflow.NewLoader(dir)
	require.NoError(t, err)

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	repo := memory.NewRepository()
	api := NewAPI(slog.Default(), repo, workflows, bus)

	return api.App(), repo
}

func TestAPIRootEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "llmflow API", string(body))
}

func TestAPIListWorkflows(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Workflows []string `json:"workflows"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, []string{"city-report"}, payload.Workflows)
}

func TestAPIExecuteWorkflow(t *testing.T) {
	app, repo := setupTestApp(t)

	body := strings.NewReader(`{"input": {"city": "Seattle"}, "user_id": "user-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/workflows/city-report/execute", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted struct {
		JobID     string `json:"job_id"`
		TaskID    string `json:"task_id"`
		Status    string `json:"status"`
		StatusURL string `json:"status_url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))

	assert.NotEmpty(t, accepted.JobID)
	assert.NotEmpty(t, accepted.TaskID)
	assert.Equal(t, "pending", accepted.Status)
	assert.Equal(t, "/jobs/"+accepted.JobID, accepted.StatusURL)

	job, err := repo.JobByID(t.Context(), accepted.JobID)
	require.NoError(t, err)
	assert.Equal(t, "city-report", job.WorkflowName)
	assert.Equal(t, "user-1", job.UserID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "Seattle", job.InputData["city"])
}

func TestAPIExecuteUnknownWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/workflows/nope/execute", strings.NewReader(`{"input": {}}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIExecuteInvalidWebhookURL(t *testing.T) {
	app, _ := setupTestApp(t)

	body := strings.NewReader(`{"input": {}, "webhook_url": "not a url"}`)
	req := httptest.NewRequest(http.MethodPost, "/workflows/city-report/execute", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIGetJob(t *testing.T) {
	app, repo := setupTestApp(t)

	job := models.NewJob("city-report", map[string]any{"city": "Seattle"})
	job.Status = models.JobStatusCompleted
	job.ResultData = map[string]any{"output": "SEATTLE"}
	job.DurationMS = 42
	require.NoError(t, repo.SaveJob(t.Context(), job))

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		JobID      string         `json:"job_id"`
		Status     string         `json:"status"`
		Result     map[string]any `json:"result"`
		DurationMS int64          `json:"duration_ms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

	assert.Equal(t, job.ID, payload.JobID)
	assert.Equal(t, "completed", payload.Status)
	assert.Equal(t, "SEATTLE", payload.Result["output"])
	assert.Equal(t, int64(42), payload.DurationMS)
}

func TestAPIGetJobRunningProgress(t *testing.T) {
	app, repo := setupTestApp(t)

	job := models.NewJob("city-report", map[string]any{"city": "Seattle"})
	job.Status = models.JobStatusRunning
	require.NoError(t, repo.SaveJob(t.Context(), job))
	require.NoError(t, repo.UpdateJobProgress(t.Context(), job.ID,
		&models.Progress{CurrentStep: "uppercase_city", StepsCompleted: 1, TotalSteps: 1}))

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Status   string           `json:"status"`
		Progress *models.Progress `json:"progress"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

	assert.Equal(t, "running", payload.Status)
	require.NotNil(t, payload.Progress)
	assert.Equal(t, "uppercase_city", payload.Progress.CurrentStep)
	assert.Equal(t, 1, payload.Progress.StepsCompleted)
	assert.Equal(t, 1, payload.Progress.TotalSteps)
}

func TestAPIGetJobNotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIWebhookAttemptLog(t *testing.T) {
	app, repo := setupTestApp(t)

	job := models.NewJob("city-report", nil)
	require.NoError(t, repo.SaveJob(t.Context(), job))

	next := time.Now().UTC().Add(5 * time.Second)
	require.NoError(t, repo.RecordWebhookAttempt(t.Context(), &models.WebhookAttempt{
		ID:            "attempt-1",
		JobID:         job.ID,
		AttemptNumber: 1,
		WebhookURL:    "https://example.com/hook",
		HTTPStatus:    502,
		ErrorMessage:  "HTTP 502: bad gateway",
		DurationMS:    120,
		AttemptedAt:   time.Now().UTC(),
		NextRetryAt:   &next,
	}))

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/webhook-attempts", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		JobID    string `json:"job_id"`
		Attempts []struct {
			AttemptNumber int    `json:"attempt_number"`
			HTTPStatus    int    `json:"http_status"`
			ErrorMessage  string `json:"error_message"`
		} `json:"attempts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

	assert.Equal(t, job.ID, payload.JobID)
	require.Len(t, payload.Attempts, 1)
	assert.Equal(t, 1, payload.Attempts[0].AttemptNumber)
	assert.Equal(t, 502, payload.Attempts[0].HTTPStatus)
	assert.Contains(t, payload.Attempts[0].ErrorMessage, "502")
}
