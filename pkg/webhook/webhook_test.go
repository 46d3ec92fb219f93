package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirandagan/llmflow/pkg/models"
)

func TestSignReproducible(t *testing.T) {
	payload := []byte(`{"event":"workflow.completed","job_id":"j-1"}`)

	first := Sign(payload, "secret")
	second := Sign(payload, "secret")

	assert.Equal(t, first, second)
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, first)
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"event":"workflow.completed"}`)
	signature := Sign(payload, "secret")

	assert.True(t, Verify(payload, signature, "secret"))
	assert.False(t, Verify(payload, signature, "other-secret"))
	assert.False(t, Verify(payload, "md5=abc", "secret"))

	// Any byte flip in the payload invalidates the signature.
	flipped := append([]byte(nil), payload...)
	flipped[0] ^= 0x01
	assert.False(t, Verify(flipped, signature, "secret"))
}

func TestSenderSignsExactBytesSent(t *testing.T) {
	var (
		receivedBody      []byte
		receivedSignature string
		receivedEvent     string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedBody, _ = io.ReadAll(r.Body)
		receivedSignature = r.Header.Get("X-Webhook-Signature")
		receivedEvent = r.Header.Get("X-Webhook-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSender("default-secret", time.Second)

	payload := map[string]any{"zebra": "last", "alpha": "first", "event": "workflow.completed"}

	delivery, err := sender.Send(context.Background(), server.URL, EventWorkflowCompleted, payload, "job-secret")
	require.NoError(t, err)
	require.True(t, delivery.Success)

	assert.Equal(t, "workflow.completed", receivedEvent)
	assert.Equal(t, delivery.Payload, receivedBody)
	assert.True(t, Verify(receivedBody, receivedSignature, "job-secret"))

	// Canonical form sorts keys.
	assert.Equal(t, `{"alpha":"first","event":"workflow.completed","zebra":"last"}`, string(receivedBody))
}

func TestSenderFallsBackToDefaultSecret(t *testing.T) {
	var receivedSignature string
	var receivedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedBody, _ = io.ReadAll(r.Body)
		receivedSignature = r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewSender("default-secret", time.Second)

	delivery, err := sender.Send(context.Background(), server.URL, EventWorkflowCompleted, map[string]any{"a": 1}, "")
	require.NoError(t, err)
	assert.True(t, delivery.Success)
	assert.True(t, Verify(receivedBody, receivedSignature, "default-secret"))
}

type memoryStore struct {
	mu                sync.Mutex
	jobs              map[string]*models.Job
	attempts          []*models.WebhookAttempt
	permanentlyFailed map[string]bool
}

func newMemoryStore(jobs ...*models.Job) *memoryStore {
	store := &memoryStore{
		jobs:              make(map[string]*models.Job),
		permanentlyFailed: make(map[string]bool),
	}
	for _, job := range jobs {
		store.jobs[job.ID] = job
	}

	return store
}

func (s *memoryStore) JobByID(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.jobs[id], nil
}

func (s *memoryStore) RecordWebhookAttempt(_ context.Context, attempt *models.WebhookAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)

	return nil
}

func (s *memoryStore) MarkWebhookPermanentlyFailed(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permanentlyFailed[jobID] = true

	return nil
}

type recordingNotifier struct {
	notified  bool
	attempts  int
	lastError string
}

func (n *recordingNotifier) NotifyWebhookFailure(_ context.Context, _ *models.Job, attempts int, lastError string) error {
	n.notified = true
	n.attempts = attempts
	n.lastError = lastError

	return nil
}

func testJob(url string) *models.Job {
	return &models.Job{
		ID:            "job-1",
		WorkflowName:  "places-report",
		Status:        models.JobStatusCompleted,
		WebhookURL:    url,
		WebhookSecret: "job-secret",
		ResultData: map[string]any{
			"output": "done",
			"metadata": map[string]any{
				"total_tokens":   float64(30),
				"total_cost_usd": 0.0015,
			},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestDispatcherDeliversFirstAttempt(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemoryStore(testJob(server.URL))
	dispatcher := NewDispatcher(NewSender("default", time.Second), store, nil, []time.Duration{0, 0, 0})

	err := dispatcher.Deliver(context.Background(), "job-1", EventWorkflowCompleted, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	require.Len(t, store.attempts, 1)
	assert.Equal(t, 1, store.attempts[0].AttemptNumber)
	assert.Equal(t, http.StatusOK, store.attempts[0].HTTPStatus)
	assert.Nil(t, store.attempts[0].NextRetryAt)
	assert.False(t, store.permanentlyFailed["job-1"])
}

func TestDispatcherRetriesThenSucceeds(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemoryStore(testJob(server.URL))
	dispatcher := NewDispatcher(NewSender("default", time.Second), store, nil, []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond})

	err := dispatcher.Deliver(context.Background(), "job-1", EventWorkflowCompleted, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	require.Len(t, store.attempts, 3)
	assert.NotNil(t, store.attempts[0].NextRetryAt)
	assert.NotNil(t, store.attempts[1].NextRetryAt)
	assert.Nil(t, store.attempts[2].NextRetryAt)
	assert.False(t, store.permanentlyFailed["job-1"])
}

func TestDispatcherExhaustsAttempts(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newMemoryStore(testJob(server.URL))
	notifier := &recordingNotifier{}
	dispatcher := NewDispatcher(NewSender("default", time.Second), store, notifier, []time.Duration{0, 0, 0})

	err := dispatcher.Deliver(context.Background(), "job-1", EventWorkflowCompleted, nil)
	require.ErrorIs(t, err, ErrPermanentlyFailed)

	// Three retries on top of the initial attempt.
	assert.Equal(t, 4, calls)
	assert.Len(t, store.attempts, 4)
	assert.True(t, store.permanentlyFailed["job-1"])
	assert.True(t, notifier.notified)
	assert.Equal(t, 4, notifier.attempts)
	assert.Contains(t, notifier.lastError, "500")
}

func TestDispatcherSkipsJobWithoutURL(t *testing.T) {
	job := testJob("")
	store := newMemoryStore(job)
	dispatcher := NewDispatcher(NewSender("default", time.Second), store, nil, []time.Duration{0})

	err := dispatcher.Deliver(context.Background(), "job-1", EventWorkflowCompleted, nil)
	require.NoError(t, err)
	assert.Empty(t, store.attempts)
}

func TestDispatcherSkipsPermanentlyFailedJob(t *testing.T) {
	job := testJob("http://example.invalid/webhook")
	job.WebhookPermanentlyFailed = true
	store := newMemoryStore(job)
	dispatcher := NewDispatcher(NewSender("default", time.Second), store, nil, []time.Duration{0})

	err := dispatcher.Deliver(context.Background(), "job-1", EventWorkflowCompleted, nil)
	require.NoError(t, err)
	assert.Empty(t, store.attempts)
}

func TestBuildPayloadFailed(t *testing.T) {
	job := testJob("http://example.com/hook")
	job.Status = models.JobStatusFailed
	job.ErrorMessage = "step \"lookup\" failed: unknown service"
	job.ResultData = map[string]any{
		"metadata": map[string]any{
			"error_context": map[string]any{
				"category":  "CONFIG_ERROR",
				"retryable": false,
			},
		},
	}

	payload, err := BuildPayload(job, EventWorkflowFailed, nil)
	require.NoError(t, err)

	assert.Equal(t, "workflow.failed", payload["event"])
	assert.Equal(t, "failed", payload["status"])
	assert.Equal(t, job.ErrorMessage, payload["error_message"])

	errorContext, ok := payload["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CONFIG_ERROR", errorContext["category"])
}

func TestBuildPayloadCompletedCostData(t *testing.T) {
	payload, err := BuildPayload(testJob("http://example.com/hook"), EventWorkflowCompleted, nil)
	require.NoError(t, err)

	costData, ok := payload["cost_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(30), costData["total_tokens"])
	assert.Equal(t, 0.0015, costData["total_cost_usd"])
}

func TestBuildPayloadUnknownEvent(t *testing.T) {
	_, err := BuildPayload(testJob(""), Event("workflow.unknown"), nil)
	require.Error(t, err)
}
