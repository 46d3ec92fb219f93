package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tirandagan/llmflow/pkg/models"
)

const resendBaseURL = "https://api.resend.com"

// EmailNotifier reports permanent webhook failures to an operator address
// through the Resend API.
type EmailNotifier struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	fromEmail string
	toEmail   string
}

// NewEmailNotifier creates a notifier. An empty baseURL targets the Resend
// production API.
func NewEmailNotifier(apiKey, fromEmail, toEmail, baseURL string) *EmailNotifier {
	if baseURL == "" {
		baseURL = resendBaseURL
	}

	return &EmailNotifier{
		client:    &http.Client{Timeout: 10 * time.Second},
		baseURL:   baseURL,
		apiKey:    apiKey,
		fromEmail: fromEmail,
		toEmail:   toEmail,
	}
}

// NotifyWebhookFailure sends the operator alert. The dispatcher treats any
// returned error as best-effort: logged, never propagated to the job.
func (n *EmailNotifier) NotifyWebhookFailure(ctx context.Context, job *models.Job, attempts int, lastError string) error {
	subject := fmt.Sprintf("Webhook delivery failed: %s", job.WorkflowName)
	html := fmt.Sprintf(
		`<h2>Webhook delivery permanently failed</h2>
<p><strong>Job:</strong> %s</p>
<p><strong>Workflow:</strong> %s</p>
<p><strong>Webhook URL:</strong> %s</p>
<p><strong>Attempts:</strong> %d</p>
<p><strong>Last error:</strong> %s</p>`,
		job.ID, job.WorkflowName, job.WebhookURL, attempts, lastError)

	body, err := json.Marshal(map[string]any{
		"from":    n.fromEmail,
		"to":      []string{n.toEmail},
		"subject": subject,
		"html":    html,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+n.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := n.client.Do(request)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("notification rejected with HTTP %d", response.StatusCode)
	}

	return nil
}
