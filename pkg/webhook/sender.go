package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tirandagan/llmflow/pkg/canonjson"
)

const (
	// DefaultTimeout bounds one delivery attempt end to end.
	DefaultTimeout = 30 * time.Second

	responseBodyLimit = 1000
	userAgent         = "llmflow/1.0"
)

// Delivery is the outcome of one attempt against the receiver. A non-2xx
// response is a completed (unsuccessful) delivery, not an error; errors are
// transport failures where no status was received.
type Delivery struct {
	Success    bool
	HTTPStatus int
	Body       string
	Payload    []byte
	DurationMS int64
}

// Sender posts signed payloads to receiver URLs.
type Sender struct {
	client        *http.Client
	defaultSecret string
}

// NewSender creates a sender. The default secret signs deliveries for jobs
// that did not supply their own.
func NewSender(defaultSecret string, timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Sender{
		client:        &http.Client{Timeout: timeout},
		defaultSecret: defaultSecret,
	}
}

// Send serializes the payload canonically, signs the serialized bytes, and
// posts those exact bytes. Re-serializing between signing and sending would
// break signature verification at the receiver.
func (s *Sender) Send(ctx context.Context, url string, event Event, payload map[string]any, secret string) (*Delivery, error) {
	if secret == "" {
		secret = s.defaultSecret
	}

	body, err := canonjson.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize webhook payload: %w", err)
	}

	signature := Sign(body, secret)

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("X-Webhook-Signature", signature)
	request.Header.Set("X-Webhook-Event", string(event))
	request.Header.Set("User-Agent", userAgent)

	start := time.Now()

	response, err := s.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed after %dms: %w", time.Since(start).Milliseconds(), err)
	}
	defer response.Body.Close()

	responseBody, _ := io.ReadAll(io.LimitReader(response.Body, responseBodyLimit))

	return &Delivery{
		Success:    response.StatusCode >= 200 && response.StatusCode < 300,
		HTTPStatus: response.StatusCode,
		Body:       string(responseBody),
		Payload:    body,
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}
