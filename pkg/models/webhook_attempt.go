package models

import "time"

// WebhookAttempt is one immutable record of a delivery try.
type WebhookAttempt struct {
	ID            string     `json:"id"`
	JobID         string     `json:"job_id"`
	AttemptNumber int        `json:"attempt_number"`
	WebhookURL    string     `json:"webhook_url"`
	Payload       []byte     `json:"-"`
	HTTPStatus    int        `json:"http_status,omitempty"`
	ResponseBody  string     `json:"response_body,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	DurationMS    int64      `json:"duration_ms"`
	AttemptedAt   time.Time  `json:"attempted_at"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
}

// CacheEntry is one persisted external-API response.
type CacheEntry struct {
	ServiceName    string         `json:"service_name"`
	Operation      string         `json:"operation"`
	CacheKey       string         `json:"cache_key"`
	RequestParams  map[string]any `json:"request_params,omitempty"`
	ResponseData   map[string]any `json:"response_data"`
	ExpiresAt      time.Time      `json:"expires_at"`
	HitCount       int            `json:"hit_count"`
	LastAccessedAt *time.Time     `json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
