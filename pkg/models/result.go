package models

// RunResult is the outcome of one workflow run: final output, ordered step
// log, and aggregate metadata.
type RunResult struct {
	WorkflowName  string       `json:"workflow_name"`
	Success       bool         `json:"success"`
	Output        any          `json:"output"`
	StepsExecuted []StepRecord `json:"steps_executed"`
	Metadata      RunMetadata  `json:"metadata"`
}

// StepRecord is one entry of the ordered step log. Output holds a truncated
// preview suitable for persistence, not the full step output.
type StepRecord struct {
	StepID     string   `json:"step_id"`
	Kind       StepKind `json:"step_type"`
	DurationMS int64    `json:"duration_ms"`
	Success    bool     `json:"success"`
	Output     any      `json:"output,omitempty"`
	Error      string   `json:"error,omitempty"`
	Tokens     int      `json:"tokens,omitempty"`
	CostUSD    float64  `json:"cost_usd,omitempty"`
}

// RunMetadata aggregates run-level accounting. On failure Error and
// ErrorContext are set and the token/cost fields reflect the partial run.
type RunMetadata struct {
	WorkflowVersion string         `json:"workflow_version,omitempty"`
	TotalSteps      int            `json:"total_steps"`
	StepsCompleted  int            `json:"steps_completed,omitempty"`
	DurationMS      int64          `json:"duration_ms"`
	TotalTokens     int            `json:"total_tokens,omitempty"`
	TotalCostUSD    float64        `json:"total_cost_usd,omitempty"`
	ProviderCalls   []ProviderCall `json:"provider_calls,omitempty"`
	Error           string         `json:"error,omitempty"`
	ErrorContext    map[string]any `json:"error_context,omitempty"`
}

// ProviderCall records one generative-text provider invocation for usage accounting.
type ProviderCall struct {
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	TotalTokens  int            `json:"total_tokens"`
	CostUSD      float64        `json:"cost_usd"`
	DurationMS   int64          `json:"duration_ms"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ToMap converts the result for storage in the job's result blob.
func (r *RunResult) ToMap() map[string]any {
	steps := make([]any, 0, len(r.StepsExecuted))
	for _, record := range r.StepsExecuted {
		entry := map[string]any{
			"step_id":     record.StepID,
			"step_type":   string(record.Kind),
			"duration_ms": record.DurationMS,
			"success":     record.Success,
		}
		if record.Output != nil {
			entry["output"] = record.Output
		}

		if record.Error != "" {
			entry["error"] = record.Error
		}

		if record.Tokens > 0 {
			entry["tokens"] = record.Tokens
			entry["cost_usd"] = record.CostUSD
		}

		steps = append(steps, entry)
	}

	metadata := map[string]any{
		"total_steps": r.Metadata.TotalSteps,
		"duration_ms": r.Metadata.DurationMS,
	}
	if r.Metadata.WorkflowVersion != "" {
		metadata["workflow_version"] = r.Metadata.WorkflowVersion
	}

	if r.Metadata.StepsCompleted > 0 {
		metadata["steps_completed"] = r.Metadata.StepsCompleted
	}

	if r.Metadata.TotalTokens > 0 {
		metadata["total_tokens"] = r.Metadata.TotalTokens
		metadata["total_cost_usd"] = r.Metadata.TotalCostUSD
	}

	if len(r.Metadata.ProviderCalls) > 0 {
		calls := make([]any, 0, len(r.Metadata.ProviderCalls))
		for _, call := range r.Metadata.ProviderCalls {
			calls = append(calls, map[string]any{
				"provider":      call.Provider,
				"model":         call.Model,
				"input_tokens":  call.InputTokens,
				"output_tokens": call.OutputTokens,
				"total_tokens":  call.TotalTokens,
				"cost_usd":      call.CostUSD,
				"duration_ms":   call.DurationMS,
				"metadata":      call.Metadata,
			})
		}

		metadata["provider_calls"] = calls
	}

	if r.Metadata.Error != "" {
		metadata["error"] = r.Metadata.Error
	}

	if r.Metadata.ErrorContext != nil {
		metadata["error_context"] = r.Metadata.ErrorContext
	}

	return map[string]any{
		"workflow_name":  r.WorkflowName,
		"success":        r.Success,
		"output":         r.Output,
		"steps_executed": steps,
		"metadata":       metadata,
	}
}
