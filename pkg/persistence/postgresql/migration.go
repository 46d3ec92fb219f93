package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_jobs (
				id UUID PRIMARY KEY,
				task_id VARCHAR(255),
				workflow_name VARCHAR(255) NOT NULL,
				user_id VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'timed_out')),
				input_data JSONB,
				result_data JSONB,
				error_message TEXT,
				retry_count INT NOT NULL DEFAULT 0,
				debug_mode BOOLEAN NOT NULL DEFAULT false,
				webhook_url TEXT,
				webhook_secret TEXT,
				webhook_permanently_failed BOOLEAN NOT NULL DEFAULT false,
				progress JSONB,
				duration_ms BIGINT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_jobs_status ON workflow_jobs(status);
			CREATE INDEX idx_workflow_jobs_workflow_name ON workflow_jobs(workflow_name);
			CREATE INDEX idx_workflow_jobs_user_id ON workflow_jobs(user_id);
			CREATE INDEX idx_workflow_jobs_created_at ON workflow_jobs(created_at);

			CREATE TABLE webhook_attempts (
				id UUID PRIMARY KEY,
				job_id UUID NOT NULL REFERENCES workflow_jobs(id) ON DELETE CASCADE,
				attempt_number INT NOT NULL,
				webhook_url TEXT NOT NULL,
				payload JSONB,
				http_status INT,
				response_body TEXT,
				error_message TEXT,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				attempted_at TIMESTAMP WITH TIME ZONE NOT NULL,
				next_retry_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_webhook_attempts_job_id ON webhook_attempts(job_id);

			CREATE TABLE provider_usage (
				id BIGSERIAL PRIMARY KEY,
				job_id UUID NOT NULL REFERENCES workflow_jobs(id) ON DELETE CASCADE,
				provider VARCHAR(100) NOT NULL,
				model VARCHAR(255) NOT NULL,
				input_tokens INT NOT NULL DEFAULT 0,
				output_tokens INT NOT NULL DEFAULT 0,
				total_tokens INT NOT NULL DEFAULT 0,
				cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_provider_usage_job_id ON provider_usage(job_id);
			CREATE INDEX idx_provider_usage_model ON provider_usage(model);

			CREATE TABLE response_cache (
				service_name VARCHAR(100) NOT NULL,
				operation VARCHAR(100) NOT NULL,
				cache_key CHAR(64) NOT NULL,
				request_params JSONB,
				response_data JSONB NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
				hit_count INT NOT NULL DEFAULT 0,
				last_accessed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (service_name, operation, cache_key)
			);

			CREATE INDEX idx_response_cache_expires_at ON response_cache(expires_at);
		`,
	}
}
