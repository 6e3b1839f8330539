package models

// PingResult is the health-check echo returned by the backend.
type PingResult struct {
	Message   string `json:"message" validate:"required"`
	Timestamp string `json:"timestamp"`
}

// CompletionRequest asks the backend for a text completion.
// Model and MaxTokens are omitted from the wire body when unset.
type CompletionRequest struct {
	Prompt    string `json:"prompt" validate:"required"`
	Model     string `json:"model,omitempty"`
	MaxTokens *int   `json:"max_tokens,omitempty" validate:"omitempty,gte=0"`
}

// CompletionResult is the backend's answer to a CompletionRequest.
type CompletionResult struct {
	Completion string `json:"completion"`
	TokensUsed int    `json:"tokens_used" validate:"gte=0"`
	Model      string `json:"model"`
}

// OptimizeRequest submits an optimization job. ConstraintsJSON and
// ObjectivesJSON are opaque serialized payloads.
type OptimizeRequest struct {
	ProblemType     string `json:"problem_type" validate:"required"`
	ConstraintsJSON string `json:"constraints_json"`
	ObjectivesJSON  string `json:"objectives_json"`
	TimeoutSeconds  *int   `json:"timeout_seconds,omitempty" validate:"omitempty,gte=0"`
}

// OptimizeResult is the immediate response to a job submission.
type OptimizeResult struct {
	JobID  string `json:"job_id" validate:"required"`
	Status string `json:"status" validate:"required"`
	Result string `json:"result"`
}

// JobStatus is the polled representation of an asynchronous job.
type JobStatus struct {
	JobID       string `json:"job_id" validate:"required"`
	Status      string `json:"status" validate:"required"`
	Result      string `json:"result"`
	Error       string `json:"error"`
	CreatedAt   int64  `json:"created_at"`
	CompletedAt int64  `json:"completed_at"`
}

// ErrorBody is the error envelope the backend sends with non-2xx responses.
type ErrorBody struct {
	Error string `json:"error"`
}

// Job status values shared by the stub backend and the watcher.
const (
	StatusQueued    = "queued"
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusNotFound  = "not_found"
)

// IntPtr returns a pointer to v, for populating optional integer fields.
func IntPtr(v int) *int {
	return &v
}
