package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rdanvers/pagecheck/internal/verify"
)

// Default values for job configuration
const (
	DefaultJobTimeout = 90 * time.Second
	DefaultResultTTL  = 7 * 24 * time.Hour // 7 days
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether a status is final. Failed verifications are not
// retried; re-running requires a new job.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

// NotifyConfig holds notification settings for a job
type NotifyConfig struct {
	WebhookURL    string `json:"webhook_url,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"` // For HMAC signature
}

// JobRequest represents a verification job creation request. The embedded
// verify.Request carries the URL, selector, output path, viewport and
// interaction points; duration knobs are exposed in wire-friendly units.
type JobRequest struct {
	verify.Request

	// SettleMS zero selects the default settle pause; negative disables it.
	SettleMS           int `json:"settle_ms,omitempty"`
	MoveDelayMS        int `json:"move_delay_ms,omitempty"`
	NavTimeoutSec      int `json:"nav_timeout,omitempty"`
	SelectorTimeoutSec int `json:"selector_timeout,omitempty"`

	Timeout        int           `json:"timeout,omitempty"` // whole-job timeout in seconds
	Notify         *NotifyConfig `json:"notify,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	Priority       int           `json:"priority,omitempty"`
	ResultTTL      int           `json:"result_ttl,omitempty"` // seconds, default 7 days
}

// VerifyRequest resolves the wire-level duration fields into the verification
// request handed to the verifier.
func (r JobRequest) VerifyRequest() verify.Request {
	req := r.Request
	if r.SettleMS != 0 {
		req.SettleDelay = time.Duration(r.SettleMS) * time.Millisecond
	}
	if r.MoveDelayMS > 0 {
		req.MoveDelay = time.Duration(r.MoveDelayMS) * time.Millisecond
	}
	if r.NavTimeoutSec > 0 {
		req.NavTimeout = time.Duration(r.NavTimeoutSec) * time.Second
	}
	if r.SelectorTimeoutSec > 0 {
		req.SelectorTimeout = time.Duration(r.SelectorTimeoutSec) * time.Second
	}
	return req
}

// Job represents a queued verification job
type Job struct {
	ID             string        `json:"job_id"`
	Status         JobStatus     `json:"status"`
	Progress       int           `json:"progress"`
	Message        string        `json:"message,omitempty"`
	Request        JobRequest    `json:"request"`
	Result         interface{}   `json:"result,omitempty"`
	Error          string        `json:"error,omitempty"`
	ErrorKind      string        `json:"error_kind,omitempty"`
	CreatedAt      int64         `json:"created_at"`
	UpdatedAt      int64         `json:"updated_at"`
	StartedAt      int64         `json:"started_at,omitempty"`
	CompletedAt    int64         `json:"completed_at,omitempty"`
	ExpiresAt      int64         `json:"expires_at,omitempty"` // When result will be deleted
	Notify         *NotifyConfig `json:"notify,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	Priority       int           `json:"priority"`
	Timeout        int           `json:"timeout"` // Job timeout in seconds
}

// NewJob creates a new job from a request
func NewJob(req JobRequest) *Job {
	now := time.Now().Unix()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = int(DefaultJobTimeout.Seconds())
	}

	resultTTL := DefaultResultTTL
	if req.ResultTTL > 0 {
		resultTTL = time.Duration(req.ResultTTL) * time.Second
	}
	expiresAt := time.Now().Add(resultTTL).Unix()

	return &Job{
		ID:             generateJobID(),
		Status:         JobStatusQueued,
		Progress:       0,
		Request:        req,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      expiresAt,
		Notify:         req.Notify,
		IdempotencyKey: req.IdempotencyKey,
		Priority:       req.Priority,
		Timeout:        timeout,
	}
}

// SetStatus updates the job status
func (j *Job) SetStatus(status JobStatus) {
	j.Status = status
	j.UpdatedAt = time.Now().Unix()

	if status == JobStatusRunning && j.StartedAt == 0 {
		j.StartedAt = time.Now().Unix()
	}

	if status.Terminal() {
		j.CompletedAt = time.Now().Unix()
	}
}

// SetProgress updates the job progress
func (j *Job) SetProgress(progress int, message string) {
	j.Progress = progress
	j.Message = message
	j.UpdatedAt = time.Now().Unix()
}

// SetResult sets the job result
func (j *Job) SetResult(result interface{}) {
	j.Result = result
	j.Status = JobStatusSucceeded
	j.Progress = 100
	j.CompletedAt = time.Now().Unix()
	j.UpdatedAt = time.Now().Unix()
}

// SetError marks the job as permanently failed
func (j *Job) SetError(kind, err string) {
	j.Error = err
	j.ErrorKind = kind
	j.Status = JobStatusFailed
	j.CompletedAt = time.Now().Unix()
	j.UpdatedAt = time.Now().Unix()
}

// IsExpired checks if the job result has expired
func (j *Job) IsExpired() bool {
	if j.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() > j.ExpiresAt
}

// GetTimeoutDuration returns the job timeout as a time.Duration
func (j *Job) GetTimeoutDuration() time.Duration {
	if j.Timeout <= 0 {
		return DefaultJobTimeout
	}
	return time.Duration(j.Timeout) * time.Second
}

// ToJSON serializes a job to JSON
func (j *Job) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// FromJSON deserializes a job from JSON
func FromJSON(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// JobResultResponse represents a job result response
type JobResultResponse struct {
	JobID     string      `json:"job_id"`
	Status    JobStatus   `json:"status"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
}

// JobCreatedResponse represents the response when a job is created
type JobCreatedResponse struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	StatusURL string    `json:"status_url"`
	ResultURL string    `json:"result_url"`
	Events    struct {
		SSEURL string `json:"sse_url"`
		WSURL  string `json:"ws_url"`
	} `json:"events"`
}

func generateJobID() string {
	return "chk_" + uuid.New().String()[:8]
}
