// Package model defines the durable entities of the scheduler: Job and
// JobExecution, and the small value types attached to them.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobType affects only the simulated output label, never scheduling semantics.
type JobType string

const (
	JobTypeScheduled JobType = "scheduled"
	JobTypeImmediate JobType = "immediate"
	JobTypeRecurring JobType = "recurring"
	JobTypeDelayed   JobType = "delayed"
)

func (t JobType) Valid() bool {
	switch t {
	case JobTypeScheduled, JobTypeImmediate, JobTypeRecurring, JobTypeDelayed:
		return true
	}
	return false
}

const (
	MaxNameLength        = 255
	MaxDescriptionLength = 1000
	MaxCreatedByLength   = 255
	MaxTagLength         = 50
	MaxTagCount          = 10

	MinTimeoutMS     = 1000
	MaxTimeoutMS     = 300000
	DefaultTimeoutMS = 30000

	MinRetries     = 0
	MaxRetries     = 10
	DefaultRetries = 3

	MinRetryDelayMS     = 1000
	MaxRetryDelayMS     = 60000
	DefaultRetryDelayMS = 5000
)

// Job is the durable representation of a scheduled job (spec §3).
type Job struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Description    string          `json:"description" db:"description"`
	CronExpression string          `json:"cronExpression" db:"cron_expression"`
	IsActive       bool            `json:"isActive" db:"is_active"`
	JobType        JobType         `json:"jobType" db:"job_type"`
	Payload        json.RawMessage `json:"payload" db:"payload"`
	TimeoutMS      int             `json:"timeoutMs" db:"timeout_ms"`
	MaxRetries     int             `json:"maxRetries" db:"max_retries"`
	RetryDelayMS   int             `json:"retryDelayMs" db:"retry_delay_ms"`
	CreatedBy      string          `json:"createdBy" db:"created_by"`
	Tags           []string        `json:"tags" db:"tags"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
	LastRunAt      *time.Time      `json:"lastRunAt" db:"last_run_at"`
	NextRunAt      *time.Time      `json:"nextRunAt" db:"next_run_at"`
	TotalRuns      int64           `json:"totalRuns" db:"total_runs"`
	SuccessfulRuns int64           `json:"successfulRuns" db:"successful_runs"`
	FailedRuns     int64           `json:"failedRuns" db:"failed_runs"`
}

// ExecutionStatus is the state-machine value for a JobExecution (spec §4.E).
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusTimeout   ExecutionStatus = "timeout"
)

// JobExecution is a single, append-only attempt to run a job (spec §3).
type JobExecution struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	JobID        uuid.UUID       `json:"jobId" db:"job_id"`
	Status       ExecutionStatus `json:"status" db:"status"`
	StartedAt    time.Time       `json:"startedAt" db:"started_at"`
	CompletedAt  *time.Time      `json:"completedAt" db:"completed_at"`
	DurationMS   *int64          `json:"durationMs" db:"duration_ms"`
	ErrorMessage *string         `json:"errorMessage" db:"error_message"`
	RetryCount   int             `json:"retryCount" db:"retry_count"`
	Output       json.RawMessage `json:"output" db:"output"`
}

// CreateJobInput carries the fields accepted by JobRepository.Create.
type CreateJobInput struct {
	Name           string
	Description    string
	CronExpression string
	IsActive       bool
	JobType        JobType
	Payload        json.RawMessage
	TimeoutMS      int
	MaxRetries     int
	RetryDelayMS   int
	CreatedBy      string
	Tags           []string
}

// JobPatch carries the optional fields accepted by JobRepository.Update.
// A nil pointer means "leave unchanged"; this mirrors the teacher's
// CronJobPatch convention (internal/store/cron_store.go) generalized to
// the full Job shape.
type JobPatch struct {
	Name           *string
	Description    *string
	CronExpression *string
	IsActive       *bool
	JobType        *JobType
	Payload        json.RawMessage
	TimeoutMS      *int
	MaxRetries     *int
	RetryDelayMS   *int
	Tags           *[]string
}

// Filter narrows JobRepository.FindAll results (spec §4.C).
type Filter struct {
	IsActive *bool
	JobType  *JobType
	Tags     []string
	Search   string
}

// CanonicalKey produces a stable cache-key suffix for a filter + page + limit,
// used by internal/cache as the "jobs:<canonical-json(filter)>" key (spec §4.D).
func (f Filter) CanonicalKey(page, limit int) string {
	b, _ := json.Marshal(struct {
		IsActive *bool    `json:"isActive,omitempty"`
		JobType  *JobType `json:"jobType,omitempty"`
		Tags     []string `json:"tags,omitempty"`
		Search   string   `json:"search,omitempty"`
		Page     int      `json:"page"`
		Limit    int      `json:"limit"`
	}{f.IsActive, f.JobType, f.Tags, f.Search, page, limit})
	return string(b)
}
