// Package repository implements JobRepository (spec §4.C): typed CRUD over
// the Store for Job entities, next-run derivation, and aggregate counters.
// Grounded on the teacher's store.CronJobStore interface shape
// (internal/store/cron_store.go) and its agents.go scan/CRUD patterns,
// generalized from a single-tenant bot-agent model to Job/JobExecution.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cronkit/scheduler/internal/cronexpr"
	"github.com/cronkit/scheduler/internal/model"
	"github.com/cronkit/scheduler/internal/store/pg"
)

// Page is a paginated result set (spec §4.C findAll).
type Page struct {
	Jobs       []model.Job
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// JobRepository sits over the Postgres store and owns Job validation,
// next_run_at derivation, and statistics bookkeeping.
type JobRepository struct {
	store *pg.PGStore
}

func New(store *pg.PGStore) *JobRepository {
	return &JobRepository{store: store}
}

func (r *JobRepository) FindAll(ctx context.Context, filter model.Filter, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	jobs, total, err := r.store.FindAllJobs(ctx, filter, page, limit)
	if err != nil {
		return Page{}, err
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Page{Jobs: jobs, Total: total, Page: page, Limit: limit, TotalPages: totalPages}, nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (model.Job, error) {
	return r.store.FindJobByID(ctx, id)
}

func (r *JobRepository) GetActiveJobs(ctx context.Context) ([]model.Job, error) {
	return r.store.GetActiveJobs(ctx)
}

// Create validates input, derives next_run_at, and persists the job.
func (r *JobRepository) Create(ctx context.Context, input model.CreateJobInput) (model.Job, error) {
	if err := ValidateCreate(input); err != nil {
		return model.Job{}, err
	}

	j := model.Job{
		ID:             uuid.New(),
		Name:           input.Name,
		Description:    input.Description,
		CronExpression: input.CronExpression,
		IsActive:       input.IsActive,
		JobType:        input.JobType,
		Payload:        input.Payload,
		TimeoutMS:      orDefault(input.TimeoutMS, model.DefaultTimeoutMS),
		MaxRetries:     input.MaxRetries,
		RetryDelayMS:   orDefault(input.RetryDelayMS, model.DefaultRetryDelayMS),
		CreatedBy:      input.CreatedBy,
		Tags:           input.Tags,
	}
	if j.IsActive {
		next := cronexpr.NextAfter(j.CronExpression, time.Now().UTC())
		j.NextRunAt = &next
	}

	return r.store.InsertJob(ctx, j)
}

// Update merges patch onto the existing job, re-validates, and recomputes
// next_run_at if the cron expression or activation state changed.
func (r *JobRepository) Update(ctx context.Context, id uuid.UUID, patch model.JobPatch) (model.Job, error) {
	existing, err := r.store.FindJobByID(ctx, id)
	if err != nil {
		return model.Job{}, err
	}

	merged := applyPatch(existing, patch)
	if err := ValidateJob(merged); err != nil {
		return model.Job{}, err
	}

	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = merged.Name
	}
	if patch.Description != nil {
		updates["description"] = merged.Description
	}
	if patch.IsActive != nil {
		updates["is_active"] = merged.IsActive
	}
	if patch.JobType != nil {
		updates["job_type"] = string(merged.JobType)
	}
	if patch.Payload != nil {
		updates["payload"] = []byte(merged.Payload)
	}
	if patch.TimeoutMS != nil {
		updates["timeout_ms"] = merged.TimeoutMS
	}
	if patch.MaxRetries != nil {
		updates["max_retries"] = merged.MaxRetries
	}
	if patch.RetryDelayMS != nil {
		updates["retry_delay_ms"] = merged.RetryDelayMS
	}
	if patch.Tags != nil {
		updates["tags"] = pqStringArray(merged.Tags)
	}

	cronChanged := patch.CronExpression != nil && *patch.CronExpression != existing.CronExpression
	activationChanged := patch.IsActive != nil && *patch.IsActive != existing.IsActive
	if cronChanged {
		updates["cron_expression"] = merged.CronExpression
	}
	if cronChanged || activationChanged {
		if merged.IsActive {
			next := cronexpr.NextAfter(merged.CronExpression, time.Now().UTC())
			updates["next_run_at"] = next
		} else {
			updates["next_run_at"] = nil
		}
	}

	if len(updates) == 0 {
		return existing, nil
	}
	return r.store.UpdateJob(ctx, id, updates)
}

func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) (model.Job, error) {
	job, err := r.store.FindJobByID(ctx, id)
	if err != nil {
		return model.Job{}, err
	}
	if err := r.store.DeleteJob(ctx, id); err != nil {
		return model.Job{}, err
	}
	return job, nil
}

// UpdateStats atomically bumps the run counters and bookkeeping timestamps
// after an execution completes (spec §4.C updateJobStats).
func (r *JobRepository) UpdateStats(ctx context.Context, id uuid.UUID, success bool, ranAt time.Time, nextRunAt *time.Time) error {
	return r.store.UpdateJobStats(ctx, id, success, ranAt, nextRunAt)
}

// ExecutionPage is a paginated result set over a job's executions (spec §4.C
// FindExecutionsByJobId), mirroring Page's shape for job listings.
type ExecutionPage struct {
	Executions []model.JobExecution
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

func (r *JobRepository) ListExecutions(ctx context.Context, jobID uuid.UUID, page, limit int) (ExecutionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	executions, total, err := r.store.ListExecutionsForJob(ctx, jobID, page, limit)
	if err != nil {
		return ExecutionPage{}, err
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if totalPages < 1 {
		totalPages = 1
	}
	return ExecutionPage{Executions: executions, Total: total, Page: page, Limit: limit, TotalPages: totalPages}, nil
}

// StartExecution writes the provisional "running" row for a new attempt
// (spec §4.E executeJob step 2).
func (r *JobRepository) StartExecution(ctx context.Context, execID, jobID uuid.UUID, startedAt time.Time, retryCount int) (model.JobExecution, error) {
	return r.store.InsertExecution(ctx, model.JobExecution{
		ID:         execID,
		JobID:      jobID,
		Status:     model.StatusRunning,
		StartedAt:  startedAt,
		RetryCount: retryCount,
	})
}

// CompleteExecution transitions a running execution to a terminal status.
func (r *JobRepository) CompleteExecution(ctx context.Context, execID uuid.UUID, startedAt time.Time, status model.ExecutionStatus, output []byte, errMsg *string) error {
	return r.store.CompleteExecution(ctx, execID, startedAt, status, output, errMsg)
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func applyPatch(j model.Job, p model.JobPatch) model.Job {
	if p.Name != nil {
		j.Name = *p.Name
	}
	if p.Description != nil {
		j.Description = *p.Description
	}
	if p.CronExpression != nil {
		j.CronExpression = *p.CronExpression
	}
	if p.IsActive != nil {
		j.IsActive = *p.IsActive
	}
	if p.JobType != nil {
		j.JobType = *p.JobType
	}
	if p.Payload != nil {
		j.Payload = p.Payload
	}
	if p.TimeoutMS != nil {
		j.TimeoutMS = *p.TimeoutMS
	}
	if p.MaxRetries != nil {
		j.MaxRetries = *p.MaxRetries
	}
	if p.RetryDelayMS != nil {
		j.RetryDelayMS = *p.RetryDelayMS
	}
	if p.Tags != nil {
		j.Tags = *p.Tags
	}
	return j
}

func pqStringArray(tags []string) any {
	if tags == nil {
		return "{}"
	}
	return "{" + joinQuoted(tags) + "}"
}

func joinQuoted(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}
