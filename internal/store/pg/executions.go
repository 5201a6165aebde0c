package pg

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cronkit/scheduler/internal/apperror"
	"github.com/cronkit/scheduler/internal/model"
)

const executionColumns = `id, job_id, status, started_at, completed_at, duration_ms,
	error_message, retry_count, output`

// partitionCache tracks which monthly job_executions partitions have already
// been created in this process, so a hot path doesn't issue a
// CREATE TABLE IF NOT EXISTS on every insert.
type partitionCache struct {
	mu    sync.Mutex
	known map[string]bool
}

var partitions = &partitionCache{known: map[string]bool{}}

func (s *PGStore) ensurePartition(ctx context.Context, t time.Time) error {
	monthStart := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	suffix := monthStart.Format("2006_01")

	partitions.mu.Lock()
	exists := partitions.known[suffix]
	partitions.mu.Unlock()
	if exists {
		return nil
	}

	monthEnd := monthStart.AddDate(0, 1, 0)
	ddl := partitionDDL(suffix, monthStart.Format("2006-01-02"), monthEnd.Format("2006-01-02"))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return err
	}

	partitions.mu.Lock()
	partitions.known[suffix] = true
	partitions.mu.Unlock()
	return nil
}

// InsertExecution records a new attempt (spec §4.E). started_at drives
// partition placement, so the partition is created lazily here rather than
// by a separate maintenance job.
func (s *PGStore) InsertExecution(ctx context.Context, e model.JobExecution) (model.JobExecution, error) {
	if err := s.ensurePartition(ctx, e.StartedAt); err != nil {
		return model.JobExecution{}, apperror.Wrap(apperror.KindTransient, "ensure execution partition", err)
	}

	const q = `INSERT INTO job_executions (id, job_id, status, started_at, retry_count)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING ` + executionColumns

	var out model.JobExecution
	err := s.timed("insert execution", func() error {
		return s.db.GetContext(ctx, &out, q, e.ID, e.JobID, e.Status, e.StartedAt, e.RetryCount)
	})
	if err != nil {
		return model.JobExecution{}, apperror.Wrap(apperror.KindTransient, "insert execution", err)
	}
	return out, nil
}

// CompleteExecution transitions a running execution to its terminal state
// (spec §4.E: completed/failed/timeout), recording duration and truncated
// output/error.
func (s *PGStore) CompleteExecution(ctx context.Context, id uuid.UUID, startedAt time.Time, status model.ExecutionStatus, output []byte, errMsg *string) error {
	const q = `UPDATE job_executions SET
		status = $1, completed_at = $2, duration_ms = $3, output = $4, error_message = $5
		WHERE id = $6 AND started_at = $7`

	now := nowUTC()
	duration := now.Sub(startedAt).Milliseconds()

	return s.timed("complete execution", func() error {
		_, err := s.db.ExecContext(ctx, q, status, now, duration, jsonOrNull(output), errMsg, id, startedAt)
		if err != nil {
			return apperror.Wrap(apperror.KindTransient, "complete execution", err)
		}
		return nil
	})
}

// ListExecutionsForJob returns a page of executions for a job, newest first,
// plus the total number of executions the job has (ignoring pagination),
// following the same count-then-page shape as FindAllJobs (spec §4.C
// "FindExecutionsByJobId").
func (s *PGStore) ListExecutionsForJob(ctx context.Context, jobID uuid.UUID, page, limit int) ([]model.JobExecution, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}

	var total int64
	const countQ = `SELECT count(*) FROM job_executions WHERE job_id = $1`
	if err := s.timed("count executions", func() error {
		return s.db.GetContext(ctx, &total, countQ, jobID)
	}); err != nil {
		return nil, 0, apperror.Wrap(apperror.KindTransient, "count executions", err)
	}

	offset := (page - 1) * limit
	const q = `SELECT ` + executionColumns + ` FROM job_executions
		WHERE job_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`

	var rows []model.JobExecution
	err := s.timed("list executions", func() error {
		return s.db.SelectContext(ctx, &rows, q, jobID, limit, offset)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, total, nil
		}
		return nil, 0, apperror.Wrap(apperror.KindTransient, "list executions", err)
	}
	return rows, total, nil
}
