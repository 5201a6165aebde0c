package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cronkit/scheduler/internal/apperror"
	"github.com/cronkit/scheduler/internal/model"
)

// jobRow mirrors model.Job field-for-field but scans tags through a
// pq-style text[] rather than Go's []string, since lib/pq array support
// isn't in play here (pgx stdlib + sqlx, no pq.Array wrapper in go.mod) —
// ground truth for this pattern is the teacher's scanStringArray helper.
type jobRow struct {
	model.Job
	TagsRaw []byte `db:"tags"`
}

const jobColumns = `id, name, description, cron_expression, is_active, job_type, payload,
	timeout_ms, max_retries, retry_delay_ms, created_by, tags, created_at, updated_at,
	last_run_at, next_run_at, total_runs, successful_runs, failed_runs`

func scanJobRow(r jobRow) model.Job {
	j := r.Job
	scanStringArray(r.TagsRaw, &j.Tags)
	return j
}

// InsertJob persists a new job row, computing none of the cron scheduling
// fields itself — next_run_at is supplied by the caller (internal/repository
// computes it via cronexpr.NextAfter before insert).
func (s *PGStore) InsertJob(ctx context.Context, j model.Job) (model.Job, error) {
	const q = `INSERT INTO jobs (id, name, description, cron_expression, is_active, job_type,
		payload, timeout_ms, max_retries, retry_delay_ms, created_by, tags, next_run_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING ` + jobColumns

	var row jobRow
	err := s.timed("insert job", func() error {
		return s.db.GetContext(ctx, &row, q,
			j.ID, j.Name, j.Description, j.CronExpression, j.IsActive, j.JobType,
			jsonOrEmpty(j.Payload), j.TimeoutMS, j.MaxRetries, j.RetryDelayMS,
			j.CreatedBy, pqStringArray(j.Tags), j.NextRunAt)
	})
	if err != nil {
		return model.Job{}, apperror.Wrap(apperror.KindTransient, "insert job", err)
	}
	return scanJobRow(row), nil
}

// FindJobByID returns a single job, or apperror.KindNotFound.
func (s *PGStore) FindJobByID(ctx context.Context, id uuid.UUID) (model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	var row jobRow
	err := s.timed("select job by id", func() error {
		return s.db.GetContext(ctx, &row, q, id)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Job{}, apperror.NotFound("job", id.String())
		}
		return model.Job{}, apperror.Wrap(apperror.KindTransient, "select job", err)
	}
	return scanJobRow(row), nil
}

// FindAllJobs returns a page of jobs matching filter, plus the total count
// matching the filter (ignoring pagination), per spec §4.C.
func (s *PGStore) FindAllJobs(ctx context.Context, f model.Filter, page, limit int) ([]model.Job, int64, error) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.IsActive != nil {
		clauses = append(clauses, "is_active = "+arg(*f.IsActive))
	}
	if f.JobType != nil {
		clauses = append(clauses, "job_type = "+arg(string(*f.JobType)))
	}
	if len(f.Tags) > 0 {
		clauses = append(clauses, "tags && "+arg(pqStringArray(f.Tags))+"::text[]")
	}
	if f.Search != "" {
		p := arg("%" + strings.ToLower(f.Search) + "%")
		clauses = append(clauses, fmt.Sprintf("(lower(name) LIKE %s OR lower(description) LIKE %s)", p, p))
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	var total int64
	countQ := "SELECT count(*) FROM jobs " + where
	if err := s.timed("count jobs", func() error {
		return s.db.GetContext(ctx, &total, countQ, args...)
	}); err != nil {
		return nil, 0, apperror.Wrap(apperror.KindTransient, "count jobs", err)
	}

	if limit <= 0 {
		limit = 20
	}
	offset := (page - 1) * limit
	if offset < 0 {
		offset = 0
	}
	pageArgs := append(append([]any{}, args...), limit, offset)
	listQ := fmt.Sprintf("SELECT %s FROM jobs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		jobColumns, where, len(args)+1, len(args)+2)

	var rows []jobRow
	if err := s.timed("list jobs", func() error {
		return s.db.SelectContext(ctx, &rows, listQ, pageArgs...)
	}); err != nil {
		return nil, 0, apperror.Wrap(apperror.KindTransient, "list jobs", err)
	}

	jobs := make([]model.Job, len(rows))
	for i, r := range rows {
		jobs[i] = scanJobRow(r)
	}
	return jobs, total, nil
}

// GetActiveJobs returns every job with is_active = true, used by the
// scheduler's periodic resync (spec §9 redesign note: diff against
// is_active, not a next_run_at window).
func (s *PGStore) GetActiveJobs(ctx context.Context) ([]model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE is_active ORDER BY next_run_at NULLS LAST`

	var rows []jobRow
	if err := s.timed("select active jobs", func() error {
		return s.db.SelectContext(ctx, &rows, q)
	}); err != nil {
		return nil, apperror.Wrap(apperror.KindTransient, "select active jobs", err)
	}
	jobs := make([]model.Job, len(rows))
	for i, r := range rows {
		jobs[i] = scanJobRow(r)
	}
	return jobs, nil
}

// UpdateJob applies a column map built by internal/repository from a
// model.JobPatch, returning the row as it stands after the update.
func (s *PGStore) UpdateJob(ctx context.Context, id uuid.UUID, updates map[string]any) (model.Job, error) {
	updates["updated_at"] = nowUTC()
	if err := s.timed("update job", func() error {
		return execMapUpdate(ctx, s.db.DB, "jobs", id, updates)
	}); err != nil {
		return model.Job{}, apperror.Wrap(apperror.KindTransient, "update job", err)
	}
	return s.FindJobByID(ctx, id)
}

// UpdateJobStats bumps the run counters and last_run_at/next_run_at after an
// execution completes (spec §4.C "UpdateJobStats").
func (s *PGStore) UpdateJobStats(ctx context.Context, id uuid.UUID, success bool, ranAt time.Time, nextRunAt *time.Time) error {
	const q = `UPDATE jobs SET
		total_runs = total_runs + 1,
		successful_runs = successful_runs + CASE WHEN $2 THEN 1 ELSE 0 END,
		failed_runs = failed_runs + CASE WHEN $2 THEN 0 ELSE 1 END,
		last_run_at = $3,
		next_run_at = $4,
		updated_at = now()
		WHERE id = $1`

	return s.timed("update job stats", func() error {
		_, err := s.db.ExecContext(ctx, q, id, success, ranAt, nilTime(nextRunAt))
		if err != nil {
			return apperror.Wrap(apperror.KindTransient, "update job stats", err)
		}
		return nil
	})
}

// DeleteJob removes a job (and cascades to its executions).
func (s *PGStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM jobs WHERE id = $1`
	var affected int64
	err := s.timed("delete job", func() error {
		res, err := s.db.ExecContext(ctx, q, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return apperror.Wrap(apperror.KindTransient, "delete job", err)
	}
	if affected == 0 {
		return apperror.NotFound("job", id.String())
	}
	return nil
}
