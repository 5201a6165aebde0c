package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/cronkit/scheduler/internal/apperror"
	"github.com/cronkit/scheduler/internal/cache"
	"github.com/cronkit/scheduler/internal/model"
)

const maxListLimit = 100

// handleListJobs: GET /jobs (spec §4.F "read-through cache; then, for each
// returned active job, re-fetch last_run_at, next_run_at, and stats from
// Repository and overlay before returning").
func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)
	if limit > maxListLimit {
		writeError(w, http.StatusBadRequest, "Validation Error", "limit must be <= 100", []apperror.FieldDetail{
			{Field: "limit", Message: "must be at most 100", RejectedValue: limit},
		})
		return
	}

	filter := model.Filter{
		IsActive: queryBoolPtr(r, "isActive"),
		Search:   r.URL.Query().Get("search"),
	}
	if jt := r.URL.Query().Get("jobType"); jt != "" {
		t := model.JobType(jt)
		filter.JobType = &t
	}
	if tags := r.URL.Query().Get("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}

	fresh := r.URL.Query().Get("fresh") == "true"
	cacheKey := cache.ListKey(filter.CanonicalKey(page, limit))

	var cached cachedJobPage
	if !fresh {
		if raw, ok := h.cache.Get(cacheKey); ok {
			if err := json.Unmarshal(raw, &cached); err == nil {
				h.overlayFreshStats(r.Context(), cached.Jobs)
				writeSuccess(w, http.StatusOK, map[string]any{
					"jobs":       cached.Jobs,
					"pagination": newPagination(page, limit, cached.Total, cached.TotalPages),
				})
				return
			}
		}
	}

	result, err := h.repo.FindAll(r.Context(), filter, page, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}

	cached = cachedJobPage{Jobs: result.Jobs, Total: result.Total, TotalPages: result.TotalPages}
	if b, err := json.Marshal(cached); err == nil {
		h.cache.Set(cacheKey, b)
	}

	h.overlayFreshStats(r.Context(), cached.Jobs)
	writeSuccess(w, http.StatusOK, map[string]any{
		"jobs":       cached.Jobs,
		"pagination": newPagination(page, limit, cached.Total, cached.TotalPages),
	})
}

type cachedJobPage struct {
	Jobs       []model.Job
	Total      int64
	TotalPages int
}

// overlayFreshStats re-fetches last_run_at/next_run_at/counters for active
// jobs even on a cache hit, per spec §4.D's coherence carve-out.
func (h *Handler) overlayFreshStats(ctx context.Context, jobs []model.Job) {
	for i, j := range jobs {
		if !j.IsActive {
			continue
		}
		fresh, err := h.repo.FindByID(ctx, j.ID)
		if err != nil {
			continue
		}
		jobs[i].LastRunAt = fresh.LastRunAt
		jobs[i].NextRunAt = fresh.NextRunAt
		jobs[i].TotalRuns = fresh.TotalRuns
		jobs[i].SuccessfulRuns = fresh.SuccessfulRuns
		jobs[i].FailedRuns = fresh.FailedRuns
	}
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	job, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	history, err := h.repo.ListExecutions(r.Context(), id, 1, 20)
	var executionHistory []model.JobExecution
	if err == nil {
		executionHistory = history.Executions
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"job":              job,
		"executionHistory": executionHistory,
		"isScheduled":      h.sched.IsScheduled(id),
	})
}

func (h *Handler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var input model.CreateJobInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Validation Error", "invalid JSON body", nil)
		return
	}

	job, err := h.repo.Create(r.Context(), input)
	if err != nil {
		writeAppError(w, err)
		return
	}

	if job.IsActive {
		h.sched.ScheduleJob(job)
	}
	h.invalidateJobCaches(job.ID)

	writeSuccess(w, http.StatusCreated, map[string]any{"job": job})
}

func (h *Handler) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var patch model.JobPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Validation Error", "invalid JSON body", nil)
		return
	}

	job, err := h.repo.Update(r.Context(), id, patch)
	if err != nil {
		writeAppError(w, err)
		return
	}

	if job.IsActive {
		h.sched.ScheduleJob(job)
	} else {
		h.sched.UnscheduleJob(job.ID)
	}
	h.invalidateJobCaches(job.ID)

	writeSuccess(w, http.StatusOK, map[string]any{"job": job})
}

func (h *Handler) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	job, err := h.repo.Delete(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	h.sched.UnscheduleJob(id)
	h.invalidateJobCaches(id)

	writeSuccess(w, http.StatusOK, map[string]any{"job": job})
}

// handleTriggerJob: POST /jobs/:id/trigger (spec §4.F: enqueue
// Scheduler.executeJob asynchronously; respond 200 immediately).
func (h *Handler) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	job, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	go func() {
		// Decoupled from the request per spec §4.F/§5: the client learns
		// the outcome via the executions endpoint, not this response.
		// ExecuteJob itself applies job.TimeoutMS as the executor deadline.
		h.sched.ExecuteJob(context.Background(), job)
	}()

	writeSuccessRaw(w, http.StatusOK, map[string]any{
		"jobId":       job.ID,
		"jobName":     job.Name,
		"triggeredAt": nowISO(),
	})
}

func (h *Handler) invalidateJobCaches(id uuid.UUID) {
	h.cache.InvalidateJob(cache.DetailKey(id.String()))
}
