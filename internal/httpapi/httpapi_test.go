package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cronkit/scheduler/internal/apperror"
	"github.com/cronkit/scheduler/internal/cache"
	"github.com/cronkit/scheduler/internal/model"
	"github.com/cronkit/scheduler/internal/repository"
	"github.com/cronkit/scheduler/internal/scheduler"
	"github.com/cronkit/scheduler/internal/store"
	"github.com/cronkit/scheduler/internal/store/pg"
)

type fakeRepo struct {
	jobs           map[uuid.UUID]model.Job
	lastListPage   int
	lastListLimit  int
	executionTotal int64
}

func newFakeRepo() *fakeRepo { return &fakeRepo{jobs: map[uuid.UUID]model.Job{}} }

func (r *fakeRepo) FindAll(ctx context.Context, filter model.Filter, page, limit int) (repository.Page, error) {
	var jobs []model.Job
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	return repository.Page{Jobs: jobs, Total: int64(len(jobs)), Page: page, Limit: limit, TotalPages: 1}, nil
}

func (r *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (model.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return model.Job{}, apperror.NotFound("job", id.String())
	}
	return j, nil
}

func (r *fakeRepo) Create(ctx context.Context, input model.CreateJobInput) (model.Job, error) {
	if err := repository.ValidateCreate(input); err != nil {
		return model.Job{}, err
	}
	j := model.Job{
		ID: uuid.New(), Name: input.Name, CronExpression: input.CronExpression,
		IsActive: input.IsActive, JobType: input.JobType,
	}
	r.jobs[j.ID] = j
	return j, nil
}

func (r *fakeRepo) Update(ctx context.Context, id uuid.UUID, patch model.JobPatch) (model.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return model.Job{}, apperror.NotFound("job", id.String())
	}
	if patch.IsActive != nil {
		j.IsActive = *patch.IsActive
	}
	r.jobs[id] = j
	return j, nil
}

func (r *fakeRepo) Delete(ctx context.Context, id uuid.UUID) (model.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return model.Job{}, apperror.NotFound("job", id.String())
	}
	delete(r.jobs, id)
	return j, nil
}

func (r *fakeRepo) ListExecutions(ctx context.Context, jobID uuid.UUID, page, limit int) (repository.ExecutionPage, error) {
	r.lastListPage, r.lastListLimit = page, limit
	totalPages := int((r.executionTotal + int64(limit) - 1) / int64(limit))
	if totalPages < 1 {
		totalPages = 1
	}
	return repository.ExecutionPage{Page: page, Limit: limit, Total: r.executionTotal, TotalPages: totalPages}, nil
}

type fakeScheduler struct {
	scheduled map[uuid.UUID]bool
}

func newFakeScheduler() *fakeScheduler { return &fakeScheduler{scheduled: map[uuid.UUID]bool{}} }

func (s *fakeScheduler) ScheduleJob(job model.Job)   { s.scheduled[job.ID] = true }
func (s *fakeScheduler) UnscheduleJob(id uuid.UUID)  { delete(s.scheduled, id) }
func (s *fakeScheduler) IsScheduled(id uuid.UUID) bool {
	return s.scheduled[id]
}
func (s *fakeScheduler) ExecuteJob(ctx context.Context, job model.Job) (model.Job, error) {
	return job, nil
}
func (s *fakeScheduler) GetStats() scheduler.Stats { return scheduler.Stats{SuccessRate: "0.00%"} }
func (s *fakeScheduler) RecentRuns() []scheduler.RunLogEntry { return nil }

type fakeStatsStore struct {
	healthy bool
}

func (fakeStatsStore) DB() *sql.DB { return nil }
func (f fakeStatsStore) HealthCheck(ctx context.Context) store.HealthStatus {
	return store.HealthStatus{Healthy: f.healthy, LatencyMS: 1}
}
func (fakeStatsStore) Close() error { return nil }
func (fakeStatsStore) AggregateStats(ctx context.Context) (pg.DBStats, error) {
	return pg.DBStats{JobsByType: map[string]int64{}}, nil
}

func newTestHandler() (*Handler, *fakeRepo, *fakeScheduler) {
	repo := newFakeRepo()
	sched := newFakeScheduler()
	h := &Handler{
		repo:      repo,
		sched:     sched,
		cache:     cache.New(),
		store:     fakeStatsStore{healthy: true},
		authToken: "",
		startedAt: time.Now(),
	}
	return h, repo, sched
}

func TestHandleCreateJob_ValidationError(t *testing.T) {
	h, _, _ := newTestHandler()
	body := bytes.NewBufferString(`{"name":"","cronExpression":"bogus"}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs", body)
	w := httptest.NewRecorder()

	h.handleCreateJob(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["success"] != false {
		t.Errorf("expected success:false, got %v", resp)
	}
}

func TestHandleCreateJob_Success(t *testing.T) {
	h, _, sched := newTestHandler()
	body := bytes.NewBufferString(`{"name":"tick","cronExpression":"* * * * *","isActive":true,"jobType":"scheduled","createdBy":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs", body)
	w := httptest.NewRecorder()

	h.handleCreateJob(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Job model.Job `json:"job"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !sched.scheduled[resp.Data.Job.ID] {
		t.Error("expected active job to be scheduled")
	}
}

func TestHandleGetJob_NotFound(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/jobs/"+uuid.New().String(), nil)
	req.SetPathValue("id", uuid.New().String())
	w := httptest.NewRecorder()

	h.handleGetJob(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleGetJob_InvalidUUID(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil)
	req.SetPathValue("id", "not-a-uuid")
	w := httptest.NewRecorder()

	h.handleGetJob(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleValidateCron(t *testing.T) {
	h, _, _ := newTestHandler()
	body := bytes.NewBufferString(`{"expression":"*/5 * * * *"}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs/validate-cron", body)
	w := httptest.NewRecorder()

	h.handleValidateCron(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		IsValid  bool        `json:"isValid"`
		NextRuns []time.Time `json:"nextRuns"`
		Timezone string      `json:"timezone"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.IsValid || len(resp.NextRuns) != 5 || resp.Timezone != "Asia/Kolkata" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleHealth_Unhealthy(t *testing.T) {
	h, _, _ := newTestHandler()
	h.store = fakeStatsStore{healthy: false}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	h.handleHealth(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandleJobStats(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/jobs/stats", nil)
	w := httptest.NewRecorder()

	h.handleJobStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Scheduler scheduler.Stats `json:"scheduler"`
		Database  pg.DBStats      `json:"database"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Scheduler.SuccessRate != "0.00%" {
		t.Errorf("expected scheduler stats to be embedded, got %+v", resp.Scheduler)
	}
}

func TestHandleListExecutions_ThreadsPageAndReportsTrueTotal(t *testing.T) {
	h, repo, _ := newTestHandler()
	repo.executionTotal = 47 // more than fits in one page

	req := httptest.NewRequest(http.MethodGet, "/jobs/x/executions?page=2&limit=20", nil)
	req.SetPathValue("id", uuid.New().String())
	w := httptest.NewRecorder()

	h.handleListExecutions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if repo.lastListPage != 2 || repo.lastListLimit != 20 {
		t.Fatalf("expected repo called with page=2 limit=20, got page=%d limit=%d", repo.lastListPage, repo.lastListLimit)
	}

	var resp struct {
		Data struct {
			Pagination struct {
				Total      int64 `json:"total"`
				TotalPages int   `json:"totalPages"`
				Page       int   `json:"page"`
			} `json:"pagination"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Pagination.Total != 47 {
		t.Errorf("expected pagination.total to reflect the job's true execution count, got %d", resp.Data.Pagination.Total)
	}
	if resp.Data.Pagination.TotalPages != 3 {
		t.Errorf("expected totalPages = ceil(47/20) = 3, got %d", resp.Data.Pagination.TotalPages)
	}
	if resp.Data.Pagination.Page != 2 {
		t.Errorf("expected page 2, got %d", resp.Data.Pagination.Page)
	}
}

func TestWithAuth_RejectsMissingToken(t *testing.T) {
	h, _, _ := newTestHandler()
	h.authToken = "secret"
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestWithAuth_AcceptsValidToken(t *testing.T) {
	h, _, _ := newTestHandler()
	h.authToken = "secret"
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
