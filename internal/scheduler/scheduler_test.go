package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cronkit/scheduler/internal/cache"
	"github.com/cronkit/scheduler/internal/executor"
	"github.com/cronkit/scheduler/internal/model"
)

// fakeRepo is an in-memory jobRepository for exercising the Scheduler
// without a database, following the teacher's table-driven/in-memory test
// style (no assertion library).
type fakeRepo struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]model.Job
	executions []model.JobExecution
}

func newFakeRepo(jobs ...model.Job) *fakeRepo {
	r := &fakeRepo{jobs: map[uuid.UUID]model.Job{}}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *fakeRepo) GetActiveJobs(ctx context.Context) ([]model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Job
	for _, j := range r.jobs {
		if j.IsActive {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id], nil
}

func (r *fakeRepo) UpdateStats(ctx context.Context, id uuid.UUID, success bool, ranAt time.Time, nextRunAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	j.TotalRuns++
	if success {
		j.SuccessfulRuns++
	} else {
		j.FailedRuns++
	}
	j.LastRunAt = &ranAt
	j.NextRunAt = nextRunAt
	r.jobs[id] = j
	return nil
}

func (r *fakeRepo) StartExecution(ctx context.Context, execID, jobID uuid.UUID, startedAt time.Time, retryCount int) (model.JobExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := model.JobExecution{ID: execID, JobID: jobID, Status: model.StatusRunning, StartedAt: startedAt, RetryCount: retryCount}
	r.executions = append(r.executions, e)
	return e, nil
}

func (r *fakeRepo) CompleteExecution(ctx context.Context, execID uuid.UUID, startedAt time.Time, status model.ExecutionStatus, output []byte, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.executions {
		if e.ID == execID {
			r.executions[i].Status = status
			r.executions[i].Output = output
			r.executions[i].ErrorMessage = errMsg
		}
	}
	return nil
}

func (r *fakeRepo) countExecutions(jobID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.executions {
		if e.JobID == jobID {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")

type fakeExecutor struct {
	delay   time.Duration
	failErr error
}

func (f fakeExecutor) Execute(ctx context.Context, job model.Job) (executor.Result, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return executor.Result{}, ctx.Err()
		}
	}
	if f.failErr != nil {
		return executor.Result{}, f.failErr
	}
	return executor.Result{Output: []byte(`{"ok":true}`)}, nil
}

func testJob(cron string) model.Job {
	return model.Job{
		ID:             uuid.New(),
		Name:           "test",
		CronExpression: cron,
		IsActive:       true,
		JobType:        model.JobTypeScheduled,
		TimeoutMS:      1000,
		MaxRetries:     0,
		RetryDelayMS:   1000,
	}
}

// P1 single-flight: concurrent ExecuteJob calls for the same job produce
// exactly one execution row; the rest are rejected as in-flight.
func TestScheduler_SingleFlight(t *testing.T) {
	job := testJob("* * * * *")
	repo := newFakeRepo(job)
	sch := New(nil, cache.New(), fakeExecutor{delay: 200 * time.Millisecond}, nil, 0, nil)
	sch.repo = repo

	var wg sync.WaitGroup
	successCount := 0
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := sch.ExecuteJob(context.Background(), job); err == nil {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successCount != 1 {
		t.Errorf("expected exactly 1 execution to proceed, got %d", successCount)
	}
	if n := repo.countExecutions(job.ID); n != 1 {
		t.Errorf("expected exactly 1 execution row, got %d", n)
	}
}

func TestScheduler_ExecuteJob_RecordsCompletedExecution(t *testing.T) {
	job := testJob("* * * * *")
	repo := newFakeRepo(job)
	sch := New(nil, cache.New(), fakeExecutor{}, nil, 0, nil)
	sch.repo = repo

	if _, err := sch.ExecuteJob(context.Background(), job); err != nil {
		t.Fatalf("ExecuteJob failed: %v", err)
	}

	if n := repo.countExecutions(job.ID); n != 1 {
		t.Fatalf("expected 1 execution, got %d", n)
	}
	if repo.executions[0].Status != model.StatusCompleted {
		t.Errorf("expected status completed, got %s", repo.executions[0].Status)
	}
}

func TestScheduler_RetriesEachWriteOwnExecutionRow(t *testing.T) {
	job := testJob("* * * * *")
	job.MaxRetries = 2
	job.RetryDelayMS = 1
	repo := newFakeRepo(job)
	sch := New(nil, cache.New(), fakeExecutor{failErr: errBoom}, nil, 0, nil)
	sch.repo = repo

	if _, err := sch.ExecuteJob(context.Background(), job); err == nil {
		t.Fatal("expected ExecuteJob to return the terminal error")
	}

	if n := repo.countExecutions(job.ID); n != job.MaxRetries+1 {
		t.Fatalf("expected %d execution rows (one per attempt), got %d", job.MaxRetries+1, n)
	}
	for i, e := range repo.executions {
		if e.RetryCount != i {
			t.Errorf("execution %d: expected retryCount %d, got %d", i, i, e.RetryCount)
		}
		if e.Status != model.StatusFailed {
			t.Errorf("execution %d: expected status failed, got %s", i, e.Status)
		}
	}
}

func TestScheduler_RetryHookFiresOnTerminalFailure(t *testing.T) {
	job := testJob("* * * * *")
	repo := newFakeRepo(job)

	var gotJob model.Job
	var gotErr error
	hook := func(j model.Job, err error) {
		gotJob = j
		gotErr = err
	}
	sch := New(nil, cache.New(), fakeExecutor{failErr: errBoom}, nil, 0, hook)
	sch.repo = repo

	if _, err := sch.ExecuteJob(context.Background(), job); err == nil {
		t.Fatal("expected ExecuteJob to return the terminal error")
	}

	if gotJob.ID != job.ID {
		t.Errorf("expected retry hook to receive the failed job, got %+v", gotJob)
	}
	if gotErr == nil {
		t.Error("expected retry hook to receive the terminal error")
	}
}

func TestScheduler_GetStats_SuccessRateFormat(t *testing.T) {
	job := testJob("* * * * *")
	repo := newFakeRepo(job)
	sch := New(nil, cache.New(), fakeExecutor{}, nil, 0, nil)
	sch.repo = repo

	if _, err := sch.ExecuteJob(context.Background(), job); err != nil {
		t.Fatalf("ExecuteJob failed: %v", err)
	}

	stats := sch.GetStats()
	if stats.SuccessRate != "100.00%" {
		t.Errorf("expected success rate 100.00%%, got %s", stats.SuccessRate)
	}
	if stats.Total != 1 || stats.Successful != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestScheduler_RecentRuns_BoundedAndRecorded(t *testing.T) {
	job := testJob("* * * * *")
	repo := newFakeRepo(job)
	sch := New(nil, cache.New(), fakeExecutor{}, nil, 0, nil)
	sch.repo = repo

	if _, err := sch.ExecuteJob(context.Background(), job); err != nil {
		t.Fatalf("ExecuteJob failed: %v", err)
	}

	runs := sch.RecentRuns()
	if len(runs) != 1 {
		t.Fatalf("expected 1 recent run, got %d", len(runs))
	}
	if runs[0].JobID != job.ID || !runs[0].Success {
		t.Errorf("unexpected run log entry: %+v", runs[0])
	}

	for i := 0; i < recentRunsCapacity+10; i++ {
		sch.recordRunLog(RunLogEntry{JobID: job.ID})
	}
	if n := len(sch.RecentRuns()); n != recentRunsCapacity {
		t.Errorf("expected run log capped at %d, got %d", recentRunsCapacity, n)
	}
}

func TestScheduler_ScheduleUnschedule(t *testing.T) {
	job := testJob("* * * * *")
	repo := newFakeRepo(job)
	sch := New(nil, cache.New(), fakeExecutor{}, nil, 0, nil)
	sch.repo = repo

	sch.ScheduleJob(job)
	if !sch.IsScheduled(job.ID) {
		t.Fatal("expected job to be scheduled")
	}
	sch.UnscheduleJob(job.ID)
	if sch.IsScheduled(job.ID) {
		t.Fatal("expected job to be unscheduled")
	}
}

func TestScheduler_SetSyncInterval(t *testing.T) {
	sch := New(nil, cache.New(), fakeExecutor{}, nil, time.Minute, nil)

	if got := time.Duration(sch.syncIntervalNS.Load()); got != time.Minute {
		t.Fatalf("expected initial sync interval 1m, got %s", got)
	}

	sch.SetSyncInterval(5 * time.Second)
	if got := time.Duration(sch.syncIntervalNS.Load()); got != 5*time.Second {
		t.Errorf("expected updated sync interval 5s, got %s", got)
	}

	sch.SetSyncInterval(0) // non-positive values are ignored
	if got := time.Duration(sch.syncIntervalNS.Load()); got != 5*time.Second {
		t.Errorf("expected sync interval to stay 5s after a zero update, got %s", got)
	}
}
