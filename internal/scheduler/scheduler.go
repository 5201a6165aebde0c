// Package scheduler implements the Scheduler component (spec §4.E): the
// heart of the system. It owns one timer per active job, executes jobs
// single-flight, writes execution records, updates stats and next-run, and
// periodically resyncs against the repository's active-job set.
//
// Grounded on the teacher's internal/cron/service.go active-job loop
// (runLoop/checkJobs/executeJobByID shape, mutex-guarded maps) and
// internal/cron/retry.go for the retry/backoff hook, generalized from a
// single ticker over a JSON-file job list to a per-job timer driven by
// cronexpr.NextAfter over a Postgres-backed repository.
package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cronkit/scheduler/internal/apperror"
	"github.com/cronkit/scheduler/internal/cache"
	"github.com/cronkit/scheduler/internal/cronexpr"
	"github.com/cronkit/scheduler/internal/executor"
	"github.com/cronkit/scheduler/internal/model"
	"github.com/cronkit/scheduler/internal/repository"
)

// defaultSyncInterval is the periodic active-job reconciliation cadence
// (spec §4.E) used when the caller doesn't supply one via New — internal/
// config's Tuning.SyncIntervalSeconds overrides it in cmd/serve.go.
const defaultSyncInterval = 30 * time.Second

// stopDrainGrace bounds how long Stop waits for in-flight executions.
const stopDrainGrace = 30 * time.Second

// maxActiveJobsAtStart caps how many jobs Start schedules in one pass
// (spec §4.E: "capped at 1000").
const maxActiveJobsAtStart = 1000

// recentRunsCapacity bounds the in-memory run log mirror, grounded on the
// teacher's cron.Service.runLog ring buffer: the durable job_executions
// table is the source of truth, this is purely a last-200 cache so
// diagnostics/getStats callers don't have to round-trip the store.
const recentRunsCapacity = 200

// timerHandle is one job's scheduled firing; cancel stops the goroutine
// that waits for the next cronexpr.NextAfter instant.
type timerHandle struct {
	cancel context.CancelFunc
}

// runningExecution tracks an in-flight single-flight slot (spec §4.E
// "running: mapping job_id -> execution_context").
type runningExecution struct {
	execID    uuid.UUID
	startedAt time.Time
}

// stats mirrors spec §4.E's {total, successful, failed, avg_exec_ms}.
type stats struct {
	total      int64
	successful int64
	failed     int64
	avgExecMS  float64 // running mean
}

// RunLogEntry is one outcome in the bounded in-memory run log mirror.
type RunLogEntry struct {
	JobID      uuid.UUID `json:"jobId"`
	ExecID     uuid.UUID `json:"execId"`
	Success    bool      `json:"success"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMS int64     `json:"durationMs"`
}

// Stats is the exported snapshot returned by GetStats (spec §4.E getStats()).
type Stats struct {
	Total             int64  `json:"total"`
	Successful        int64  `json:"successful"`
	Failed            int64  `json:"failed"`
	AvgExecMS         int64  `json:"avgExecMs"`
	IsRunning         bool   `json:"isRunning"`
	ActiveJobs        int    `json:"activeJobs"`
	RunningExecutions int    `json:"runningExecutions"`
	SuccessRate       string `json:"successRate"`
}

// jobRepository is the slice of *repository.JobRepository the Scheduler
// depends on. Declared as an interface (rather than the concrete type) so
// tests can substitute an in-memory fake instead of a live Postgres store.
type jobRepository interface {
	GetActiveJobs(ctx context.Context) ([]model.Job, error)
	FindByID(ctx context.Context, id uuid.UUID) (model.Job, error)
	UpdateStats(ctx context.Context, id uuid.UUID, success bool, ranAt time.Time, nextRunAt *time.Time) error
	StartExecution(ctx context.Context, execID, jobID uuid.UUID, startedAt time.Time, retryCount int) (model.JobExecution, error)
	CompleteExecution(ctx context.Context, execID uuid.UUID, startedAt time.Time, status model.ExecutionStatus, output []byte, errMsg *string) error
}

// Scheduler is the single writer within the process (spec §5: "the process
// is a single logical scheduler... no cross-process leader election").
type Scheduler struct {
	repo  jobRepository
	cache *cache.Cache
	exec  executor.Executor
	bcast *cache.Broadcaster

	mu         sync.Mutex
	active     map[uuid.UUID]timerHandle
	running    map[uuid.UUID]runningExecution
	st         stats
	recentRuns []RunLogEntry // ring buffer, oldest-first, capped at recentRunsCapacity
	isRunning  bool
	syncStop   context.CancelFunc
	wg         sync.WaitGroup
	retryHook  RetryHook

	syncIntervalNS atomic.Int64 // nanoseconds; read/reset live by syncLoop, written by SetSyncInterval
}

// RetryHook is invoked whenever executeJob exhausts retries or fails
// terminally, so operators can wire alerting without changing the
// Scheduler itself (spec §4.E "the engine MUST expose a retry hook that
// receives the failed job and error"). May be nil, in which case no hook
// fires.
type RetryHook func(job model.Job, err error)

// New builds a Scheduler. syncInterval <= 0 falls back to
// defaultSyncInterval; SetSyncInterval can change it afterward without a
// restart.
func New(repo *repository.JobRepository, c *cache.Cache, exec executor.Executor, bcast *cache.Broadcaster, syncInterval time.Duration, hook RetryHook) *Scheduler {
	if syncInterval <= 0 {
		syncInterval = defaultSyncInterval
	}
	s := &Scheduler{
		repo:      repo,
		cache:     c,
		exec:      exec,
		bcast:     bcast,
		active:    make(map[uuid.UUID]timerHandle),
		running:   make(map[uuid.UUID]runningExecution),
		retryHook: hook,
	}
	s.syncIntervalNS.Store(int64(syncInterval))
	return s
}

// SetSyncInterval changes the active-job resync cadence. Takes effect on
// the sync loop's next tick (at most the previous interval later) — wired
// to internal/config's hot-reloaded Tuning.SyncIntervalSeconds.
func (s *Scheduler) SetSyncInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.syncIntervalNS.Store(int64(d))
}

// Start is idempotent (spec §4.E). It loads every active job, schedules
// each, and arms the 30s sync ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	jobs, err := s.repo.GetActiveJobs(ctx)
	if err != nil {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return apperror.Wrap(apperror.KindTransient, "load active jobs at start", err)
	}
	if len(jobs) > maxActiveJobsAtStart {
		slog.Warn("scheduler: active job count exceeds start cap, truncating", "count", len(jobs), "cap", maxActiveJobsAtStart)
		jobs = jobs[:maxActiveJobsAtStart]
	}
	for _, j := range jobs {
		s.ScheduleJob(j)
	}

	syncCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.syncStop = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.syncLoop(syncCtx)

	slog.Info("scheduler started", "scheduled_jobs", len(jobs))
	return nil
}

// Stop cancels the sync ticker, destroys every timer handle, then waits up
// to stopDrainGrace for running executions to drain (spec §4.E).
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	if s.syncStop != nil {
		s.syncStop()
	}
	for id, h := range s.active {
		h.cancel()
		delete(s.active, id)
	}
	s.mu.Unlock()

	// wg counts the sync loop and every timer loop; a timer loop that is
	// mid-execution exits only when that execution returns, so its exit is
	// awaited inside the same grace period as the running map.
	loopsDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(loopsDone)
	}()

	deadline := time.After(stopDrainGrace)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		n := len(s.running)
		s.mu.Unlock()
		if n == 0 {
			select {
			case <-loopsDone:
				slog.Info("scheduler stopped, all executions drained")
				return
			default:
			}
		}
		select {
		case <-deadline:
			slog.Warn("scheduler stop: grace period expired with executions still running", "running", n)
			return
		case <-ticker.C:
		}
	}
}

// ScheduleJob installs (or re-installs) a recurring timer for job.
func (s *Scheduler) ScheduleJob(job model.Job) {
	if !cronexpr.Validate(job.CronExpression) {
		slog.Warn("scheduler: refusing to schedule job with invalid cron expression", "job_id", job.ID, "cron", job.CronExpression)
		return
	}

	s.mu.Lock()
	if h, ok := s.active[job.ID]; ok {
		h.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.active[job.ID] = timerHandle{cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.timerLoop(ctx, job)
}

// UnscheduleJob destroys and forgets job's timer; never affects running.
func (s *Scheduler) UnscheduleJob(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.active[id]; ok {
		h.cancel()
		delete(s.active, id)
	}
}

// IsScheduled reports whether id currently has an armed timer.
func (s *Scheduler) IsScheduled(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[id]
	return ok
}

// timerLoop sleeps until job's next firing instant, executes, and
// re-arms itself from the freshly persisted next_run_at. It exits when ctx
// is cancelled (ScheduleJob re-arm or UnscheduleJob/Stop).
func (s *Scheduler) timerLoop(ctx context.Context, job model.Job) {
	defer s.wg.Done()

	next := job.NextRunAt
	if next == nil {
		now := time.Now().UTC()
		next = &now
		t := cronexpr.NextAfter(job.CronExpression, now)
		next = &t
	}

	for {
		wait := time.Until(*next)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		updated, err := s.ExecuteJob(context.Background(), job)
		if err != nil {
			slog.Error("scheduler: executeJob failed", "job_id", job.ID, "error", err)
		}
		if updated.ID != uuid.Nil {
			job = updated
		} else {
			// Skipped (already in flight) or not re-read: recompute below
			// rather than re-arming from the instant that just fired.
			job.NextRunAt = nil
		}
		if job.NextRunAt == nil {
			t := cronexpr.NextAfter(job.CronExpression, time.Now().UTC())
			job.NextRunAt = &t
		}
		next = job.NextRunAt
	}
}

// syncLoop periodically reconciles active against the repository's
// is_active set (spec §9 redesign note: diff on is_active, not next_run_at).
func (s *Scheduler) syncLoop(ctx context.Context) {
	defer s.wg.Done()
	current := time.Duration(s.syncIntervalNS.Load())
	ticker := time.NewTicker(current)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sync(ctx)
			if d := time.Duration(s.syncIntervalNS.Load()); d != current {
				current = d
				ticker.Reset(current)
			}
		}
	}
}

func (s *Scheduler) sync(ctx context.Context) {
	jobs, err := s.repo.GetActiveJobs(ctx)
	if err != nil {
		slog.Warn("scheduler: sync failed to load active jobs", "error", err)
		return
	}

	wantByID := make(map[uuid.UUID]model.Job, len(jobs))
	for _, j := range jobs {
		wantByID[j.ID] = j
	}

	s.mu.Lock()
	var toUnschedule []uuid.UUID
	for id := range s.active {
		if _, ok := wantByID[id]; !ok {
			toUnschedule = append(toUnschedule, id)
		}
	}
	var toSchedule []model.Job
	for id, j := range wantByID {
		if _, ok := s.active[id]; !ok {
			toSchedule = append(toSchedule, j)
		}
	}
	s.mu.Unlock()

	for _, id := range toUnschedule {
		s.UnscheduleJob(id)
	}
	for _, j := range toSchedule {
		s.ScheduleJob(j)
	}
	if len(toSchedule) > 0 || len(toUnschedule) > 0 {
		slog.Info("scheduler: sync reconciled", "scheduled", len(toSchedule), "unscheduled", len(toUnschedule))
	}
}

// ExecuteJob runs job single-flight (spec §4.E). It is exported so the
// control plane's manual-trigger endpoint can call it directly, sharing the
// same single-flight guard as scheduled firings.
func (s *Scheduler) ExecuteJob(ctx context.Context, job model.Job) (model.Job, error) {
	s.mu.Lock()
	if _, inFlight := s.running[job.ID]; inFlight {
		s.mu.Unlock()
		slog.Info("scheduler: skipping firing, execution already in flight", "job_id", job.ID)
		return model.Job{}, apperror.New(apperror.KindConflict, "execution already in flight")
	}
	execID := uuid.New()
	startedAt := time.Now().UTC()
	s.running[job.ID] = runningExecution{execID: execID, startedAt: startedAt}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, job.ID)
		s.mu.Unlock()
	}()

	success, execErr := s.runOnce(ctx, job, execID, startedAt)
	elapsed := time.Since(startedAt)

	if !success && execErr != nil && s.retryHook != nil {
		s.retryHook(job, execErr)
	}

	var nextRunAt *time.Time
	if job.IsActive {
		t := cronexpr.NextAfter(job.CronExpression, time.Now().UTC())
		nextRunAt = &t
	}
	if err := s.repo.UpdateStats(ctx, job.ID, success, startedAt, nextRunAt); err != nil {
		slog.Error("scheduler: failed to update job stats", "job_id", job.ID, "error", err)
	}

	s.recordOutcome(success, elapsed)
	s.recordRunLog(RunLogEntry{JobID: job.ID, ExecID: execID, Success: success, StartedAt: startedAt, DurationMS: elapsed.Milliseconds()})
	s.invalidate(job.ID)

	updated, err := s.repo.FindByID(ctx, job.ID)
	if err != nil {
		return model.Job{}, execErr
	}
	return updated, execErr
}

// runOnce drives the job's retry policy. Each attempt is its own logical
// invocation of the executor and, per the GLOSSARY ("an Execution is a
// single attempt... always produces exactly one durable row"), writes its
// own StartExecution/CompleteExecution pair with retryCount set to the
// attempt number — attempt 0 reuses execID (the id the single-flight guard
// in ExecuteJob already tracks), later attempts mint a fresh id of their own
// (spec §4.E executeJob steps 2-6; retry accounting per spec.md:147).
func (s *Scheduler) runOnce(ctx context.Context, job model.Job, execID uuid.UUID, startedAt time.Time) (success bool, err error) {
	policy := executor.RetryPolicy{MaxRetries: job.MaxRetries, RetryDelayMS: job.RetryDelayMS}

	var lastErr error
	_, attemptErr := executor.Attempt(ctx, policy, func(attemptCtx context.Context, attempt int) error {
		attemptExecID := execID
		attemptStartedAt := startedAt
		if attempt > 0 {
			attemptExecID = uuid.New()
			attemptStartedAt = time.Now().UTC()
		}

		if _, insErr := s.repo.StartExecution(ctx, attemptExecID, job.ID, attemptStartedAt, attempt); insErr != nil {
			slog.Error("scheduler: failed to write provisional execution row", "job_id", job.ID, "attempt", attempt, "error", insErr)
			return insErr
		}

		timeout := time.Duration(job.TimeoutMS) * time.Millisecond
		execCtx, cancel := context.WithTimeout(attemptCtx, timeout)
		defer cancel()

		result, execErr := s.exec.Execute(execCtx, job)

		var (
			status model.ExecutionStatus
			output []byte
			errMsg *string
		)
		if execErr != nil {
			if execCtx.Err() != nil {
				execErr = apperror.Wrap(apperror.KindTimeout, "executor exceeded timeout_ms", execCtx.Err())
				status = model.StatusTimeout
			} else {
				status = model.StatusFailed
			}
			msg := execErr.Error()
			errMsg = &msg
			lastErr = execErr
		} else {
			status = model.StatusCompleted
			output = executor.TruncateOutput(result.Output)
		}

		if cerr := s.repo.CompleteExecution(ctx, attemptExecID, attemptStartedAt, status, output, errMsg); cerr != nil {
			slog.Error("scheduler: failed to write execution row", "job_id", job.ID, "attempt", attempt, "error", cerr)
		}

		return execErr
	})

	if attemptErr != nil {
		if lastErr != nil {
			return false, lastErr
		}
		return false, attemptErr
	}
	return true, nil
}

func (s *Scheduler) invalidate(jobID uuid.UUID) {
	key := cache.DetailKey(jobID.String())
	s.cache.InvalidateJob(key)
	if s.bcast != nil {
		s.bcast.Publish(context.Background(), jobID.String())
	}
}

func (s *Scheduler) recordOutcome(success bool, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.total++
	if success {
		s.st.successful++
	} else {
		s.st.failed++
	}
	ms := float64(elapsed.Milliseconds())
	if s.st.total == 1 {
		s.st.avgExecMS = ms
	} else {
		s.st.avgExecMS += (ms - s.st.avgExecMS) / float64(s.st.total)
	}
}

// recordRunLog appends entry to the bounded in-memory mirror, dropping the
// oldest entry once recentRunsCapacity is reached.
func (s *Scheduler) recordRunLog(entry RunLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentRuns = append(s.recentRuns, entry)
	if len(s.recentRuns) > recentRunsCapacity {
		s.recentRuns = s.recentRuns[len(s.recentRuns)-recentRunsCapacity:]
	}
}

// RecentRuns returns a copy of the bounded run log mirror, newest last.
func (s *Scheduler) RecentRuns() []RunLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunLogEntry, len(s.recentRuns))
	copy(out, s.recentRuns)
	return out
}

// GetStats returns the spec §4.E observability snapshot.
func (s *Scheduler) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rate float64
	if s.st.total > 0 {
		rate = float64(s.st.successful) / float64(s.st.total) * 100
	}
	return Stats{
		Total:             s.st.total,
		Successful:        s.st.successful,
		Failed:            s.st.failed,
		AvgExecMS:         int64(s.st.avgExecMS),
		IsRunning:         s.isRunning,
		ActiveJobs:        len(s.active),
		RunningExecutions: len(s.running),
		SuccessRate:       strconv.FormatFloat(rate, 'f', 2, 64) + "%",
	}
}
