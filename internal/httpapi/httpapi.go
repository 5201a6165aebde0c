// Package httpapi is the ControlPlane (spec §4.F): a thin HTTP layer over
// Repository, Scheduler, and Cache. Routing follows the teacher's
// http.ServeMux pattern (internal/http/skills.go: "METHOD /path" patterns +
// r.PathValue). The writeJSON helper is cross-pack grounded on a sibling
// repo in the retrieval corpus, pkg/devclaw/webui/server.go (module
// github.com/jholhewres/devclaw) — the teacher itself uses the same
// ServeMux idiom but never wrote an equivalent envelope helper of its own.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cronkit/scheduler/internal/cache"
	"github.com/cronkit/scheduler/internal/model"
	"github.com/cronkit/scheduler/internal/repository"
	"github.com/cronkit/scheduler/internal/scheduler"
	"github.com/cronkit/scheduler/internal/store"
	"github.com/cronkit/scheduler/internal/store/pg"
)

// statsStore is the slice of *pg.PGStore the control plane needs beyond the
// thin store.Store interface — the database sub-document of GET /jobs/stats
// (spec §4.F) requires aggregate SQL the Store abstraction deliberately
// doesn't generalize.
type statsStore interface {
	store.Store
	AggregateStats(ctx context.Context) (pg.DBStats, error)
}

// jobRepository is the slice of *repository.JobRepository the control plane
// calls, declared as an interface so handler tests can substitute a fake
// instead of a live Postgres-backed repository.
type jobRepository interface {
	FindAll(ctx context.Context, filter model.Filter, page, limit int) (repository.Page, error)
	FindByID(ctx context.Context, id uuid.UUID) (model.Job, error)
	Create(ctx context.Context, input model.CreateJobInput) (model.Job, error)
	Update(ctx context.Context, id uuid.UUID, patch model.JobPatch) (model.Job, error)
	Delete(ctx context.Context, id uuid.UUID) (model.Job, error)
	ListExecutions(ctx context.Context, jobID uuid.UUID, page, limit int) (repository.ExecutionPage, error)
}

// jobScheduler is the slice of *scheduler.Scheduler the control plane
// calls.
type jobScheduler interface {
	ScheduleJob(job model.Job)
	UnscheduleJob(id uuid.UUID)
	IsScheduled(id uuid.UUID) bool
	ExecuteJob(ctx context.Context, job model.Job) (model.Job, error)
	GetStats() scheduler.Stats
	RecentRuns() []scheduler.RunLogEntry
}

// Handler is the ControlPlane: every endpoint in spec §6 hangs off it.
type Handler struct {
	repo      jobRepository
	sched     jobScheduler
	cache     *cache.Cache
	store     statsStore
	authToken string // JWT_SECRET bearer check; empty disables auth
	startedAt time.Time
}

func New(repo *repository.JobRepository, sched *scheduler.Scheduler, c *cache.Cache, st statsStore, authToken string) *Handler {
	return &Handler{repo: repo, sched: sched, cache: c, store: st, authToken: authToken, startedAt: time.Now()}
}

// RegisterRoutes wires every spec §6 endpoint onto mux. Rate limiting and
// CORS are deliberately absent here — spec §5 lists them as edge concerns;
// cmd/serve.go wraps the handler returned by this mux with those.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /jobs", h.withAuth(h.handleListJobs))
	mux.HandleFunc("POST /jobs", h.withAuth(h.handleCreateJob))
	mux.HandleFunc("GET /jobs/stats", h.withAuth(h.handleJobStats))
	mux.HandleFunc("GET /jobs/{id}", h.withAuth(h.handleGetJob))
	mux.HandleFunc("PUT /jobs/{id}", h.withAuth(h.handleUpdateJob))
	mux.HandleFunc("DELETE /jobs/{id}", h.withAuth(h.handleDeleteJob))
	mux.HandleFunc("POST /jobs/{id}/trigger", h.withAuth(h.handleTriggerJob))
	mux.HandleFunc("GET /jobs/{id}/executions", h.withAuth(h.handleListExecutions))
	mux.HandleFunc("POST /jobs/validate-cron", h.withAuth(h.handleValidateCron))
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /", h.handleRoot)
}
