// Package pg is the Postgres implementation of store.Store (spec §4.A).
package pg

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cronkit/scheduler/internal/apperror"
	"github.com/cronkit/scheduler/internal/store"
)

// PGStore is the store.Store implementation backed by Postgres via the pgx
// stdlib driver, wrapped in sqlx for named-parameter queries and struct
// scanning (internal/store/pg/helpers.go carries the lower-level helpers).
type PGStore struct {
	db                 *sqlx.DB
	slowQueryThreshold time.Duration
}

// Open creates a bounded connection pool and verifies connectivity.
// Mirrors the teacher's OpenDB (internal/store/pg/pool.go), generalized to
// the pool size and slow-query reporting spec §4.A requires.
func Open(cfg store.Config) (*PGStore, error) {
	sqlxDB, err := sqlx.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindFatalConfig, "open postgres", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	sqlxDB.SetMaxOpenConns(maxOpen)
	sqlxDB.SetMaxIdleConns(maxOpen / 2)
	sqlxDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlxDB.PingContext(ctx); err != nil {
		sqlxDB.Close()
		return nil, apperror.Wrap(apperror.KindFatalConfig, "ping postgres", err)
	}

	threshold := cfg.SlowQueryThreshold
	if threshold <= 0 {
		threshold = 100 * time.Millisecond
	}

	slog.Info("postgres connected", "max_open_conns", maxOpen)
	return &PGStore{db: sqlxDB, slowQueryThreshold: threshold}, nil
}

func (s *PGStore) DB() *sql.DB { return s.db.DB }

// SQLX exposes the sqlx handle for repository-layer named-parameter queries.
func (s *PGStore) SQLX() *sqlx.DB { return s.db }

func (s *PGStore) HealthCheck(ctx context.Context) store.HealthStatus {
	start := time.Now()
	err := s.db.PingContext(ctx)
	latency := time.Since(start)
	return store.HealthStatus{
		Healthy:   err == nil,
		LatencyMS: latency.Milliseconds(),
	}
}

func (s *PGStore) Close() error {
	return s.db.Close()
}

// reportSlowQuery surfaces any statement exceeding the configured threshold
// to the observability channel (spec §4.A); here that channel is slog, the
// same sink every other component logs through.
func (s *PGStore) reportSlowQuery(query string, elapsed time.Duration) {
	if elapsed < s.slowQueryThreshold {
		return
	}
	slog.Warn("store.slow_query", "elapsed_ms", elapsed.Milliseconds(), "query", truncateQuery(query))
}

func truncateQuery(q string) string {
	const max = 200
	if len(q) <= max {
		return q
	}
	return q[:max] + "...[truncated]"
}

// timed runs fn, timing it and reporting slow queries; query is used only
// for the slow-query log line. PGStore's query methods wrap their SQL calls
// through this so the 100ms threshold (spec §4.A) is enforced in one place;
// ensurePartition's DDL is not timed.
func (s *PGStore) timed(query string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.reportSlowQuery(query, time.Since(start))
	return err
}
