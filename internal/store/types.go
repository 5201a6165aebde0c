// Package store defines the Store abstraction spec §4.A describes: a
// parameterized SQL client over a bounded connection pool, with slow-query
// reporting and a health check. internal/store/pg provides the Postgres
// implementation; internal/repository sits on top of Store and owns Job/
// JobExecution semantics.
package store

import (
	"context"
	"database/sql"
	"time"
)

// Config configures the store layer (spec §6 environment variables).
type Config struct {
	// DSN is the Postgres connection string (DB_CONNECTION_STRING).
	DSN string

	// MaxOpenConns bounds the connection pool (spec §4.A: "≈20").
	MaxOpenConns int

	// SlowQueryThreshold is the duration above which a query is reported to
	// the observability channel (spec §4.A: 100ms).
	SlowQueryThreshold time.Duration
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:                dsn,
		MaxOpenConns:       20,
		SlowQueryThreshold: 100 * time.Millisecond,
	}
}

// HealthStatus is the result of Store.HealthCheck (spec §4.A).
type HealthStatus struct {
	Healthy   bool  `json:"healthy"`
	LatencyMS int64 `json:"latency_ms"`
}

// Store is the durable persistence abstraction the repository layer is
// built on. Implementations must not hold any caller-visible mutex across
// a call (spec §5: "Handlers and timers MUST NOT hold any in-process mutex
// across a Store call").
type Store interface {
	// DB exposes the underlying *sql.DB for repository-layer queries. This
	// keeps Store thin (per spec §4.A's two operations) while letting
	// internal/store/pg provide the actual SQL; pg's query methods talk to
	// the DB handle directly rather than through a generic exec(sql, args)
	// indirection, which database/sql already is.
	DB() *sql.DB

	// HealthCheck reports liveness and round-trip latency.
	HealthCheck(ctx context.Context) HealthStatus

	// Close releases pool resources.
	Close() error
}
