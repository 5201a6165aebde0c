package pg

import (
	"context"
	"time"
)

// partitionDDL returns the DDL for the job_executions partition covering
// [rangeStart, rangeEnd), idempotent via IF NOT EXISTS. Called by
// ensurePartition (executions.go) before the first insert into a new month rather
// than via a separate scheduled task, since the control plane has no
// background-maintenance surface of its own beyond the scheduler loop.
func partitionDDL(tableSuffix, rangeStart, rangeEnd string) string {
	return "CREATE TABLE IF NOT EXISTS job_executions_" + tableSuffix +
		" PARTITION OF job_executions FOR VALUES FROM ('" + rangeStart + "') TO ('" + rangeEnd + "');"
}

// Migrate brings the schema up to the latest embedded migration and
// pre-creates the current and next month's job_executions partitions, so
// the "migrate" cobra command leaves a store ready to accept inserts
// immediately (ensurePartition still creates later months lazily as
// executions.go needs them).
func (s *PGStore) Migrate(ctx context.Context) error {
	if err := runMigrations(s.db.DB); err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := s.ensurePartition(ctx, now); err != nil {
		return err
	}
	return s.ensurePartition(ctx, now.AddDate(0, 1, 0))
}
