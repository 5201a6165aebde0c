package pg

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// migrationFiles embeds the versioned schema migrations applied by the
// "migrate" cobra command. The teacher's go.mod already carried
// golang-migrate/migrate/v4 as a direct dependency without ever importing
// it; this is that dependency actually wired to the concern it names —
// schema application — in place of a hand-rolled DDL-string exec.
//
//go:embed migrations/*.sql
var migrationFiles embed.FS

// runMigrations drives every *.sql file under migrations/ to the latest
// version via golang-migrate, using the already-open *sql.DB rather than a
// second connection string so it shares the pool's TLS/auth configuration.
// The monthly job_executions partitions are NOT part of this set — they
// have no fixed version, since which partitions must exist depends on the
// wall-clock date, so ensurePartition (executions.go) keeps creating those
// at runtime instead.
func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
