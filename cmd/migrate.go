package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cronkit/scheduler/internal/config"
	"github.com/cronkit/scheduler/internal/store"
	"github.com/cronkit/scheduler/internal/store/pg"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the jobs/job_executions schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func runMigrate() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	pgStore, err := pg.Open(store.Config{
		DSN:                cfg.DBConnectionString,
		MaxOpenConns:       cfg.Tuning.MaxOpenConns,
		SlowQueryThreshold: 100 * time.Millisecond,
	})
	if err != nil {
		return err
	}
	defer pgStore.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pgStore.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Println("schema applied")
	return nil
}
