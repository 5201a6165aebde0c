// Package cmd holds the cobra command tree: "serve" runs the HTTP control
// plane, "migrate" applies the schema. Command factories follow the
// teacher's doctorCmd/cronCmd shape — a func returning *cobra.Command;
// the --config flag is bound with cmd.PersistentFlags() on the root.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cronkit",
		Short: "cronkit-scheduler: a cron job scheduling service",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML overlay for non-secret tuning knobs")
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(migrateCmd())
	return cmd
}

// Execute runs the root command, printing any error to stderr and exiting
// with status 1; main.go's sole responsibility is calling this.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
