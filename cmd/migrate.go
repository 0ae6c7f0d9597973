package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/careers-ingest/migrations"
)

// migrateFuncs are swapped in tests.
var (
	migrateUp   = migrations.Up
	migrateDown = migrations.Down
)

func newMigrateCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Applies or rolls back the embedded Postgres migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if rt.cfg.DB.Backend != "postgres" {
				return fmt.Errorf("migrate requires db.backend=postgres, got %q", rt.cfg.DB.Backend)
			}
			if args[0] == "up" {
				return migrateUp(rt.cfg.DB.DSN, rt.logger)
			}
			return migrateDown(rt.cfg.DB.DSN, steps, rt.logger)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}
