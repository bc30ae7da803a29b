package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-feed/internal/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or revert the PostgreSQL document store schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "up"
			if len(args) == 1 {
				dir = args[0]
			}
			if err := database.Migrate(a.cfg.Postgres, dir == "up"); err != nil {
				return fmt.Errorf("migrate %s: %w", dir, err)
			}
			a.log.Info("migrations applied", zap.String("direction", dir),
				zap.String("database", a.cfg.Postgres.DBName))
			return nil
		},
	}
}
