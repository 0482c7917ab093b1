package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nysa-project/nysa/internal/platform/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		if err := db.MigrateUp(cfg.PGDSN); err != nil {
			logger.Error("migrate up", slog.Any("error", err))
			return err
		}
		logger.Info("migrations applied")
		return nil
	},
}

var migrateDownSteps int

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		if err := db.MigrateDown(cfg.PGDSN, migrateDownSteps); err != nil {
			logger.Error("migrate down", slog.Any("error", err))
			return err
		}
		logger.Info("migrations rolled back", slog.Int("steps", migrateDownSteps))
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}
