package main

import (
	"errors"

	"github.com/spf13/cobra"

	"triage-assistant/internal/config"
	"triage-assistant/internal/persistence"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "revert all migrations instead of applying them")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.BackendConfigured() {
		return errors.New("DATABASE_URL is not set")
	}
	if err := persistence.Migrate(cfg.Database.MigrationsPath, cfg.Database.URL, migrateDown); err != nil {
		return err
	}
	cmd.Println("Migrations applied successfully!")
	return nil
}
