package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ms-perfiles/internal/config"
	"ms-perfiles/internal/database/migrations"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the database schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE:      runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	direction := "up"
	if len(args) == 1 {
		direction = args[0]
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := cliLogger()
	ctx := context.Background()

	s, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	if cfg.Database.Driver == config.DriverSQLite {
		if direction == "down" {
			return fmt.Errorf("migrate down is only supported on postgres")
		}
		return prepareSchema(ctx, cfg, s, log)
	}

	if direction == "up" {
		return prepareSchema(ctx, cfg, s, log)
	}

	// roll back in reverse dependency order
	if err := migrations.NewRunner(s.Credentials, migrations.CredentialsSet, log).MigrateDown(); err != nil {
		return err
	}
	if err := migrations.NewRunner(s.Events, migrations.EventsSet, log).MigrateDown(); err != nil {
		return err
	}
	log.Info("MIGRATION", "All migrations rolled back")
	return nil
}
