package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/forgeline/genrelay/internal/config"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [command]",
		Short: "Run database migrations",
		Long: "Run a migration command against the configured database. " +
			"Commands: " + strings.Join(postgres.MigrationCommands, ", ") + ".",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			return runMigrate(cmd.Context(), command)
		},
	}
}

func runMigrate(ctx context.Context, command string) error {
	if !slices.Contains(postgres.MigrationCommands, command) {
		return fmt.Errorf("unknown migration command %q, expected one of %s",
			command, strings.Join(postgres.MigrationCommands, ", "))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	ctx = logger.WithLogger(ctx, log)

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("failed to close database", "error", cerr)
		}
	}()

	if err := postgres.Migrate(ctx, db, command); err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	log.Info("migration finished", "command", command)
	return nil
}
