package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/imgx/internal/shared"
	"github.com/desertthunder/imgx/internal/ui"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the embedded template to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if path == "" {
		path = "config.toml"
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("%s\n", ui.Styles.OK("Config written to %s", path))
	r.writePlain("Set [oauth] domain and client_id before running 'imgx auth oauth'.\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, max(r.config.Database.MaxOpenConns, 1), max(r.config.Database.MaxIdleConns, 1))

	r.logger.Info("running database migrations")
	applied, err := shared.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	for _, m := range applied {
		r.writePlain("  applied %04d %s\n", m.Version, m.Name)
	}
	if len(applied) == 0 {
		r.writePlain("  schema already up to date\n")
	}
	r.writePlain("%s\n", ui.Styles.OK("Database ready at %s", r.config.Database.Path))
	return nil
}
