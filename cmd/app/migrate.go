// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jimuzhe/doNow/internal/database"
	"github.com/urfave/cli/v3"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply all pending migrations",
				Action: migrateAction(database.RunMigrations),
			},
			{
				Name:   "down",
				Usage:  "Roll back the last migration",
				Action: migrateAction(database.MigrateDown),
			},
			{
				Name:   "reset",
				Usage:  "Roll back all migrations",
				Action: migrateAction(database.MigrateReset),
			},
		},
	}
}

func migrateAction(run func(db *sql.DB, driver string) error) cli.ActionFunc {
	return func(_ context.Context, cmd *cli.Command) error {
		dsn := cmd.String("database-dsn")
		db, err := database.Connect(dsn)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			_ = db.Close()
		}()

		if err := run(db.DB, db.DriverName()); err != nil {
			return fmt.Errorf("migrate %s: %w", cmd.Name, err)
		}
		slog.Info("migration finished", "command", cmd.Name, "driver", db.DriverName())
		return nil
	}
}
