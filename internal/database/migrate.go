// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database

import (
	"database/sql"
	"embed"
	"path"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embedMigrations embed.FS

// prepare points goose at the migration set of the given driver.
func prepare(driver string) (string, error) {
	goose.SetBaseFS(embedMigrations)

	dialect, dir := "sqlite3", "sqlite"
	if driver == DriverPostgres {
		dialect, dir = "postgres", "postgres"
	}

	if err := goose.SetDialect(dialect); err != nil {
		return "", err
	}
	return path.Join("migrations", dir), nil
}

// RunMigrations runs all pending goose migrations.
func RunMigrations(db *sql.DB, driver string) error {
	dir, err := prepare(driver)
	if err != nil {
		return err
	}
	return goose.Up(db, dir)
}

// MigrateDown rolls back the last migration.
func MigrateDown(db *sql.DB, driver string) error {
	dir, err := prepare(driver)
	if err != nil {
		return err
	}
	return goose.Down(db, dir)
}

// MigrateReset rolls back all migrations.
func MigrateReset(db *sql.DB, driver string) error {
	dir, err := prepare(driver)
	if err != nil {
		return err
	}
	return goose.Reset(db, dir)
}
