// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embedMigrations embed.FS

// migrationSource maps a dialect to its goose dialect name and migration directory.
func migrationSource(dialect string) (string, string, error) {
	switch dialect {
	case DialectSQLite:
		return "sqlite3", "migrations/sqlite", nil
	case DialectPostgres:
		return "postgres", "migrations/postgres", nil
	default:
		return "", "", fmt.Errorf("unsupported database dialect: %s", dialect)
	}
}

func prepareGoose(dialect string) (string, error) {
	gooseDialect, dir, err := migrationSource(dialect)
	if err != nil {
		return "", err
	}

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(gooseDialect); err != nil {
		return "", err
	}
	return dir, nil
}

// RunMigrations runs all pending goose migrations.
func RunMigrations(db *sql.DB, dialect string) error {
	dir, err := prepareGoose(dialect)
	if err != nil {
		return err
	}
	return goose.Up(db, dir)
}

// MigrateDown rolls back the last migration.
func MigrateDown(db *sql.DB, dialect string) error {
	dir, err := prepareGoose(dialect)
	if err != nil {
		return err
	}
	return goose.Down(db, dir)
}

// MigrateReset rolls back all migrations.
func MigrateReset(db *sql.DB, dialect string) error {
	dir, err := prepareGoose(dialect)
	if err != nil {
		return err
	}
	return goose.Reset(db, dir)
}
