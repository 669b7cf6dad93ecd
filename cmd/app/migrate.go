// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/go-authflow/internal/config"
	"codeberg.org/oliverandrich/go-authflow/internal/database"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(_ context.Context, cmd *cli.Command) error {
					return withDatabase(cmd, func(string, *sqlx.DB) error { return nil })
				},
			},
			{
				Name:  "down",
				Usage: "Roll back the last migration",
				Action: func(_ context.Context, cmd *cli.Command) error {
					return withDatabase(cmd, func(dialect string, conn *sqlx.DB) error {
						return database.MigrateDown(conn.DB, dialect)
					})
				},
			},
			{
				Name:  "reset",
				Usage: "Roll back all migrations",
				Action: func(_ context.Context, cmd *cli.Command) error {
					return withDatabase(cmd, func(dialect string, conn *sqlx.DB) error {
						return database.MigrateReset(conn.DB, dialect)
					})
				},
			},
		},
	}
}

// withDatabase opens the configured database, which applies pending
// migrations, and runs fn on it.
func withDatabase(cmd *cli.Command, fn func(dialect string, conn *sqlx.DB) error) error {
	cfg := config.NewFromCLI(cmd)

	conn, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := fn(database.Dialect(cfg.Database.DSN), conn); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("migrations done", "dialect", database.Dialect(cfg.Database.DSN))
	return nil
}
