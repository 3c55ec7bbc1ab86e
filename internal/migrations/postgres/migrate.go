// Package postgres applies the reservation schema to PostgreSQL. It runs over
// database/sql through sqlx and lib/pq, separate from the pgx pool the
// service uses at runtime.
package postgres

import (
	"context"
	"fmt"
	"staybook/pkg/logger"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

const driverName = "postgres"

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL
)`

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(time.Minute * 5)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// RunMigration applies every pending migration, each in its own transaction.
func RunMigration(ctx context.Context, db *sqlx.DB, log *logger.Logger) error {
	log.Info("Running Postgres migrations")

	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			log.Debug("Migration already applied", "version", m.Version, "name", m.Name)
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		log.Info("Applied migration", "version", m.Version, "name", m.Name)
	}

	log.Info("All Postgres migrations applied successfully")
	return nil
}

func appliedVersions(ctx context.Context, db *sqlx.DB) (map[int]bool, error) {
	var versions []int
	if err := db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	out := make(map[int]bool, len(versions))
	for _, v := range versions {
		out[v] = true
	}
	return out, nil
}

func apply(ctx context.Context, db *sqlx.DB, m migration) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range m.Statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)`,
		m.Version, m.Name, time.Now().UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}
