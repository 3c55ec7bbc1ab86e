package main

import (
	"context"
	"flag"
	mongoMigration "staybook/internal/migrations/mongo"
	postgresMigration "staybook/internal/migrations/postgres"
	"staybook/internal/reservations/storage"
	"staybook/internal/reservations/validator"
	"staybook/pkg/config"
	"time"
)

const JobName = "migrate"

func main() {
	seedPath := flag.String("seed", "", "JSON file of accommodations and services to upsert after migrating")
	timeout := flag.Duration("timeout", 120*time.Second, "overall deadline for the job")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cfg := config.Load(JobName)
	defer cfg.GracefulShutdown()
	cfg.Log.Info("Starting migration job", "storage", cfg.StorageDriver)

	switch cfg.StorageDriver {
	case config.StorageMongo:
		migrateMongo(ctx, cfg)
	case config.StoragePostgres:
		migratePostgres(ctx, cfg)
	default:
		cfg.Log.Info("Nothing to migrate for storage driver", "storage", cfg.StorageDriver)
		return
	}

	if *seedPath != "" {
		seed(ctx, cfg, *seedPath)
	}
	cfg.Log.Info("Migration completed successfully")
}

func migrateMongo(ctx context.Context, cfg *config.Config) {
	cfg.SetMongo()
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	if err := mongoMigration.RunMigration(ctx, db, cfg.Log); err != nil {
		cfg.Log.Fatal("Mongo migration failed", "error", err)
	}
}

func migratePostgres(ctx context.Context, cfg *config.Config) {
	db, err := postgresMigration.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		cfg.Log.Fatal("Failed to connect to Postgres", "error", err)
	}
	defer db.Close()

	if err := postgresMigration.RunMigration(ctx, db, cfg.Log); err != nil {
		cfg.Log.Fatal("Postgres migration failed", "error", err)
	}
}

func seed(ctx context.Context, cfg *config.Config, path string) {
	store, err := storage.Open(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to open store", "error", err)
	}
	data, err := storage.SeedFromFile(ctx, store, path, validator.NewBookingValidator(cfg.Log))
	if err != nil {
		cfg.Log.Fatal("Seeding failed", "path", path, "error", err)
	}
	cfg.Log.Info("Seed applied",
		"accommodations", len(data.Accommodations),
		"services", len(data.Services),
	)
}
