// Package storage selects the reservation Store for the configured driver
// and loads seed documents into it.
package storage

import (
	"context"
	"fmt"
	"os"
	"staybook/internal/reservations/repository"
	"staybook/internal/reservations/repository/memory"
	"staybook/internal/reservations/repository/postgres"
	"staybook/internal/reservations/validator"
	"staybook/pkg/config"
)

// Open returns the Store for cfg.StorageDriver, connecting its client when
// it is not connected yet.
func Open(cfg *config.Config) (repository.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageMongo:
		if cfg.Client.Mongo == nil {
			cfg.SetMongo()
		}
		return repository.NewMongoStore(cfg), nil
	case config.StoragePostgres:
		if cfg.Client.Postgres == nil {
			cfg.SetPostgres()
		}
		return postgres.NewStore(cfg), nil
	case config.StorageMemory:
		cfg.Log.Warn("Using in-memory store, reservations are lost on restart")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// SeedFromFile validates the accommodations and services in the JSON
// document at path and upserts them into store.
func SeedFromFile(ctx context.Context, store repository.Store, path string, v *validator.BookingValidator) (repository.SeedData, error) {
	f, err := os.Open(path)
	if err != nil {
		return repository.SeedData{}, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	data, err := repository.ReadSeed(f)
	if err != nil {
		return repository.SeedData{}, err
	}
	for _, a := range data.Accommodations {
		if err := v.ValidateAccommodation(a); err != nil {
			return repository.SeedData{}, fmt.Errorf("accommodation %s: %w", a.ID, err)
		}
	}
	for _, s := range data.Services {
		if err := v.ValidateService(s); err != nil {
			return repository.SeedData{}, fmt.Errorf("service %s: %w", s.ID, err)
		}
	}

	if err := repository.Seed(ctx, store, data); err != nil {
		return repository.SeedData{}, fmt.Errorf("failed to seed store: %w", err)
	}
	return data, nil
}
