// Package mongo creates the reservation collections, their schema validators
// and indexes. Collections must exist before the first calendar transaction:
// MongoDB cannot create them inside a multi-document transaction.
package mongo

import (
	"context"
	"fmt"
	"staybook/internal/migrations/mongo/validators"
	"staybook/internal/reservations/repository"
	"staybook/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	AccommodationsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "host_id", Value: 1}}},
	}

	ServicesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "accommodation_id", Value: 1}}},
	}

	BookingsIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "accommodation_id", Value: 1},
			{Key: "state", Value: 1},
			{Key: "check_in", Value: 1},
			{Key: "check_out", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "state", Value: 1},
			{Key: "check_in", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "state", Value: 1},
			{Key: "check_out", Value: 1},
		}},
		{Keys: bson.D{{Key: "guest_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	VouchersIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "booking_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
)

type collectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

func collections() map[string]collectionDef {
	return map[string]collectionDef{
		repository.AccommodationsCollection: {
			Indexes:   AccommodationsIndexes,
			Validator: validators.AccommodationValidator,
		},
		repository.ServicesCollection: {
			Indexes:   ServicesIndexes,
			Validator: validators.ServiceValidator,
		},
		repository.BookingsCollection: {
			Indexes:   BookingsIndexes,
			Validator: validators.BookingValidator,
		},
		repository.VouchersCollection: {
			Indexes:   VouchersIndexes,
			Validator: validators.VoucherValidator,
		},
		repository.CalendarGuardsCollection: {},
	}
}

func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	for name, def := range collections() {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if len(def.Indexes) == 0 {
			continue
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All Mongo migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection()
		if validator != nil {
			opts.SetValidator(validator)
		}
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	if validator == nil {
		return nil
	}
	log.Info("Collection already exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	coll := db.Collection(name)
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
