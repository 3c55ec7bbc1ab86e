package repository

import (
	"context"
	"fmt"
	reserrors "staybook/internal/reservations/errors"
	"staybook/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CalendarGuardsCollection = "Calendar_guards"
)

type mongoCalendarGuardRepository struct {
	collection *mongo.Collection
}

func newMongoCalendarGuardRepository(db *mongo.Database) *mongoCalendarGuardRepository {
	return &mongoCalendarGuardRepository{
		collection: db.Collection(CalendarGuardsCollection),
	}
}

// Touch bumps the guard of an accommodation and returns its new state. It
// must be the first write of a calendar transaction so concurrent transactions
// on the same accommodation conflict on this document before either inspects
// the calendar.
func (r *mongoCalendarGuardRepository) Touch(ctx context.Context, accommodationID string) (*model.CalendarGuard, error) {
	update := bson.M{
		"$inc": bson.M{"version": int64(1)},
		"$set": bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var guard model.CalendarGuard
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": accommodationID}, update, opts).Decode(&guard)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: concurrent guard creation for %s", reserrors.ErrSerializationFailure, accommodationID)
		}
		return nil, fmt.Errorf("failed to acquire calendar guard: %w", err)
	}
	return &guard, nil
}
